package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/lineagekit/internal/graph"
	"github.com/leapstack-labs/lineagekit/internal/loader"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/spf13/cobra"
)

// GraphOptions holds options for the graph command.
type GraphOptions struct {
	Task string
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "graph <path>...",
		Short: "Show how tasks depend on each other through tables",
		Long: `Extract lineage for the given task files and link the tasks: a task
that writes a table is upstream of every task that reads it.

Without --task the tasks are printed by level; tasks in one level only
depend on tasks in earlier levels. Tables read by no task are listed as
sources.`,
		Example: `  # Show dependency levels of all workflows
  lineagekit graph dags/

  # Show what a task depends on and what depends on it
  lineagekit graph dags/ --task daily_etl.load_users`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Task, "task", "", "Show upstream and downstream tasks of one task")

	return cmd
}

type taskLineageJSON struct {
	Task       string   `json:"task"`
	Upstream   []string `json:"upstream"`
	Downstream []string `json:"downstream"`
}

type graphJSON struct {
	Levels  [][]string `json:"levels"`
	Sources []string   `json:"sources"`
}

func runGraph(cmd *cobra.Command, paths []string, opts *GraphOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defaultDialect, err := cc.Cfg.Dialect()
	if err != nil {
		return err
	}

	files, err := expandPaths(paths)
	if err != nil {
		return err
	}
	tasks, err := loader.Loader{DefaultDialect: defaultDialect}.LoadFiles(files...)
	if err != nil {
		return err
	}

	results, err := extractor.Default(cc.Logger).ExtractAll(cmd.Context(), tasks, extractor.BatchOptions{Concurrency: cc.Cfg.Concurrency})
	if err != nil {
		return err
	}
	mds := make([]*core.Metadata, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			cc.Logger.Warn("skipping task", "error", res.Err)
			continue
		}
		mds = append(mds, res.Metadata)
	}
	g := graph.Build(mds)

	if opts.Task != "" {
		if _, ok := g.Metadata(opts.Task); !ok {
			return fmt.Errorf("task not found: %s", opts.Task)
		}
		tl := taskLineageJSON{
			Task:       opts.Task,
			Upstream:   nonNil(g.Upstream(opts.Task)),
			Downstream: nonNil(g.Downstream(opts.Task)),
		}
		if cc.JSON() {
			return cc.WriteJSON(tl)
		}
		renderTaskLineage(cc.Out, tl)
		return nil
	}

	levels, err := g.Levels()
	if err != nil {
		return err
	}
	if cc.JSON() {
		return cc.WriteJSON(graphJSON{Levels: levels, Sources: nonNil(g.Sources())})
	}
	renderLevels(cc.Out, g, levels)
	return nil
}

func renderTaskLineage(w io.Writer, tl taskLineageJSON) {
	_, _ = fmt.Fprintf(w, "Lineage for: %s\n\n", tl.Task)
	_, _ = fmt.Fprintf(w, "Upstream tasks (%d):\n", len(tl.Upstream))
	for _, name := range tl.Upstream {
		_, _ = fmt.Fprintf(w, "  - %s\n", name)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Downstream tasks (%d):\n", len(tl.Downstream))
	for _, name := range tl.Downstream {
		_, _ = fmt.Fprintf(w, "  - %s\n", name)
	}
}

func renderLevels(w io.Writer, g *graph.Graph, levels [][]string) {
	_, _ = fmt.Fprintln(w, "Task graph (levels):")
	_, _ = fmt.Fprintln(w)

	for i, level := range levels {
		_, _ = fmt.Fprintf(w, "Level %d:\n", i)
		for _, name := range level {
			_, _ = fmt.Fprintf(w, "  %s\n", name)
			if parents := g.Parents(name); len(parents) > 0 {
				_, _ = fmt.Fprintf(w, "    depends on: %s\n", strings.Join(parents, ", "))
			}
			if children := g.Children(name); len(children) > 0 {
				_, _ = fmt.Fprintf(w, "    used by: %s\n", strings.Join(children, ", "))
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	if sources := g.Sources(); len(sources) > 0 {
		_, _ = fmt.Fprintf(w, "Sources: %s\n", strings.Join(sources, ", "))
	}
	_, _ = fmt.Fprintf(w, "Total: %d tasks, %d dependencies\n", len(g.Tasks()), g.EdgeCount())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
