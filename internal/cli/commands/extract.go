package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lineagekit/internal/loader"
	"github.com/leapstack-labs/lineagekit/internal/state"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/dialects/ansi"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/spf13/cobra"
)

// ExtractOptions holds options for the extract command.
type ExtractOptions struct {
	Watch bool
	Store bool
}

// NewExtractCommand creates the extract command.
func NewExtractCommand() *cobra.Command {
	opts := &ExtractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <path>...",
		Short: "Extract lineage from task files",
		Long: `Extract table lineage for every task in the given task files.

Paths may be YAML task files or directories, which are searched
recursively for *.yaml and *.yml files. A task that cannot be named is
reported as failed; SQL that cannot be understood yields empty or
partial lineage.`,
		Example: `  # Extract lineage for one workflow
  lineagekit extract dags/daily_etl.yaml

  # Extract a directory, store the records and add source permalinks
  lineagekit extract dags/ --store --locate

  # Re-extract whenever a task file changes
  lineagekit extract dags/ --watch

  # Output as JSON
  lineagekit extract dags/ -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-extract when task files change")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "Save lineage records to the state database")
	cmd.Flags().Int("concurrency", 0, "Parallel extractions (0 = GOMAXPROCS)")
	cmd.Flags().Bool("locate", false, "Add git permalinks for task files")
	cmd.Flags().String("remote", "", "Git remote used for permalinks")

	return cmd
}

// extractRun is one pass over the task files.
type extractRun struct {
	cc         *CommandContext
	paths      []string
	extractors *extractor.Extractors
	loader     loader.Loader
	store      *state.Store
}

func runExtract(cmd *cobra.Command, paths []string, opts *ExtractOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defaultDialect, err := cc.Cfg.Dialect()
	if err != nil {
		return err
	}

	run := &extractRun{
		cc:         cc,
		paths:      paths,
		extractors: cc.Extractors(),
		loader:     loader.Loader{DefaultDialect: defaultDialect},
	}

	ctx := cmd.Context()
	if opts.Store {
		store, err := cc.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		run.store = store
	}

	err = run.once(ctx)
	if !opts.Watch {
		return err
	}
	if err != nil {
		cc.Logger.Error("extraction failed", "error", err)
	}
	return run.watch(ctx)
}

// once loads, extracts and renders all tasks.
func (r *extractRun) once(ctx context.Context) error {
	files, err := expandPaths(r.paths)
	if err != nil {
		return err
	}
	tasks, err := r.loader.LoadFiles(files...)
	if err != nil {
		return err
	}

	r.cc.Logger.Debug("extracting", "files", len(files), "tasks", len(tasks))
	results, err := r.extractors.ExtractAll(ctx, tasks, extractor.BatchOptions{Concurrency: r.cc.Cfg.Concurrency})
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		if r.store != nil {
			if _, err := r.store.SaveRecord(ctx, res.Metadata); err != nil {
				return fmt.Errorf("failed to store record for %s: %w", res.Metadata.Name, err)
			}
		}
	}

	if r.cc.JSON() {
		err = r.cc.WriteJSON(resultsJSON(results))
	} else {
		err = renderResults(r.cc.Out, results, r.cc.Cfg.Location.Enabled)
	}
	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(results))
	}
	return nil
}

// watch re-runs the extraction on task file changes until ctx is done.
func (r *extractRun) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, p := range r.paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		dir := p
		if !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if err := watchDirRecursive(watcher, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	r.cc.Logger.Info("watching for changes", "paths", strings.Join(r.paths, ", "))

	rerun := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !loader.IsTaskFile(event.Name) {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				r.cc.Logger.Debug("file changed, re-extracting", "file", name)
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case <-rerun:
			if err := r.once(ctx); err != nil {
				r.cc.Logger.Error("extraction failed", "error", err)
			}

		case err := <-watcher.Errors:
			r.cc.Logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// expandPaths replaces directories with the task files below them.
// Explicit files are kept whatever their extension.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && path != p && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !d.IsDir() && loader.IsTaskFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

type resultJSON struct {
	Task     string         `json:"task"`
	Metadata *core.Metadata `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func resultsJSON(results []extractor.Result) []resultJSON {
	out := make([]resultJSON, len(results))
	for i, res := range results {
		out[i].Task = res.Task.WorkflowID + "." + res.Task.TaskID
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			continue
		}
		out[i].Task = res.Metadata.Name
		out[i].Metadata = res.Metadata
	}
	return out
}

func renderResults(w io.Writer, results []extractor.Result, withLocation bool) error {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "(0 tasks)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := table.Row{"Task", "Source", "Inputs", "Outputs"}
	if withLocation {
		header = append(header, "Location")
	}
	t.AppendHeader(header)

	for _, res := range results {
		if res.Err != nil {
			row := table.Row{res.Task.WorkflowID + "." + res.Task.TaskID, "error", res.Err.Error(), ""}
			if withLocation {
				row = append(row, "")
			}
			t.AppendRow(row)
			continue
		}

		md := res.Metadata
		source := md.SourceType.String()
		if md.SourceName != "" {
			source += " (" + md.SourceName + ")"
		}
		d := dialectFor(res.Task.Dialect)
		row := table.Row{md.Name, source, joinTables(d, md.Inputs), joinTables(d, md.Outputs)}
		if withLocation {
			row = append(row, md.Location)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d tasks)\n", len(results))
	return nil
}

// joinTables prints refs one per line in the syntax of d, or as stored
// when d is nil.
func joinTables(d *dialect.Dialect, refs []core.TableRef) string {
	if len(refs) == 0 {
		return "-"
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		if d == nil {
			names[i] = ref.String()
			continue
		}
		names[i] = d.FormatTable(ref)
	}
	return strings.Join(names, "\n")
}

// dialectFor returns the dialect registered for tag, ANSI when there is none.
func dialectFor(tag core.Dialect) *dialect.Dialect {
	if d, ok := dialect.ForTag(tag); ok {
		return d
	}
	return ansi.ANSI
}
