package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lineagekit/internal/state"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <task>",
		Short: "Show stored lineage records of a task",
		Long: `Show the lineage records stored for a task by "extract --store" or the
API server, newest first. The task is named <workflow_id>.<task_id>.`,
		Example: `  lineagekit history daily_etl.load_users
  lineagekit history daily_etl.load_users --limit 5 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			store, err := cc.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			if cc.JSON() {
				return cc.WriteJSON(records)
			}
			renderHistory(cc.Out, records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of records (0 = all)")

	return cmd
}

func renderHistory(w io.Writer, records []*state.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "(0 records)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Created", "Source", "Inputs", "Outputs", "Record"})
	for _, rec := range records {
		source := rec.SourceType.String()
		if rec.SourceName != "" {
			source += " (" + rec.SourceName + ")"
		}
		t.AppendRow(table.Row{
			rec.CreatedAt.Local().Format(time.DateTime),
			source,
			joinTables(nil, rec.Inputs),
			joinTables(nil, rec.Outputs),
			rec.ID,
		})
	}
	t.Render()
}
