package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/leapstack-labs/lineagekit/pkg/lineage"
	"github.com/spf13/cobra"
)

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	var dialectName string

	cmd := &cobra.Command{
		Use:   "parse [sql]",
		Short: "Show the tables a SQL text reads and writes",
		Long: `Parse a SQL text and print its input and output tables.

The SQL is read from the argument, or from stdin when the argument is
"-" or missing.`,
		Example: `  lineagekit parse "INSERT INTO users SELECT * FROM staging_users"
  lineagekit parse --dialect snowflake < model.sql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			tag, err := cc.Cfg.Dialect()
			if err != nil {
				return err
			}
			d := dialectFor(tag)
			if dialectName != "" {
				if d, err = dialect.Lookup(dialectName); err != nil {
					return err
				}
				tag = d.Tag
			}

			sql, err := readSQL(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			fact := extractor.ParserFor(tag)(sql)
			if fact.Degraded {
				cc.Logger.Warn("part of the SQL could not be understood; lineage may be incomplete")
			}
			if cc.JSON() {
				return cc.WriteJSON(fact)
			}
			renderFact(cc.Out, d, fact)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dialectName, "dialect", "d", "", "SQL dialect (default: configured default dialect)")
	_ = cmd.RegisterFlagCompletionFunc("dialect", CompleteDialects)

	return cmd
}

func readSQL(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read SQL from stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no SQL given")
	}
	return string(data), nil
}

func renderFact(w io.Writer, d *dialect.Dialect, fact *lineage.Fact) {
	if fact.IsEmpty() {
		_, _ = fmt.Fprintln(w, "(no tables)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Role", "Table"})
	for _, ref := range fact.InTables {
		t.AppendRow(table.Row{"input", d.FormatTable(ref)})
	}
	for _, ref := range fact.OutTables {
		t.AppendRow(table.Row{"output", d.FormatTable(ref)})
	}
	t.Render()
}
