package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/lineagekit/internal/connection"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/spf13/cobra"
)

// NewConnectionsCommand creates the connections command group.
func NewConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage database connections",
		Long: `Manage the connections tasks refer to by connection_id.

Connections are stored in the state database. Connections declared in
the config file take precedence over stored ones with the same id.
Passwords in DSNs are never stored.`,
	}

	cmd.AddCommand(newConnectionsAddCommand())
	cmd.AddCommand(newConnectionsListCommand())
	cmd.AddCommand(newConnectionsGetCommand())
	cmd.AddCommand(newConnectionsDeleteCommand())

	return cmd
}

func newConnectionsAddCommand() *cobra.Command {
	var typ, dsn string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or replace a connection",
		Example: `  lineagekit connections add analytics_db --type postgres \
    --dsn postgres://etl@db.internal:5432/analytics
  lineagekit connections add shop --type mysql --dsn 'app@tcp(mysql:3306)/shop'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			conn, err := connection.Parse(args[0], typ, dsn)
			if err != nil {
				return err
			}

			store, err := cc.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveConnection(cmd.Context(), conn); err != nil {
				return err
			}
			cc.Logger.Info("connection saved", "id", conn.ID, "uri", connection.SourceURI(conn))

			if cc.JSON() {
				return cc.WriteJSON(conn)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "Database type (postgres|mysql)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Connection string in the driver's format")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}

func newConnectionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			static, err := cc.ConfigConnections()
			if err != nil {
				return err
			}

			store, err := cc.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stored, err := store.ListConnections(cmd.Context())
			if err != nil {
				return err
			}

			entries := make([]connectionEntry, 0, len(stored))
			fromConfig := make(map[string]bool)
			for _, c := range static.List() {
				fromConfig[c.ID] = true
				entries = append(entries, connectionEntry{Connection: c, Origin: "config"})
			}
			for _, c := range stored {
				if !fromConfig[c.ID] {
					entries = append(entries, connectionEntry{Connection: c, Origin: "state"})
				}
			}

			if cc.JSON() {
				return cc.WriteJSON(entries)
			}
			renderConnections(cc.Out, entries)
			return nil
		},
	}
}

func newConnectionsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a connection",
		Args:  cobra.ExactArgs(1),
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

			resolver, err := cc.Resolver(store)
			if err != nil {
				return err
			}
			conn, err := resolver.GetConnection(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cc.JSON() {
				return cc.WriteJSON(conn)
			}
			_, err = fmt.Fprintln(cc.Out, connection.SourceURI(conn))
			return err
		},
	}
}

func newConnectionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored connection",
		Args:    cobra.ExactArgs(1),
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

			if err := store.DeleteConnection(cmd.Context(), args[0]); err != nil {
				return err
			}
			cc.Logger.Info("connection deleted", "id", args[0])
			return nil
		},
	}
}

type connectionEntry struct {
	*core.Connection
	Origin string `json:"origin"`
}

func renderConnections(w io.Writer, entries []connectionEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "(0 connections)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Type", "Host", "Port", "Schema", "Login", "Origin"})
	for _, e := range entries {
		port := ""
		if e.Port != 0 {
			port = strconv.Itoa(e.Port)
		}
		t.AppendRow(table.Row{e.ID, e.Type, e.Host, port, e.Schema, e.Login, e.Origin})
	}
	t.Render()
}
