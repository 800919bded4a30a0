package commands

import (
	"github.com/leapstack-labs/lineagekit/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lineage API over HTTP",
		Long: `Start an HTTP server that extracts lineage from posted tasks.

Every extraction is stored in the state database. Prometheus metrics are
served on /metrics.

Endpoints:
  POST /api/v1/extract              extract one task
  POST /api/v1/extract/batch        extract a list of tasks
  POST /api/v1/parse                parse a SQL text
  GET  /api/v1/dialects             list dialects
  GET  /api/v1/connections/{id}     look up a connection
  GET  /api/v1/tasks/{name}/history list stored records of a task
  GET  /healthz                     liveness`,
		Example: `  lineagekit serve --addr :8080
  lineagekit serve --cors-origin https://catalog.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := cc.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			resolver, err := cc.Resolver(store)
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Extractors:  cc.Extractors(),
				Records:     store,
				Connections: resolver,
				Addr:        cc.Cfg.Server.Addr,
				CORSOrigins: cc.Cfg.Server.CORSOrigins,
				Concurrency: cc.Cfg.Concurrency,
				Logger:      cc.Logger,
			})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: 127.0.0.1:8080)")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origin (repeatable)")
	cmd.Flags().Bool("locate", false, "Add git permalinks for tasks with a file_path")

	return cmd
}
