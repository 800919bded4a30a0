// Package commands implements the lineagekit subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/lineagekit/internal/config"
	"github.com/leapstack-labs/lineagekit/internal/connection"
	"github.com/leapstack-labs/lineagekit/internal/location"
	"github.com/leapstack-labs/lineagekit/internal/state"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/spf13/cobra"
)

type runtimeKey struct{}

type cmdRuntime struct {
	cfg    *config.Config
	logger *slog.Logger
}

// WithRuntime stores the loaded config and logger for subcommands.
func WithRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, runtimeKey{}, cmdRuntime{cfg: cfg, logger: logger})
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Out    io.Writer
}

// NewCommandContext returns the dependencies stored by the root command.
// Commands run without the root (in tests) get defaults.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cc := &CommandContext{Out: cmd.OutOrStdout()}
	if rt, ok := cmd.Context().Value(runtimeKey{}).(cmdRuntime); ok {
		cc.Cfg, cc.Logger = rt.cfg, rt.logger
		return cc, nil
	}

	cfg, err := config.Load("", cmd.Flags())
	if err != nil {
		return nil, err
	}
	cc.Cfg = cfg
	cc.Logger = slog.New(slog.DiscardHandler)
	return cc, nil
}

// JSON reports whether output should be JSON.
func (c *CommandContext) JSON() bool {
	return c.Cfg.Output == config.OutputJSON
}

// WriteJSON writes v as indented JSON.
func (c *CommandContext) WriteJSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// OpenStore opens the state database. The caller closes it.
func (c *CommandContext) OpenStore(ctx context.Context) (*state.Store, error) {
	store, err := state.Open(ctx, c.Cfg.StatePath, state.Options{Logger: c.Logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return store, nil
}

// Extractors builds the extractor registry, with source locations when
// enabled.
func (c *CommandContext) Extractors() *extractor.Extractors {
	reg := extractor.Default(c.Logger)
	if c.Cfg.Location.Enabled {
		reg = reg.WithLocator(location.NewLocator(c.Cfg.Location.Remote, c.Logger))
	}
	return reg
}

// ConfigConnections parses the connections declared in the config file.
func (c *CommandContext) ConfigConnections() (*connection.Static, error) {
	ids := make([]string, 0, len(c.Cfg.Connections))
	for id := range c.Cfg.Connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	static := connection.NewStatic()
	for _, id := range ids {
		cc := c.Cfg.Connections[id]
		conn, err := connection.Parse(id, cc.Type, cc.DSN)
		if err != nil {
			return nil, fmt.Errorf("connection %q: %w", id, err)
		}
		static.Add(conn)
	}
	return static, nil
}

// Resolver looks connections up in the config file first, then the store.
func (c *CommandContext) Resolver(store *state.Store) (connection.Resolver, error) {
	static, err := c.ConfigConnections()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return static, nil
	}
	return connection.Chain{static, store}, nil
}

// CompleteDialects completes dialect flag values.
func CompleteDialects(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return dialect.List(), cobra.ShellCompDirectiveNoFileComp
}
