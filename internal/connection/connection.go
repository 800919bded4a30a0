// Package connection resolves connection identifiers to connection details.
//
// Details come from DSNs, parsed with the drivers' own parsers so every
// form a driver accepts works here. Passwords are dropped.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// ErrNotFound is returned by resolvers for unknown connection ids.
var ErrNotFound = errors.New("connection not found")

// Resolver looks connections up by id.
type Resolver interface {
	GetConnection(ctx context.Context, id string) (*core.Connection, error)
}

// UnsupportedTypeError is returned for DSNs of a database type without a parser.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported connection type %q (supported: postgres, mysql)", e.Type)
}

// Parse builds a connection named id from a DSN for the given type.
// The type accepts the same aliases as dialect names.
func Parse(id, typ, dsn string) (*core.Connection, error) {
	d, err := core.ParseDialect(typ)
	if err != nil {
		return nil, &UnsupportedTypeError{Type: typ}
	}

	switch d {
	case core.DialectPostgres:
		return parsePostgres(id, dsn)
	case core.DialectMySQL:
		return parseMySQL(id, dsn)
	default:
		return nil, &UnsupportedTypeError{Type: typ}
	}
}

func parsePostgres(id, dsn string) (*core.Connection, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	return &core.Connection{
		ID:     id,
		Type:   core.DialectPostgres.String(),
		Host:   cfg.Host,
		Port:   int(cfg.Port),
		Schema: cfg.Database,
		Login:  cfg.User,
	}, nil
}

func parseMySQL(id, dsn string) (*core.Connection, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}

	conn := &core.Connection{
		ID:     id,
		Type:   core.DialectMySQL.String(),
		Host:   cfg.Addr,
		Schema: cfg.DBName,
		Login:  cfg.User,
	}
	if cfg.Net != "unix" {
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mysql address %q: %w", cfg.Addr, err)
		}
		conn.Host = host
		if conn.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("failed to parse mysql port %q: %w", port, err)
		}
	}
	return conn, nil
}

// SourceURI renders a connection as type://host:port/schema for display
// and as a dataset namespace.
func SourceURI(c *core.Connection) string {
	host := c.Host
	if c.Port != 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	return fmt.Sprintf("%s://%s/%s", c.Type, host, c.Schema)
}

// Static is an in-memory Resolver.
type Static struct {
	mu    sync.RWMutex
	conns map[string]*core.Connection
}

// NewStatic creates a resolver over the given connections.
func NewStatic(conns ...*core.Connection) *Static {
	s := &Static{conns: make(map[string]*core.Connection, len(conns))}
	for _, c := range conns {
		s.Add(c)
	}
	return s
}

// Add registers or replaces a connection.
func (s *Static) Add(c *core.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conns[c.ID] = &cp
}

// GetConnection implements Resolver.
func (s *Static) GetConnection(_ context.Context, id string) (*core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

// List returns all connections ordered by id.
func (s *Static) List() []*core.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Chain tries each resolver in order. A miss moves on to the next resolver;
// any other error stops the lookup.
type Chain []Resolver

// GetConnection implements Resolver.
func (c Chain) GetConnection(ctx context.Context, id string) (*core.Connection, error) {
	for _, r := range c {
		conn, err := r.GetConnection(ctx, id)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
