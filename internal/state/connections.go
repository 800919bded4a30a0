package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// SaveConnection inserts or replaces a connection.
func (s *Store) SaveConnection(ctx context.Context, c *core.Connection) error {
	if c == nil || c.ID == "" {
		return errors.New("connection id is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, type, host, port, schema_name, login, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			host = excluded.host,
			port = excluded.port,
			schema_name = excluded.schema_name,
			login = excluded.login,
			updated_at = excluded.updated_at`,
		c.ID, c.Type, c.Host, c.Port, c.Schema, c.Login, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save connection %s: %w", c.ID, err)
	}
	return nil
}

// GetConnection returns the connection with the given id. It implements
// connection.Resolver.
func (s *Store) GetConnection(ctx context.Context, id string) (*core.Connection, error) {
	c := &core.Connection{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, host, port, schema_name, login FROM connections WHERE id = ?`, id,
	).Scan(&c.ID, &c.Type, &c.Host, &c.Port, &c.Schema, &c.Login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "connection", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection %s: %w", id, err)
	}
	return c, nil
}

// ListConnections returns all connections ordered by id.
func (s *Store) ListConnections(ctx context.Context) ([]*core.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, host, port, schema_name, login FROM connections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []*core.Connection
	for rows.Next() {
		c := &core.Connection{}
		if err := rows.Scan(&c.ID, &c.Type, &c.Host, &c.Port, &c.Schema, &c.Login); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// DeleteConnection removes a connection.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "connection", ID: id}
	}
	return nil
}
