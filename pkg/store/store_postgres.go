package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fibpipe/pkg/ready"
)

// PostgresStore implements Store using github.com/jackc/pgx/v5.
// It is designed to work with pgxpool, the same pool River uses.
type PostgresStore struct {
	ready.State

	pool      *pgxpool.Pool
	tableName string
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool, tableName string) *PostgresStore {
	if tableName == "" {
		tableName = DefaultTable
	}
	return &PostgresStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the table if it doesn't exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (number INT)`,
		pgx.Identifier{s.tableName}.Sanitize())

	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (number) VALUES ($1)`,
		pgx.Identifier{s.tableName}.Sanitize())

	if _, err := s.pool.Exec(ctx, query, rec.Number); s.Track(err) != nil {
		return fmt.Errorf("failed to append %d: %w", rec.Number, err)
	}
	return nil
}

func (s *PostgresStore) ScanAll(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT number FROM %s`,
		pgx.Identifier{s.tableName}.Sanitize())

	rows, err := s.pool.Query(ctx, query)
	if s.Track(err) != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.tableName, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var n *int32
		if err := row.Scan(&n); err != nil {
			return Record{}, err
		}
		// The column is unconstrained, so NULL reads back as zero.
		if n == nil {
			return Record{}, nil
		}
		return Record{Number: int(*n)}, nil
	})
	if s.Track(err) != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.tableName, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Ping checks if the pool can reach the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Observe(s.pool.Ping(ctx))
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.MarkDown()
	s.pool.Close()
}
