package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"fibpipe/pkg/ready"
)

// SQLDialect defines the SQL syntax variant.
type SQLDialect string

const (
	DialectSQLite   SQLDialect = "sqlite"
	DialectPostgres SQLDialect = "postgres"
	DialectMySQL    SQLDialect = "mysql"
)

// SQLStore implements Store using database/sql.
// It supports SQLite, Postgres, and MySQL.
type SQLStore struct {
	ready.State

	db        *sql.DB
	tableName string
	dialect   SQLDialect
}

// NewSQLStore creates a new SQL-backed store.
// The caller is responsible for opening the *sql.DB with the matching driver.
func NewSQLStore(db *sql.DB, tableName string, dialect SQLDialect) *SQLStore {
	if tableName == "" {
		tableName = DefaultTable
	}
	return &SQLStore{
		db:        db,
		tableName: tableName,
		dialect:   dialect,
	}
}

// quotedTable returns the table name quoted for the dialect. "values" is a
// reserved word in all three.
func (s *SQLStore) quotedTable() string {
	if s.dialect == DialectMySQL {
		return "`" + s.tableName + "`"
	}
	return `"` + s.tableName + `"`
}

// InitSchema creates the table if it doesn't exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (number INT)`, s.quotedTable())
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLStore) Append(ctx context.Context, rec Record) error {
	p1 := "?"
	if s.dialect == DialectPostgres {
		p1 = "$1"
	}
	query := fmt.Sprintf(`INSERT INTO %s (number) VALUES (%s)`, s.quotedTable(), p1)

	if _, err := s.db.ExecContext(ctx, query, rec.Number); s.track(err) != nil {
		return fmt.Errorf("failed to append %d: %w", rec.Number, err)
	}
	return nil
}

func (s *SQLStore) ScanAll(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT number FROM %s`, s.quotedTable())

	rows, err := s.db.QueryContext(ctx, query)
	if s.track(err) != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.tableName, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var n sql.NullInt64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.tableName, err)
		}
		records = append(records, Record{Number: int(n.Int64)})
	}
	if err := s.track(rows.Err()); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.tableName, err)
	}
	return records, nil
}

// track updates readiness from a call result.
func (s *SQLStore) track(err error) error {
	return s.Track(err, driver.ErrBadConn, sql.ErrConnDone)
}

// Ping checks if the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.Observe(s.db.PingContext(ctx))
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	s.MarkDown()
	return s.db.Close()
}
