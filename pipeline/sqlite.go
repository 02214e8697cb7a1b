package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/go-unipa/models"

	_ "modernc.org/sqlite"
)

// SQLiteWriter stores records in one table per kind, keyed by record key.
// Rewriting a key replaces the stored row.
type SQLiteWriter struct {
	db   *sql.DB
	rows int
	mu   sync.Mutex
}

// NewSQLiteWriter opens or creates the database at path.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteWriter{db: db}, nil
}

// Write upserts records inside one transaction.
func (sw *SQLiteWriter) Write(records []models.Record) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	ctx := context.Background()
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	created := make(map[string]bool)
	for _, record := range records {
		if !created[record.Kind()] {
			if err := createTable(ctx, tx, record); err != nil {
				return err
			}
			created[record.Kind()] = true
		}
		args := []any{record.Key()}
		for _, v := range record.Values() {
			args = append(args, v)
		}
		if _, err := tx.ExecContext(ctx, insertStatement(record), args...); err != nil {
			return fmt.Errorf("insert %s %s: %w", record.Kind(), record.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	sw.rows += len(records)
	return nil
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate ensures at least one row was written.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.rows == 0 {
		return fmt.Errorf("sqlite database is empty")
	}
	return nil
}

func createTable(ctx context.Context, tx *sql.Tx, record models.Record) error {
	kind := record.Kind()
	columns := []string{`"record_key" TEXT PRIMARY KEY`}
	for _, c := range record.Columns() {
		columns = append(columns, quoteIdent(c)+" TEXT")
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(kind), strings.Join(columns, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", kind, err)
	}
	return nil
}

func insertStatement(record models.Record) string {
	names := []string{`"record_key"`}
	for _, c := range record.Columns() {
		names = append(names, quoteIdent(c))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(record.Kind()), strings.Join(names, ", "), placeholders)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
