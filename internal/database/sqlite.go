package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"parts-assistant/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a file or in-memory store for development and tests. It has
// no trigram support, so it only backs the in-memory matcher.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at path (":memory:" for a private in-memory one).
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+sqliteParams(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func sqliteParams(path string) string {
	if strings.Contains(path, "?") {
		return ""
	}
	return "?_foreign_keys=on&_busy_timeout=5000"
}

// Initialize creates the catalog tables.
func (s *SQLite) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pieces (
			sap       TEXT PRIMARY KEY,
			categoria TEXT NOT NULL DEFAULT '',
			descricao TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS availability (
			sap     TEXT    NOT NULL REFERENCES pieces (sap),
			data    TEXT    NOT NULL,
			hora    INTEGER NOT NULL CHECK (hora BETWEEN 0 AND 23),
			ocupado INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (sap, data, hora)
		);
		CREATE INDEX IF NOT EXISTS availability_data_idx ON availability (data, ocupado);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// ListItems returns the whole catalog ordered by SAP code.
func (s *SQLite) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sap, categoria, descricao FROM pieces ORDER BY sap`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pieces: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.SAP, &item.Category, &item.Description); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return items, nil
}

// FreeHours returns the unoccupied hours on date for each SAP code.
func (s *SQLite) FreeHours(ctx context.Context, saps []string, date time.Time) (map[string][]int, error) {
	free := make(map[string][]int)
	if len(saps) == 0 {
		return free, nil
	}

	args := make([]any, 0, len(saps)+1)
	for _, sap := range saps {
		args = append(args, sap)
	}
	args = append(args, date.Format(time.DateOnly))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(saps)), ", ")
	rows, err := s.db.QueryContext(ctx, `
		SELECT sap, hora
		FROM availability
		WHERE sap IN (`+placeholders+`) AND data = ? AND ocupado = 0
		ORDER BY sap, hora
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sap  string
			hour int
		)
		if err := rows.Scan(&sap, &hour); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		free[sap] = append(free[sap], hour)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return free, nil
}

// UpsertItems stores catalog items in one transaction.
func (s *SQLite) UpsertItems(ctx context.Context, items []models.Item) (int, error) {
	return s.inTx(ctx, len(items), `
		INSERT INTO pieces (sap, categoria, descricao) VALUES (?, ?, ?)
		ON CONFLICT (sap) DO UPDATE SET categoria = excluded.categoria, descricao = excluded.descricao
	`, func(i int) []any {
		return []any{items[i].SAP, items[i].Category, items[i].Description}
	})
}

// UpsertSlots stores availability slots in one transaction.
func (s *SQLite) UpsertSlots(ctx context.Context, slots []models.Slot) (int, error) {
	return s.inTx(ctx, len(slots), `
		INSERT INTO availability (sap, data, hora, ocupado) VALUES (?, ?, ?, ?)
		ON CONFLICT (sap, data, hora) DO UPDATE SET ocupado = excluded.ocupado
	`, func(i int) []any {
		return []any{slots[i].SAP, slots[i].Date.Format(time.DateOnly), slots[i].Hour, slots[i].Occupied}
	})
}

func (s *SQLite) inTx(ctx context.Context, n int, query string, argsAt func(int) []any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, argsAt(i)...); err != nil {
			return 0, fmt.Errorf("failed to store row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() {
	s.db.Close()
}
