package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"parts-assistant/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB represents the Postgres connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize sets up the catalog tables, extensions and indices
func (db *DB) Initialize(ctx context.Context) error {
	// pg_trgm provides similarity(), unaccent folds diacritics
	_, err := db.Pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS pg_trgm;
		CREATE EXTENSION IF NOT EXISTS unaccent;
	`)
	if err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	// unaccent is only STABLE; the wrapper pins the dictionary so it can
	// appear in an index expression
	_, err = db.Pool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION immutable_unaccent(text) RETURNS text
		LANGUAGE sql IMMUTABLE PARALLEL SAFE STRICT
		AS $$ SELECT public.unaccent('public.unaccent'::regdictionary, $1) $$
	`)
	if err != nil {
		return fmt.Errorf("failed to create unaccent wrapper: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pieces (
			sap       TEXT PRIMARY KEY,
			categoria TEXT NOT NULL DEFAULT '',
			descricao TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pieces table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS availability (
			sap     TEXT    NOT NULL REFERENCES pieces (sap),
			data    DATE    NOT NULL,
			hora    INTEGER NOT NULL CHECK (hora BETWEEN 0 AND 23),
			ocupado BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (sap, data, hora)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create availability table: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		DROP INDEX IF EXISTS pieces_descricao_trgm_idx;
		CREATE INDEX IF NOT EXISTS pieces_descricao_unaccent_trgm_idx
			ON pieces USING gin (immutable_unaccent(UPPER(descricao)) gin_trgm_ops);
		CREATE INDEX IF NOT EXISTS availability_data_idx ON availability (data, ocupado);
	`)
	if err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}

	return nil
}

// ListItems returns the whole catalog ordered by SAP code
func (db *DB) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT sap, categoria, descricao
		FROM pieces
		ORDER BY sap
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pieces: %w", err)
	}
	return processItemRows(rows)
}

// matchPieceQuery filters with the % operator so the trigram index is
// used; the similarity comparison keeps the threshold exact.
const matchPieceQuery = `
	SELECT sap, categoria, descricao,
	       similarity(immutable_unaccent(UPPER(descricao)), immutable_unaccent($1)) AS sim_score
	FROM pieces
	WHERE immutable_unaccent(UPPER(descricao)) % immutable_unaccent($1)
	  AND similarity(immutable_unaccent(UPPER(descricao)), immutable_unaccent($1)) >= $2
	ORDER BY sim_score DESC, sap
	LIMIT 1
`

// MatchPiece finds the piece whose description is most similar to
// description, if its similarity reaches threshold
func (db *DB) MatchPiece(ctx context.Context, description string, threshold float64) (*models.Item, float64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := setSimilarityThreshold(ctx, tx, threshold); err != nil {
		return nil, 0, err
	}

	var (
		item  models.Item
		score float64
	)
	err = tx.QueryRow(ctx, matchPieceQuery, description, threshold).
		Scan(&item.SAP, &item.Category, &item.Description, &score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query similar piece: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &item, score, nil
}

// setSimilarityThreshold sets the % operator's threshold for the rest of tx.
func setSimilarityThreshold(ctx context.Context, tx pgx.Tx, threshold float64) error {
	_, err := tx.Exec(ctx, `SELECT set_config('pg_trgm.similarity_threshold', $1, true)`,
		strconv.FormatFloat(threshold, 'f', -1, 64))
	if err != nil {
		return fmt.Errorf("failed to set similarity threshold: %w", err)
	}
	return nil
}

// FreeHours returns the unoccupied hours on date for each of the given SAP codes
func (db *DB) FreeHours(ctx context.Context, saps []string, date time.Time) (map[string][]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT sap, hora
		FROM availability
		WHERE sap = ANY($1) AND data = $2::date AND ocupado = FALSE
		ORDER BY sap, hora
	`, saps, date.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	free := make(map[string][]int)
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

// UpsertItems stores catalog items, replacing existing ones with the same SAP
func (db *DB) UpsertItems(ctx context.Context, items []models.Item) (int, error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO pieces (sap, categoria, descricao)
			VALUES ($1, $2, $3)
			ON CONFLICT (sap) DO UPDATE SET categoria = EXCLUDED.categoria, descricao = EXCLUDED.descricao
		`, it.SAP, it.Category, it.Description)
	}
	return db.sendBatch(ctx, batch, "piece")
}

// UpsertSlots stores availability slots, replacing the occupied flag of existing ones
func (db *DB) UpsertSlots(ctx context.Context, slots []models.Slot) (int, error) {
	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO availability (sap, data, hora, ocupado)
			VALUES ($1, $2::date, $3, $4)
			ON CONFLICT (sap, data, hora) DO UPDATE SET ocupado = EXCLUDED.ocupado
		`, s.SAP, s.Date.Format(time.DateOnly), s.Hour, s.Occupied)
	}
	return db.sendBatch(ctx, batch, "slot")
}

func (db *DB) sendBatch(ctx context.Context, batch *pgx.Batch, what string) (int, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	results := db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	stored := 0
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return stored, fmt.Errorf("failed to store %s %d: %w", what, i, err)
		}
		stored++
	}
	return stored, nil
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}

func processItemRows(rows pgx.Rows) ([]models.Item, error) {
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
