// Package database provides the catalog and availability stores.
package database

import (
	"context"
	"fmt"
	"time"

	"parts-assistant/internal/models"
)

// Store is the relational catalog the assistant reads from.
type Store interface {
	Initialize(ctx context.Context) error
	ListItems(ctx context.Context) ([]models.Item, error)
	FreeHours(ctx context.Context, saps []string, date time.Time) (map[string][]int, error)
	UpsertItems(ctx context.Context, items []models.Item) (int, error)
	UpsertSlots(ctx context.Context, slots []models.Slot) (int, error)
	Ping(ctx context.Context) error
	Close()
}

// Open connects to the store selected by driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string, maxConns int32) (Store, error) {
	switch driver {
	case "postgres":
		return NewDB(ctx, dsn, maxConns)
	case "sqlite":
		return NewSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// Ensure implementations satisfy interface.
var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLite)(nil)
)
