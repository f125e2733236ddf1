package catalog

import (
	"fmt"
	"time"

	"parts-assistant/internal/models"

	"github.com/parquet-go/parquet-go"
)

// slotRow is the on-disk layout of availability exports.
type slotRow struct {
	SAP     string `parquet:"sap"`
	Data    string `parquet:"data"` // YYYY-MM-DD
	Hora    int32  `parquet:"hora"`
	Ocupado bool   `parquet:"ocupado"`
}

// ReadItemsParquet reads catalog items from an inventory export.
func ReadItemsParquet(path string) ([]models.Item, error) {
	rows, err := parquet.ReadFile[models.Item](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items parquet: %w", err)
	}
	items := rows[:0]
	for _, r := range rows {
		if r.SAP == "" || r.Description == "" {
			continue
		}
		items = append(items, r)
	}
	return items, nil
}

// ReadSlotsParquet reads availability slots from a scheduling export.
func ReadSlotsParquet(path string) ([]models.Slot, error) {
	rows, err := parquet.ReadFile[slotRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read slots parquet: %w", err)
	}
	slots := make([]models.Slot, 0, len(rows))
	for i, r := range rows {
		date, err := time.Parse(time.DateOnly, r.Data)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", i, r.Data, err)
		}
		slots = append(slots, models.Slot{
			SAP:      r.SAP,
			Date:     date,
			Hour:     int(r.Hora),
			Occupied: r.Ocupado,
		})
	}
	return slots, nil
}

// WriteItemsParquet writes items in the layout ReadItemsParquet expects.
func WriteItemsParquet(path string, items []models.Item) error {
	if err := parquet.WriteFile(path, items); err != nil {
		return fmt.Errorf("failed to write items parquet: %w", err)
	}
	return nil
}
