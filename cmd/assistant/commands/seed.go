package commands

import (
	"context"
	"errors"
	"fmt"

	"parts-assistant/cmd/assistant/ui"
	"parts-assistant/internal/app"
	"parts-assistant/internal/catalog"

	"github.com/spf13/cobra"
)

var (
	seedItemsPath  string
	seedSlotsPath  string
	seedExportPath string
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the catalog tables",
	RunE:  runInitDB,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load catalog items and availability slots from parquet files",
	Long: `Loads items (sap, categoria, descricao) and slots (sap, data, hora,
ocupado) into the configured database, replacing rows with the same keys.
With --export the current catalog is written to a parquet file instead.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedItemsPath, "items", "", "parquet file with catalog items")
	seedCmd.Flags().StringVar(&seedSlotsPath, "slots", "", "parquet file with availability slots")
	seedCmd.Flags().StringVar(&seedExportPath, "export", "", "write the catalog items to this parquet file")
	rootCmd.AddCommand(initDBCmd, seedCmd)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	ui.Success("Database initialized (%s)", cfg.Database.Driver)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedItemsPath == "" && seedSlotsPath == "" && seedExportPath == "" {
		return errors.New("nothing to do: pass --items, --slots or --export")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// items first: slots reference them
	if seedItemsPath != "" {
		items, err := catalog.ReadItemsParquet(seedItemsPath)
		if err != nil {
			return err
		}
		n, err := store.UpsertItems(ctx, items)
		if err != nil {
			return err
		}
		ui.Success("Stored %d items from %s", n, seedItemsPath)
	}

	if seedSlotsPath != "" {
		slots, err := catalog.ReadSlotsParquet(seedSlotsPath)
		if err != nil {
			return err
		}
		n, err := store.UpsertSlots(ctx, slots)
		if err != nil {
			return err
		}
		ui.Success("Stored %d slots from %s", n, seedSlotsPath)
	}

	if seedExportPath != "" {
		items, err := store.ListItems(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			ui.Warning("Catalog is empty")
		}
		if err := catalog.WriteItemsParquet(seedExportPath, items); err != nil {
			return err
		}
		ui.Success("Exported %d items to %s", len(items), seedExportPath)
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
