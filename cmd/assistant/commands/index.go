package commands

import (
	"fmt"
	"time"

	"parts-assistant/cmd/assistant/ui"
	"parts-assistant/internal/app"
	"parts-assistant/internal/retrieval"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the manual and report statistics",
	Long: `Extracts the manual's pages and embeds them, as the server does at
startup. With the redis embedding cache configured this also warms the cache
for the next server start.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)
	logger := cliLogger(cfg)

	rdb, err := redisForCache(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	embedder, err := app.NewEmbedder(cfg, app.NewCache(cfg, rdb), logger)
	if err != nil {
		return err
	}

	ui.Info("Indexing %s with %s/%s", cfg.Manual.Path, cfg.Embedding.Backend, cfg.Embedding.Model)
	start := time.Now()
	var bar *ui.ProgressBar
	ix, err := app.BuildIndex(ctx, cfg, embedder, func(processed, total int) {
		if bar == nil {
			bar = ui.NewProgressBar(total, "Embedding")
		}
		bar.Set(processed)
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	printIndexStatistics(ix, time.Since(start))
	return nil
}

func printIndexStatistics(ix *retrieval.Index, elapsed time.Duration) {
	pages := ix.Pages()

	ui.Section("Index statistics")
	ui.KeyValue("Indexed pages", ix.Len())
	ui.KeyValue("Embedding dimension", ix.Dimension())
	if len(pages) > 0 {
		ui.KeyValue("Page range", fmt.Sprintf("%d-%d", pages[0], pages[len(pages)-1]))
	}
	ui.KeyValue("Elapsed", elapsed.Round(time.Millisecond))
	if len(pages) > 0 {
		ui.KeyValue("Per page", (elapsed / time.Duration(len(pages))).Round(time.Millisecond))
	}
}
