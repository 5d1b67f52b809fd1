package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunHistoryPruner deletes command history older than maxAge every interval
// until ctx is done. Call from main or app lifecycle.
func RunHistoryPruner(ctx context.Context, store HistoryStore, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PruneHistory(ctx, now.Add(-maxAge))
			if err != nil {
				log.Error().Err(err).Msg("Error pruning command history")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("Pruned command history")
			}
		}
	}
}
