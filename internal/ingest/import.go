package ingest

import (
	"context"
	"fmt"

	"github.com/datashop/datashop/internal/cache"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/store"
)

// Import copies every capture found in a file-sink directory into dst, platform by
// platform. It returns the number of captures written. When c is non-nil the cached
// price history of every imported item is dropped.
func Import(ctx context.Context, dir string, dst store.Writer, c cache.Cache, log *logger.Logger) (int, error) {
	src := store.NewFileStore(dir)
	total := 0
	for _, p := range platform.All() {
		ids, err := src.DistinctIDs(ctx, p)
		if err != nil {
			return total, fmt.Errorf("import %s: %w", p, err)
		}
		for _, id := range ids {
			captures, err := src.Captures(ctx, p, id)
			if err != nil {
				return total, fmt.Errorf("import %s/%s: %w", p, id, err)
			}
			for i := range captures {
				if err := ctx.Err(); err != nil {
					return total, err
				}
				if _, err := dst.Save(ctx, &captures[i]); err != nil {
					return total, fmt.Errorf("import %s/%s: %w", p, id, err)
				}
				total++
			}
			invalidateHistory(c, log, p, id)
		}
		log.Info().Str("platform", p.String()).Int("items", len(ids)).Msg("platform imported")
	}
	return total, nil
}
