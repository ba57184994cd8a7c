package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/codetesla51/productcache/cache"
)

// Warmer reloads the product bucket from the backing store.
type Warmer interface {
	Warm(ctx context.Context) (int, error)
}

// NewWarmCatalogHandler processes TaskWarmCatalog. Retryable failures are
// returned so asynq retries them; everything else skips retry.
func NewWarmCatalogHandler(w Warmer, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p WarmCatalogPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad warm payload")
			return fmt.Errorf("decode warm payload: %v: %w", err, asynq.SkipRetry)
		}

		runID, _ := asynq.GetTaskID(ctx)
		log := logger.With().Str("run_id", runID).Str("reason", p.Reason).Logger()
		log.Info().Msg("warm start")
		start := time.Now()
		n, err := w.Warm(ctx)
		duration := time.Since(start)

		if err != nil {
			if cache.IsRetryable(err) {
				log.Warn().Err(err).Dur("duration", duration).Msg("warm failed, will retry")
				return err
			}
			log.Error().Err(err).Dur("duration", duration).Msg("warm failed, dropping task")
			return fmt.Errorf("warm catalog: %v: %w", err, asynq.SkipRetry)
		}
		log.Info().Int("products", n).Dur("duration", duration).Msg("warm done")
		return nil
	}
}
