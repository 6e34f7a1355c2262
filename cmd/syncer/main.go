// syncer runs one aggregation walk and refreshes the cached snapshot.
// Useful as a cron job so a restarted API warms up with recent data.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"reviewflow/internal/adapters/google"
	"reviewflow/internal/adapters/observability"
	redisad "reviewflow/internal/adapters/redis"
	"reviewflow/internal/domain"
	"reviewflow/internal/shared"
)

func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()

	store := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// GOOGLE_ACCESS_TOKEN overrides the stored token for manual runs.
	token := os.Getenv("GOOGLE_ACCESS_TOKEN")
	if token == "" {
		t, ok, err := store.Provider(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("reading stored token failed")
		}
		if !ok {
			log.Fatal().Msg("no token available; connect through the API first or set GOOGLE_ACCESS_TOKEN")
		}
		token = t
	}

	client, err := google.New(google.Config{
		AccountsBase: cfg.GoogleAccountsBase,
		InfoBase:     cfg.GoogleInfoBase,
		ReviewsBase:  cfg.GoogleReviewsBase,
		RPS:          cfg.GoogleRPS,
		PageSize:     cfg.ReviewPageSize,
		Workers:      cfg.SyncWorkers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Google client")
	}

	log.Info().Int("workers", cfg.SyncWorkers).Msg("sync starting")

	res, err := client.FetchAll(ctx, token)
	if err != nil {
		var gate *domain.APINotEnabledError
		if errors.As(err, &gate) {
			log.Fatal().Str("api", gate.API).Msg("required Google API is not enabled for this project")
		}
		log.Fatal().Err(err).Msg("sync failed")
	}

	if len(res.Locations) == 0 {
		log.Warn().Msg("no verified locations found; snapshot left untouched")
		return
	}

	if err := store.Set(ctx, "snapshot:google", res, int(cfg.CacheTTL.Seconds())); err != nil {
		log.Fatal().Err(err).Msg("caching snapshot failed")
	}
	log.Info().
		Int("locations", len(res.Locations)).
		Int("reviews", len(res.Reviews)).
		Msg("sync completed")
}
