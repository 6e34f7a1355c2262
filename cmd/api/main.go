package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"reviewflow/internal/adapters/drafter"
	"reviewflow/internal/adapters/google"
	server "reviewflow/internal/adapters/http_server"
	"reviewflow/internal/adapters/observability"
	redisad "reviewflow/internal/adapters/redis"
	"reviewflow/internal/adapters/supabase"
	"reviewflow/internal/app"
	"reviewflow/internal/domain"
	"reviewflow/internal/shared"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// deps
	store := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	source, err := google.New(google.Config{
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

	gen, err := newDrafter(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reply drafter")
	}

	identity := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey)

	container := app.NewContainer(app.Deps{
		Source:        source,
		Drafter:       gen,
		Identity:      identity,
		Tokens:        store,
		Cache:         store,
		BusinessName:  cfg.BusinessName,
		FetchTimeout:  cfg.FetchTimeout,
		CacheTTL:      cfg.CacheTTL,
		OAuthRedirect: cfg.OAuthRedirect,
	})

	sessions := supabase.NewSessions()
	sessions.Subscribe(func(s domain.Session) {
		if err := container.HandleSession(context.Background(), s); err != nil {
			log.Warn().Err(err).Msg("session handling failed")
		}
	})

	// A stored token from a previous run resumes live mode without a new OAuth
	// round trip. Warm the view from cache first so the walk has a fallback.
	if token, ok, err := store.Provider(ctx); err == nil && ok {
		if container.WarmFromCache(ctx) {
			log.Info().Msg("restored snapshot from cache")
		}
		email := ""
		if e, _, err := supabase.PeekClaims(token); err == nil {
			email = e
		}
		sessions.Publish(domain.Session{AccessToken: token, Email: email})
	}

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{App: container, Sessions: sessions})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func newDrafter(ctx context.Context, cfg shared.Config) (domain.ReplyDrafter, error) {
	if cfg.AIProvider == "openai" {
		return drafter.NewOpenAI(cfg.OpenAIBase, cfg.OpenAIKey, cfg.OpenAIModel)
	}
	return drafter.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
}
