package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	RedisAddr string
	RedisDB   int
	RedisPass string

	SupabaseURL     string
	SupabaseAnonKey string
	OAuthRedirect   string

	GoogleAccountsBase string
	GoogleInfoBase     string
	GoogleReviewsBase  string
	GoogleRPS          int
	ReviewPageSize     int
	SyncWorkers        int
	FetchTimeout       time.Duration

	AIProvider   string // gemini | openai
	GeminiAPIKey string
	GeminiModel  string
	OpenAIBase   string
	OpenAIKey    string
	OpenAIModel  string

	BusinessName string
	CacheTTL     time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		RedisAddr: env("REDIS_ADDR", "localhost:6379"),
		RedisDB:   atoi("REDIS_DB", 0),
		RedisPass: env("REDIS_PASSWORD", ""),

		SupabaseURL:     env("SUPABASE_URL", ""),
		SupabaseAnonKey: env("SUPABASE_ANON_KEY", ""),
		OAuthRedirect:   env("OAUTH_REDIRECT_URL", "http://localhost:3000/settings"),

		GoogleAccountsBase: env("GOOGLE_ACCOUNTS_BASE_URL", "https://mybusinessaccountmanagement.googleapis.com/v1"),
		GoogleInfoBase:     env("GOOGLE_INFO_BASE_URL", "https://mybusinessbusinessinformation.googleapis.com/v1"),
		GoogleReviewsBase:  env("GOOGLE_REVIEWS_BASE_URL", "https://mybusiness.googleapis.com/v4"),
		GoogleRPS:          atoi("GOOGLE_RPS", 5),
		ReviewPageSize:     atoi("REVIEW_PAGE_SIZE", 50),
		SyncWorkers:        atoi("SYNC_WORKERS", 4),
		FetchTimeout:       time.Duration(atoi("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,

		AIProvider:   env("AI_PROVIDER", "gemini"),
		GeminiAPIKey: env("GEMINI_API_KEY", ""),
		GeminiModel:  env("GEMINI_MODEL", ""),
		OpenAIBase:   env("OPENAI_BASE_URL", ""),
		OpenAIKey:    env("OPENAI_API_KEY", ""),
		OpenAIModel:  env("OPENAI_MODEL", "gpt-4o-mini"),

		BusinessName: env("BUSINESS_NAME", "our business"),
		CacheTTL:     time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.SupabaseURL == "" {
		log.Warn().Msg("SUPABASE_URL is empty; OAuth connect will not work")
	}
	if c.GeminiAPIKey == "" && c.OpenAIKey == "" {
		log.Warn().Msg("no AI credentials set; reply drafting will fail")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
