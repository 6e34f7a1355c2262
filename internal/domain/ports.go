package domain

import "context"

// ReviewSource is the gateway to an upstream review platform.
type ReviewSource interface {
	// FetchAll walks every account reachable by the token and returns the
	// normalized locations and reviews. Best-effort: per-leaf failures
	// degrade the result instead of failing it (see APINotEnabledError for
	// the escalated cases).
	FetchAll(ctx context.Context, accessToken string) (FetchResult, error)

	// PublishReply writes one reply to the upstream review resource.
	PublishReply(ctx context.Context, accessToken, accountID, locationID, reviewID, text string) error
}

// ReplyDrafter generates reply text for a review.
type ReplyDrafter interface {
	GenerateReply(ctx context.Context, pc PromptContext) (string, error)
}

// Identity is the auth provider the dashboard delegates sign-in to.
type Identity interface {
	// AuthorizeURL builds the OAuth begin URL for the review-management scope.
	AuthorizeURL(redirectTo string) string
	// SignOut revokes the upstream session.
	SignOut(ctx context.Context, accessToken string) error
}

// TokenStore persists the provider and refresh tokens under fixed keys.
type TokenStore interface {
	// Provider returns the stored provider token, reporting presence.
	Provider(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, providerToken, refreshToken string) error
	Clear(ctx context.Context) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
