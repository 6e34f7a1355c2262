// internal/app/container.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"reviewflow/internal/adapters/observability"
	"reviewflow/internal/domain"
)

// Mode is the data mode the dashboard is in.
type Mode string

const (
	ModeDemo       Mode = "demo"       // no real token; seed data shown
	ModeConnecting Mode = "connecting" // token acquired, fetch in flight
	ModeLive       Mode = "live"       // at least one successful fetch with locations
	ModeLiveEmpty  Mode = "live_empty" // fetch succeeded but found nothing
)

const (
	dateLayout       = "2006-01-02"
	snapshotCacheKey = "snapshot:google"
)

var (
	ErrReviewNotFound      = errors.New("review not found")
	ErrIntegrationNotFound = errors.New("integration not found")
)

type Deps struct {
	Source        domain.ReviewSource
	Drafter       domain.ReplyDrafter
	Identity      domain.Identity
	Tokens        domain.TokenStore
	Cache         domain.Cache // optional snapshot cache
	BusinessName  string
	FetchTimeout  time.Duration
	CacheTTL      time.Duration
	OAuthRedirect string
}

// Container holds the canonical in-memory view of locations, reviews and
// integrations, and mediates between the gateway and the HTTP surface.
// All mutation is wholesale replacement under one mutex; fetches for the
// same token are coalesced through a singleflight group.
type Container struct {
	deps Deps

	sf singleflight.Group

	mu           sync.Mutex
	mode         Mode
	loading      bool
	token        string
	locations    []domain.Location
	reviews      []domain.Review
	integrations []domain.Integration
	lastErr      *ClassifiedError
	notice       string // one-shot advisory (LiveEmpty)
	alert        string // one-shot Other-class error
}

func NewContainer(deps Deps) *Container {
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 30 * time.Second
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 15 * time.Minute
	}
	return &Container{
		deps:         deps,
		mode:         ModeDemo,
		locations:    seedLocations(),
		reviews:      seedReviews(),
		integrations: defaultIntegrations(),
	}
}

// ---- session handling ----

// HandleSession reacts to an identity-provider session change. A token
// triggers the aggregation walk immediately; an empty token is a sign-out.
func (c *Container) HandleSession(ctx context.Context, s domain.Session) error {
	if s.AccessToken == "" {
		c.mu.Lock()
		c.token = ""
		c.mode = ModeDemo
		c.setGoogleConnectionLocked(false, "")
		c.mu.Unlock()
		if err := c.deps.Tokens.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("clearing tokens after sign-out failed")
		}
		return nil
	}

	if err := c.deps.Tokens.Save(ctx, s.AccessToken, s.RefreshToken); err != nil {
		log.Warn().Err(err).Msg("persisting provider token failed")
	}

	c.mu.Lock()
	c.token = s.AccessToken
	c.mode = ModeConnecting
	c.setGoogleConnectionLocked(true, s.Email)
	c.mu.Unlock()

	return c.fetch(ctx, s.AccessToken)
}

// Refresh re-runs the aggregation walk. Without a token it is a no-op the
// caller turns into a "connect first" prompt.
func (c *Container) Refresh(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return domain.ErrNotConnected
	}
	return c.fetch(ctx, token)
}

// WarmFromCache restores the last live snapshot so a restarted dashboard
// has data while the first walk runs. Call only when a stored token exists.
func (c *Container) WarmFromCache(ctx context.Context) bool {
	if c.deps.Cache == nil {
		return false
	}
	var snap domain.FetchResult
	ok, err := c.deps.Cache.Get(ctx, snapshotCacheKey, &snap)
	if err != nil || !ok || len(snap.Locations) == 0 {
		return false
	}
	c.mu.Lock()
	c.locations = snap.Locations
	c.reviews = snap.Reviews
	c.mode = ModeLive
	c.mu.Unlock()
	return true
}

// fetch coalesces concurrent triggers for the same token into one walk.
func (c *Container) fetch(ctx context.Context, token string) error {
	_, err, _ := c.sf.Do(token, func() (any, error) {
		return nil, c.runFetch(ctx, token)
	})
	return err
}

func (c *Container) runFetch(ctx context.Context, token string) error {
	c.mu.Lock()
	c.loading = true
	c.lastErr = nil // a new attempt clears the prior classification
	c.alert = ""
	if c.mode == ModeDemo {
		c.mode = ModeConnecting
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	fctx, cancel := context.WithTimeout(ctx, c.deps.FetchTimeout)
	defer cancel()

	res, err := c.deps.Source.FetchAll(fctx, token)
	if err != nil {
		return c.recordFailure(ctx, err)
	}

	if len(res.Locations) > 0 {
		c.mu.Lock()
		c.locations = res.Locations
		c.reviews = res.Reviews
		c.mode = ModeLive
		c.mu.Unlock()
		if c.deps.Cache != nil {
			if err := c.deps.Cache.Set(ctx, snapshotCacheKey, res, int(c.deps.CacheTTL.Seconds())); err != nil {
				log.Warn().Err(err).Msg("caching live snapshot failed")
			}
		}
		observability.ObserveFetchWalk("live")
		log.Info().Int("locations", len(res.Locations)).Int("reviews", len(res.Reviews)).Msg("live data loaded")
		return nil
	}

	// Connected but nothing found: keep whatever was displayed and tell
	// the user once.
	c.mu.Lock()
	c.mode = ModeLiveEmpty
	c.notice = "Connected to Google, but no verified location was found for this account."
	c.mu.Unlock()
	observability.ObserveFetchWalk("empty")
	return nil
}

func (c *Container) recordFailure(ctx context.Context, err error) error {
	ce := classify(err)

	c.mu.Lock()
	switch ce.Kind {
	case ErrKindAPINotEnabled:
		c.lastErr = &ce
	case ErrKindAuthExpired:
		c.lastErr = &ce
		c.token = ""
		c.mode = ModeDemo
	default:
		c.alert = ce.Message
	}
	c.mu.Unlock()

	if ce.Kind == ErrKindAuthExpired {
		// Drop the dead token so no further fetch is attempted with it.
		if cerr := c.deps.Tokens.Clear(ctx); cerr != nil {
			log.Warn().Err(cerr).Msg("clearing expired token failed")
		}
		observability.ObserveFetchWalk("auth_expired")
	} else if ce.Kind == ErrKindAPINotEnabled {
		observability.ObserveFetchWalk("api_not_enabled")
	} else {
		observability.ObserveFetchWalk("error")
	}

	log.Warn().Str("kind", string(ce.Kind)).Err(err).Msg("fetch failed")
	return err
}

// ---- review actions ----

// Reply records the response locally (optimistic) and, for a Google review
// with a live token, publishes it upstream. published reports whether the
// reply actually left the building; a demo-mode reply stays local.
func (c *Container) Reply(ctx context.Context, reviewID, text string) (published bool, err error) {
	c.mu.Lock()
	idx := -1
	for i := range c.reviews {
		if c.reviews[i].ID == reviewID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false, ErrReviewNotFound
	}
	c.reviews[idx].Response = text
	c.reviews[idx].IsReplied = true
	review := c.reviews[idx]
	token := c.token
	var owner domain.Location
	for i := range c.locations {
		if c.locations[i].ID == review.LocationID {
			owner = c.locations[i]
			break
		}
	}
	c.mu.Unlock()

	if review.Source != domain.SourceGoogle || token == "" || owner.OrganizationID == "" {
		return false, nil
	}
	if err := c.deps.Source.PublishReply(ctx, token, owner.OrganizationID, owner.ID, review.ID, text); err != nil {
		// The optimistic update stands; the caller reports the failure inline.
		return false, err
	}
	return true, nil
}

// Draft asks the drafting service for a reply in the requested tone.
func (c *Container) Draft(ctx context.Context, reviewID string, tone domain.Tone) (string, error) {
	c.mu.Lock()
	var review domain.Review
	found := false
	for i := range c.reviews {
		if c.reviews[i].ID == reviewID {
			review = c.reviews[i]
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return "", ErrReviewNotFound
	}
	return c.deps.Drafter.GenerateReply(ctx, domain.PromptContext{
		ReviewText:   review.Text,
		Rating:       review.Rating,
		AuthorName:   review.AuthorName,
		BusinessName: c.deps.BusinessName,
		Tone:         tone,
	})
}

// ---- integrations ----

// Connect begins a connection. Google returns the OAuth begin URL; the
// other platforms are locally-simulated toggles.
func (c *Container) Connect(id string) (authorizeURL string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.integrations {
		if c.integrations[i].ID != id {
			continue
		}
		if c.integrations[i].Platform == domain.PlatformGoogle {
			return c.deps.Identity.AuthorizeURL(c.deps.OAuthRedirect), nil
		}
		c.integrations[i].IsConnected = true
		c.integrations[i].LastSync = time.Now().Format(dateLayout)
		return "", nil
	}
	return "", ErrIntegrationNotFound
}

// Disconnect reverts the google integration to demo mode atomically:
// upstream sign-out, token and snapshot wipe, seed data restored verbatim.
// Simulated platforms just toggle off.
func (c *Container) Disconnect(ctx context.Context, id string) error {
	c.mu.Lock()
	var target *domain.Integration
	for i := range c.integrations {
		if c.integrations[i].ID == id {
			target = &c.integrations[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return ErrIntegrationNotFound
	}
	if target.Platform != domain.PlatformGoogle {
		target.IsConnected = false
		target.ConnectedAs = ""
		target.LastSync = ""
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.mu.Unlock()

	if token != "" {
		if err := c.deps.Identity.SignOut(ctx, token); err != nil {
			log.Warn().Err(err).Msg("upstream sign-out failed; disconnecting anyway")
		}
	}
	if err := c.deps.Tokens.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("clearing tokens failed")
	}
	if c.deps.Cache != nil {
		_ = c.deps.Cache.Del(ctx, snapshotCacheKey)
	}

	c.mu.Lock()
	c.token = ""
	c.locations = seedLocations()
	c.reviews = seedReviews()
	c.lastErr = nil
	c.notice = ""
	c.alert = ""
	c.mode = ModeDemo
	c.setGoogleConnectionLocked(false, "")
	c.mu.Unlock()
	return nil
}

func (c *Container) setGoogleConnectionLocked(connected bool, email string) {
	for i := range c.integrations {
		if c.integrations[i].Platform != domain.PlatformGoogle {
			continue
		}
		c.integrations[i].IsConnected = connected
		c.integrations[i].ConnectedAs = email
		if connected {
			c.integrations[i].LastSync = time.Now().Format(dateLayout)
		} else {
			c.integrations[i].LastSync = ""
		}
	}
}

// ---- read side ----

// Status is the presentation view of the container. Notice and Alert are
// one-shot: reading consumes them.
type Status struct {
	Mode          Mode             `json:"mode"`
	Loading       bool             `json:"loading"`
	UsingLiveData bool             `json:"using_live_data"`
	Error         *ClassifiedError `json:"error,omitempty"`
	Notice        string           `json:"notice,omitempty"`
	Alert         string           `json:"alert,omitempty"`
}

func (c *Container) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		Mode:          c.mode,
		Loading:       c.loading,
		UsingLiveData: c.mode == ModeLive || c.mode == ModeLiveEmpty,
		Error:         c.lastErr,
		Notice:        c.notice,
		Alert:         c.alert,
	}
	c.notice = ""
	c.alert = ""
	return s
}

// Mode reads the current mode without consuming the one-shot fields.
func (c *Container) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Container) Locations() []domain.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Location, len(c.locations))
	copy(out, c.locations)
	return out
}

// Reviews filters by location ("" or "all" matches everything) and reply
// status ("all", "replied", "pending").
func (c *Container) Reviews(locationID, status string) ([]domain.Review, error) {
	switch status {
	case "", "all", "replied", "pending":
	default:
		return nil, fmt.Errorf("unknown status filter %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Review, 0, len(c.reviews))
	for _, r := range c.reviews {
		if locationID != "" && locationID != "all" && r.LocationID != locationID {
			continue
		}
		if status == "replied" && !r.IsReplied {
			continue
		}
		if status == "pending" && r.IsReplied {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Container) Stats() (total, pending, replied int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total = len(c.reviews)
	for _, r := range c.reviews {
		if r.IsReplied {
			replied++
		} else {
			pending++
		}
	}
	return total, pending, replied
}

func (c *Container) Integrations() []domain.Integration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Integration, len(c.integrations))
	copy(out, c.integrations)
	return out
}
