// internal/adapters/google/client.go
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"reviewflow/internal/adapters/observability"
	"reviewflow/internal/domain"
)

// Business Profile is split across three upstream APIs; each can be gated
// independently, which is why FetchAll reports which one refused us.
const (
	DefaultAccountsBase = "https://mybusinessaccountmanagement.googleapis.com/v1"
	DefaultInfoBase     = "https://mybusinessbusinessinformation.googleapis.com/v1"
	DefaultReviewsBase  = "https://mybusiness.googleapis.com/v4"
)

const locationReadMask = "name,title,storeCode,latlng,languageCode,phoneNumbers,categories,storefrontAddress"

type Config struct {
	AccountsBase string
	InfoBase     string
	ReviewsBase  string
	RPS          int           // client-side rate limit
	PageSize     int           // reviews per location, default 50
	Workers      int           // accounts walked concurrently, default 4
	Timeout      time.Duration // per-request, default 20s
}

type Client struct {
	accountsBase string
	infoBase     string
	reviewsBase  string
	hc           *http.Client
	rl           *rate.Limiter
	pageSize     int
	workers      int64
}

func New(cfg Config) (*Client, error) {
	if cfg.AccountsBase == "" {
		cfg.AccountsBase = DefaultAccountsBase
	}
	if cfg.InfoBase == "" {
		cfg.InfoBase = DefaultInfoBase
	}
	if cfg.ReviewsBase == "" {
		cfg.ReviewsBase = DefaultReviewsBase
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		accountsBase: strings.TrimSuffix(cfg.AccountsBase, "/"),
		infoBase:     strings.TrimSuffix(cfg.InfoBase, "/"),
		reviewsBase:  strings.TrimSuffix(cfg.ReviewsBase, "/"),
		hc:           &http.Client{Timeout: cfg.Timeout},
		rl:           rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
		pageSize:     cfg.PageSize,
		workers:      int64(cfg.Workers),
	}, nil
}

// ---- upstream payload shapes ----

type upstreamReply struct {
	Comment string `json:"comment"`
}

type accountsResponse struct {
	Accounts []struct {
		Name        string `json:"name"` // "accounts/123456789"
		AccountName string `json:"accountName"`
	} `json:"accounts"`
}

type locationsResponse struct {
	Locations []struct {
		Name              string `json:"name"` // "locations/987654321"
		Title             string `json:"title"`
		StorefrontAddress *struct {
			AddressLines []string `json:"addressLines"`
			Locality     string   `json:"locality"`
		} `json:"storefrontAddress"`
	} `json:"locations"`
}

type reviewsResponse struct {
	Reviews []struct {
		ReviewID   string `json:"reviewId"`
		StarRating string `json:"starRating"`
		Comment    string `json:"comment"`
		CreateTime string `json:"createTime"`
		Reviewer   struct {
			DisplayName string `json:"displayName"`
		} `json:"reviewer"`
		ReviewReply *upstreamReply `json:"reviewReply"`
	} `json:"reviews"`
}

// ---- aggregation walk ----

// FetchAll lists every account reachable by the token, then walks each
// account's locations and their reviews. A 429 on account or location
// listing aborts the whole walk (the gate blocks everything downstream);
// every other per-account or per-location failure only shrinks the result.
func (c *Client) FetchAll(ctx context.Context, accessToken string) (domain.FetchResult, error) {
	var acc accountsResponse
	if err := c.get(ctx, "accounts", c.accountsBase+"/accounts", accessToken, &acc); err != nil {
		if isQuotaGate(err) {
			return domain.FetchResult{}, &domain.APINotEnabledError{API: "Account Management"}
		}
		return domain.FetchResult{}, err
	}

	// Connected but nothing to show: a valid, empty result.
	if len(acc.Accounts) == 0 {
		return domain.FetchResult{Locations: []domain.Location{}, Reviews: []domain.Review{}}, nil
	}

	walkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(c.workers)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fatal error
		out   = domain.FetchResult{Locations: []domain.Location{}, Reviews: []domain.Review{}}
	)

	for _, a := range acc.Accounts {
		account := domain.Account{
			Name:        a.Name,
			ID:          pathSegment(a.Name, 1),
			DisplayName: a.AccountName,
		}

		if err := sem.Acquire(walkCtx, 1); err != nil {
			break // fatal escalation already canceled the walk
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			locs, revs, err := c.walkAccount(walkCtx, accessToken, account)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal == nil {
					fatal = err
					cancel()
				}
				return
			}
			out.Locations = append(out.Locations, locs...)
			out.Reviews = append(out.Reviews, revs...)
		}()
	}
	wg.Wait()

	if fatal != nil {
		return domain.FetchResult{}, fatal
	}
	return out, nil
}

// walkAccount lists one account's locations and collects their reviews.
// Returns a non-nil error only for the escalated 429 on location listing;
// any other listing failure skips the account (nil, nil, nil).
func (c *Client) walkAccount(ctx context.Context, token string, account domain.Account) ([]domain.Location, []domain.Review, error) {
	url := fmt.Sprintf("%s/%s/locations?readMask=%s", c.infoBase, account.Name, locationReadMask)

	var lr locationsResponse
	if err := c.get(ctx, "locations", url, token, &lr); err != nil {
		if isQuotaGate(err) {
			return nil, nil, &domain.APINotEnabledError{API: "Business Information"}
		}
		log.Warn().Str("account", account.Name).Err(err).Msg("skipping account: location listing failed")
		return nil, nil, nil
	}
	if len(lr.Locations) == 0 {
		return nil, nil, nil
	}

	var (
		locations []domain.Location
		reviews   []domain.Review
	)
	for _, loc := range lr.Locations {
		locationID := pathSegment(loc.Name, 1)

		address := "Address not set"
		if sa := loc.StorefrontAddress; sa != nil {
			address = strings.TrimSpace(strings.Join(sa.AddressLines, ", ") + " " + sa.Locality)
		}
		locations = append(locations, domain.Location{
			ID:             locationID,
			Name:           loc.Title,
			Address:        address,
			OrganizationID: account.ID,
		})

		url := fmt.Sprintf("%s/%s/locations/%s/reviews?pageSize=%d", c.reviewsBase, account.Name, locationID, c.pageSize)
		var rr reviewsResponse
		if err := c.get(ctx, "reviews", url, token, &rr); err != nil {
			// Review-fetch failures degrade per-location: the quota gate is
			// only a warning here, unlike the account-wide listing above.
			if isQuotaGate(err) {
				log.Warn().Str("location", locationID).Msg("reviews API gated (429); continuing without reviews")
			} else {
				log.Warn().Str("location", locationID).Err(err).Msg("review fetch failed; continuing")
			}
			continue
		}

		for _, r := range rr.Reviews {
			rv := domain.Review{
				ID:         r.ReviewID,
				LocationID: locationID,
				AuthorName: r.Reviewer.DisplayName,
				Rating:     starToRating(r.StarRating),
				Text:       r.Comment,
				Date:       reviewDate(r.CreateTime),
				Source:     domain.SourceGoogle,
			}
			if rv.Text == "" {
				rv.Text = "(no comment)"
			}
			if r.ReviewReply != nil {
				rv.Response = r.ReviewReply.Comment
				rv.IsReplied = true
			}
			reviews = append(reviews, rv)
		}
	}
	return locations, reviews, nil
}

// ---- reply publication ----

// PublishReply PUTs one reply to the upstream review resource. No retry;
// any non-2xx surfaces as an UpstreamError the caller treats uniformly.
func (c *Client) PublishReply(ctx context.Context, accessToken, accountID, locationID, reviewID, text string) error {
	url := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews/%s/reply", c.reviewsBase, accountID, locationID, reviewID)

	body, err := json.Marshal(upstreamReply{Comment: text})
	if err != nil {
		return err
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("google", "reply", resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return &domain.UpstreamError{Op: "reply", Status: resp.StatusCode, Message: errorMessage(resp.Body)}
}

// ---- internals ----

// get performs one rate-limited, bearer-authenticated GET and decodes the
// JSON body into out. Non-2xx statuses return *domain.UpstreamError. There
// is no retry: a 429 from these APIs is an activation gate, not a transient
// rate limit, so backing off would just mask it.
func (c *Client) get(ctx context.Context, endpoint, url, token string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("google", endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return &domain.UpstreamError{Op: endpoint, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
}

func isQuotaGate(err error) bool {
	var ue *domain.UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusTooManyRequests
}

// errorMessage reads a small error body and pulls out the upstream message
// ({"error":{"message":...}}) when the body has the usual Google error shape.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &env); err == nil && env.Error.Message != "" {
		if env.Error.Status != "" {
			return env.Error.Status + ": " + env.Error.Message
		}
		return env.Error.Message
	}
	return strings.TrimSpace(string(b))
}

var starRatings = []string{"ONE", "TWO", "THREE", "FOUR", "FIVE"}

// starToRating maps the upstream enum to 1..5 by ordinal position.
// Unknown values map to 0.
func starToRating(s string) int {
	for i, v := range starRatings {
		if v == s {
			return i + 1
		}
	}
	return 0
}

func reviewDate(createTime string) string {
	if t, err := time.Parse(time.RFC3339, createTime); err == nil {
		return t.Format("2006-01-02")
	}
	return time.Now().Format("2006-01-02")
}

// pathSegment returns the i-th segment of a resource name like "accounts/123".
func pathSegment(name string, i int) string {
	parts := strings.Split(name, "/")
	if i < len(parts) {
		return parts[i]
	}
	return name
}
