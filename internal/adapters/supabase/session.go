// internal/adapters/supabase/session.go
package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reviewflow/internal/domain"
)

// ScopeBusinessManage is required to read and answer Business Profile reviews.
const ScopeBusinessManage = "https://www.googleapis.com/auth/business.manage"

// Client talks to the Supabase auth (GoTrue) REST surface.
type Client struct {
	baseURL string
	anonKey string
	hc      *http.Client
}

func New(baseURL, anonKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		anonKey: anonKey,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthorizeURL builds the OAuth begin URL for the Google provider.
// access_type=offline and prompt=consent force a refresh token grant.
func (c *Client) AuthorizeURL(redirectTo string) string {
	q := url.Values{}
	q.Set("provider", "google")
	q.Set("scopes", ScopeBusinessManage)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

// SignOut revokes the upstream session.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 401 means the session was already dead; that is a successful sign-out.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusUnauthorized {
		return nil
	}
	return &domain.UpstreamError{Op: "logout", Status: resp.StatusCode, Message: resp.Status}
}

// PeekClaims extracts email and expiry from the access token without
// verifying the signature. Display and bookkeeping only; authorization is
// always delegated to the upstream APIs.
func PeekClaims(accessToken string) (email string, expiresAt int64, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "", 0, fmt.Errorf("parse token: %w", err)
	}
	if v, ok := claims["email"].(string); ok {
		email = v
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Unix()
	}
	return email, expiresAt, nil
}

// Sessions is the session-change bus. Subscribers are invoked synchronously
// in registration order; Subscribe returns a deterministic unsubscribe.
type Sessions struct {
	mu   sync.Mutex
	next int
	subs map[int]func(domain.Session)
}

func NewSessions() *Sessions {
	return &Sessions{subs: make(map[int]func(domain.Session))}
}

func (s *Sessions) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Publish delivers a session change to every subscriber. An empty
// AccessToken signals sign-out.
func (s *Sessions) Publish(sess domain.Session) {
	s.mu.Lock()
	fns := make([]func(domain.Session), 0, len(s.subs))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}
