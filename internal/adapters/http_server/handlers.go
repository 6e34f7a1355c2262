// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"reviewflow/internal/adapters/supabase"
	"reviewflow/internal/app"
	"reviewflow/internal/domain"
)

type Handlers struct {
	App      *app.Container
	Sessions *supabase.Sessions
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/status", h.getStatus)
	s.mux.Get("/v1/locations", h.listLocations)
	s.mux.Get("/v1/reviews", h.listReviews)
	s.mux.Get("/v1/stats", h.getStats)
	s.mux.Post("/v1/reviews/{id}/reply", h.postReply)
	s.mux.Post("/v1/reviews/{id}/draft", h.postDraft)
	s.mux.Get("/v1/integrations", h.listIntegrations)
	s.mux.Post("/v1/integrations/{id}/connect", h.connectIntegration)
	s.mux.Post("/v1/integrations/{id}/disconnect", h.disconnectIntegration)
	s.mux.Post("/v1/session", h.postSession)
	s.mux.Post("/v1/refresh", h.postRefresh)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached emits a JSON body with an ETag, short-circuiting to 304 when
// the client already has this version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// getStatus carries one-shot notice/alert fields, so no ETag and no caching.
func (h *Handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.App.Status())
}

func (h *Handlers) listLocations(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, h.App.Locations())
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.App.Reviews(r.URL.Query().Get("location_id"), r.URL.Query().Get("status"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}
	writeCached(w, r, reviews)
}

func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	total, pending, replied := h.App.Stats()
	writeCached(w, r, map[string]int{"total": total, "pending": pending, "replied": replied})
}

func (h *Handlers) postReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "a non-empty text field is required")
		return
	}

	published, err := h.App.Reply(r.Context(), chi.URLParam(r, "id"), body.Text)
	if errors.Is(err, app.ErrReviewNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
		return
	}
	if err != nil {
		// The local update stands; only the upstream publish failed.
		writeProblem(w, http.StatusBadGateway, "Publish failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"published": published})
}

func (h *Handlers) postDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tone domain.Tone `json:"tone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "malformed JSON")
		return
	}
	if body.Tone == "" {
		body.Tone = domain.ToneProfessional
	}
	if !body.Tone.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid tone", "tone must be professional, friendly, empathetic or witty")
		return
	}

	draft, err := h.App.Draft(r.Context(), chi.URLParam(r, "id"), body.Tone)
	if errors.Is(err, app.ErrReviewNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Draft failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

func (h *Handlers) listIntegrations(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, h.App.Integrations())
}

func (h *Handlers) connectIntegration(w http.ResponseWriter, r *http.Request) {
	url, err := h.App.Connect(chi.URLParam(r, "id"))
	if errors.Is(err, app.ErrIntegrationNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "integration not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorize_url": url})
}

func (h *Handlers) disconnectIntegration(w http.ResponseWriter, r *http.Request) {
	err := h.App.Disconnect(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, app.ErrIntegrationNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "integration not found")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Disconnect failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// postSession is where the OAuth callback lands. The frontend forwards the
// provider token it received; an empty access_token is a sign-out. The
// session is published on the bus, which runs the aggregation walk
// synchronously, so the returned mode already reflects the fetch outcome.
func (h *Handlers) postSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Email        string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "malformed JSON")
		return
	}

	sess := domain.Session{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		Email:        body.Email,
	}
	// The Google provider token is an opaque ya29.* string; only a Supabase
	// JWT carries claims, so extraction is best-effort and the email field
	// in the body wins.
	if sess.AccessToken != "" && sess.Email == "" {
		if email, exp, err := supabase.PeekClaims(sess.AccessToken); err == nil {
			sess.Email = email
			sess.ExpiresAt = exp
		}
	}

	h.Sessions.Publish(sess)
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(h.App.Mode())})
}

func (h *Handlers) postRefresh(w http.ResponseWriter, r *http.Request) {
	err := h.App.Refresh(r.Context())
	if errors.Is(err, domain.ErrNotConnected) {
		writeProblem(w, http.StatusConflict, "Not connected", "connect Google Business Profile first")
		return
	}
	// Fetch failures are classified into the status view; the mode tells the
	// caller whether live data survived.
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(h.App.Mode())})
}
