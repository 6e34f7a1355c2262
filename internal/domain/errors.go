package domain

import (
	"errors"
	"fmt"
	"strings"
)

// APINotEnabledError is the escalated quota/activation gate: the upstream
// answered 429 on a resource that blocks all downstream data. API carries the
// display name used in the remediation banner.
type APINotEnabledError struct {
	API string
}

func (e *APINotEnabledError) Error() string {
	return fmt.Sprintf("api not enabled: %s", e.API)
}

// UpstreamError is any other non-2xx answer from an upstream service.
type UpstreamError struct {
	Op      string // "accounts", "locations", "reviews", "reply", ...
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Status, e.Message)
}

// Unauthenticated reports whether the error indicates a dead token.
func (e *UpstreamError) Unauthenticated() bool {
	return e.Status == 401 || strings.Contains(e.Message, "UNAUTHENTICATED")
}

// ErrNotConnected is returned when an operation needs a platform connection
// and no token is present.
var ErrNotConnected = errors.New("no platform connection")
