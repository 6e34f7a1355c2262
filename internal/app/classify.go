package app

import (
	"errors"

	"reviewflow/internal/domain"
)

type ErrorKind string

const (
	ErrKindAPINotEnabled ErrorKind = "API_NOT_ENABLED"
	ErrKindAuthExpired   ErrorKind = "AUTH_EXPIRED"
	ErrKindOther         ErrorKind = "OTHER"
)

// ClassifiedError is the user-actionable view of a gateway failure.
type ClassifiedError struct {
	Kind    ErrorKind `json:"type"`
	APIName string    `json:"api_name,omitempty"`
	Message string    `json:"message,omitempty"`
}

// classify maps a gateway error to exactly one user-actionable category.
// Structural: it inspects the error variants the gateway returns, never
// the message text, except for the upstream UNAUTHENTICATED marker that
// only ever arrives inside an UpstreamError.
func classify(err error) ClassifiedError {
	var gate *domain.APINotEnabledError
	if errors.As(err, &gate) {
		return ClassifiedError{Kind: ErrKindAPINotEnabled, APIName: gate.API, Message: gate.Error()}
	}
	var up *domain.UpstreamError
	if errors.As(err, &up) && up.Unauthenticated() {
		return ClassifiedError{Kind: ErrKindAuthExpired, Message: "Google session expired; reconnect in settings."}
	}
	return ClassifiedError{Kind: ErrKindOther, Message: err.Error()}
}
