package domain

// Source identifies the platform a review originates from.
type Source string

const (
	SourceGoogle      Source = "GOOGLE"
	SourceFacebook    Source = "FACEBOOK"
	SourceTripAdvisor Source = "TRIPADVISOR"
)

// Location is a business location discovered through the upstream walk.
// Immutable once produced; the whole set is replaced on each successful fetch.
type Location struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	OrganizationID string `json:"organization_id"` // upstream account that owns the location
}

type Review struct {
	ID         string `json:"id"`
	LocationID string `json:"location_id"`
	AuthorName string `json:"author_name"`
	Rating     int    `json:"rating"` // 1..5
	Text       string `json:"text"`
	Date       string `json:"date"`
	Source     Source `json:"source"`
	Response   string `json:"response,omitempty"`
	IsReplied  bool   `json:"is_replied"`
}

// FetchResult is the normalized output of one aggregation walk.
type FetchResult struct {
	Locations []Location `json:"locations"`
	Reviews   []Review   `json:"reviews"`
}

// Account is an upstream grouping of locations. Transient: used only as an
// iteration key during aggregation, never persisted.
type Account struct {
	Name        string // resource name, e.g. "accounts/123456789"
	ID          string
	DisplayName string
}

type Platform string

const (
	PlatformGoogle      Platform = "google_business"
	PlatformFacebook    Platform = "facebook"
	PlatformTripAdvisor Platform = "tripadvisor"
)

// Integration is one row per platform. Only google_business is backed by a
// real session; the others are locally-simulated toggle state.
type Integration struct {
	ID          string   `json:"id"`
	Platform    Platform `json:"platform"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	IsConnected bool     `json:"isConnected"`
	ConnectedAs string   `json:"connectedAs,omitempty"`
	LastSync    string   `json:"lastSync,omitempty"`
}

// Tone selects the voice of a drafted reply.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneEmpathetic   Tone = "empathetic"
	ToneWitty        Tone = "witty"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneProfessional, ToneFriendly, ToneEmpathetic, ToneWitty:
		return true
	}
	return false
}

// PromptContext carries everything the drafting service needs to write a reply.
type PromptContext struct {
	ReviewText   string
	Rating       int
	AuthorName   string
	BusinessName string
	Tone         Tone
}

// Session is the identity provider's view of the current user.
// An empty AccessToken means signed out.
type Session struct {
	AccessToken  string
	RefreshToken string
	Email        string
	ExpiresAt    int64 // unix seconds, zero when unknown
}
