package models

import (
	"time"
)

// Row is a schema-less table record. Values are whatever the JSON decoder
// produces: string, float64, bool, nil, []any or map[string]any.
type Row = map[string]any

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch seconds
	User         *User  `json:"user"`
}

// Valid reports whether the session expiry lies strictly in the future.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.ExpiresAt > now.Unix()
}

// Credential is the persisted sign-in record for one email. The password is
// stored in clear text: this is a non-production test double and the record
// never leaves the emulator's own key-value store.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	User     *User  `json:"user"`
}

// PendingOAuth is the single in-flight OAuth handshake. A new attempt
// silently replaces an unconsumed one; the emulator supports exactly one
// concurrent flow.
type PendingOAuth struct {
	Provider   string `json:"provider"`
	State      string `json:"state"`
	RedirectTo string `json:"redirect_to"`
}

type StoredObject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path"`
	Size      int       `json:"size"`
	MimeType  string    `json:"mime_type"`
	Data      string    `json:"data"` // base64
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthEvent names a transition of the auth state machine.
type AuthEvent string

const (
	SignedIn       AuthEvent = "SIGNED_IN"
	SignedOut      AuthEvent = "SIGNED_OUT"
	TokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	UserUpdated    AuthEvent = "USER_UPDATED"
)

// TableEvent names a table mutation kind for realtime delivery. EventAll
// matches every kind when used in a subscription.
type TableEvent string

const (
	EventInsert TableEvent = "INSERT"
	EventUpdate TableEvent = "UPDATE"
	EventDelete TableEvent = "DELETE"
	EventAll    TableEvent = "*"
)

// TableChangePayload is what a table-change listener receives.
type TableChangePayload struct {
	EventType TableEvent `json:"eventType"`
	Table     string     `json:"table"`
	New       Row        `json:"new"`
	Old       Row        `json:"old"`
}
