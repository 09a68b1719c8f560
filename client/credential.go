package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidCredential = errors.New("invalid credential")

// Access/refresh token pair for the remote service, with an absolute expiry instant.
//
// Credential is an immutable value: the client never modifies one in place. A successful login or refresh exchange produces a new Credential, so copies handed out earlier (eg, to an update callback) remain valid and readable.
type Credential struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// Persisted form of a [Credential]. Field names are stable.
type credentialJSON struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Creates a new Credential. All three fields are required.
func NewCredential(accessToken, refreshToken string, expiresAt time.Time) (Credential, error) {
	if accessToken == "" {
		return Credential{}, fmt.Errorf("%w: empty access token", ErrInvalidCredential)
	}
	if refreshToken == "" {
		return Credential{}, fmt.Errorf("%w: empty refresh token", ErrInvalidCredential)
	}
	if expiresAt.IsZero() {
		return Credential{}, fmt.Errorf("%w: missing expiry time", ErrInvalidCredential)
	}
	return Credential{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
	}, nil
}

// Reports whether c is the zero value, which holds no tokens. Credentials from [NewCredential] are never zero.
func (c Credential) IsZero() bool {
	return c == Credential{}
}

func (c Credential) AccessToken() string {
	return c.accessToken
}

func (c Credential) RefreshToken() string {
	return c.refreshToken
}

func (c Credential) ExpiresAt() time.Time {
	return c.expiresAt
}

// Returns true if the current time is at or past the expiry instant. No grace window is applied.
func (c Credential) IsExpired() bool {
	return c.ExpiredAt(time.Now())
}

// Like [Credential.IsExpired], against the provided instant instead of the wall clock.
func (c Credential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.expiresAt)
}

func (c Credential) String() string {
	// tokens are secrets; keep them out of logs and fmt output
	return fmt.Sprintf("Credential{expires_at=%s}", c.expiresAt.Format(time.RFC3339))
}

func (c Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
		ExpiresAt:    c.expiresAt,
	})
}

// Decodes the persisted form of a credential. The same validation as [NewCredential] applies.
func (c *Credential) UnmarshalJSON(b []byte) error {
	var raw credentialJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewCredential(raw.AccessToken, raw.RefreshToken, raw.ExpiresAt)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
