package client

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	loginEndpoint   = "MyAuth/create"
	refreshEndpoint = "MyAuth/refresh"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Response body of both the login and refresh exchanges.
type authResponse struct {
	AccessToken  string    `json:"accesstoken"`
	RefreshToken string    `json:"refreshtoken"`
	ExpiresIn    expiresIn `json:"expiresin"`
}

// Relative credential lifetime in seconds. The service has been observed to send this as either a JSON number or a numeric string.
type expiresIn float64

func (e *expiresIn) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return fmt.Errorf("missing expiresin value")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid expiresin value %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite expiresin value: %s", s)
	}
	if v < 0 {
		return fmt.Errorf("negative expiresin value: %s", s)
	}
	*e = expiresIn(min(v, maxExpiresIn))
	return nil
}

// Longest lifetime representable as a [time.Duration]; larger values are clamped.
const maxExpiresIn = float64(math.MaxInt64 / int64(time.Second))

func (e expiresIn) Duration() time.Duration {
	ns := float64(e) * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// One-way digest of the account password, as transmitted on the wire.
func passwordDigest(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Performs an initial password login exchange, unconditionally replacing any current credential.
//
// On success the new credential is stored and passed to the update callback (if any). A non-success response is returned as a [*RequestError] with Op [OpAuthenticate].
func (c *APIClient) Login(ctx context.Context) error {
	c.exchangeLk.Lock()
	defer c.exchangeLk.Unlock()

	_, err := c.authenticateLocked(ctx)
	return err
}

// Exchanges the current refresh token for a new credential. If the client has no credential yet, performs a password login instead.
//
// On success the new credential is stored and passed to the update callback (if any). A non-success response is returned as a [*RequestError] with Op [OpRefresh].
func (c *APIClient) Refresh(ctx context.Context) error {
	c.exchangeLk.Lock()
	defer c.exchangeLk.Unlock()

	_, err := c.refreshLocked(ctx)
	return err
}

// Caller must hold exchangeLk.
func (c *APIClient) authenticateLocked(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(loginRequest{
		Username: c.username,
		Password: passwordDigest(c.password),
	})
	if err != nil {
		return Credential{}, err
	}

	req := NewAPIRequest(http.MethodPost, loginEndpoint, bytes.NewReader(body))
	req.Headers.Set("Content-Type", "application/json")
	req.Headers.Set("Accept", "application/json")

	cred, err := c.exchange(ctx, OpAuthenticate, req)
	if err != nil {
		return Credential{}, err
	}
	c.Logger.Info("logged in", "account", c.AccountID(), "expiresAt", cred.ExpiresAt())
	return cred, nil
}

// Caller must hold exchangeLk.
func (c *APIClient) refreshLocked(ctx context.Context) (Credential, error) {
	prior, ok := c.Credential()
	if !ok {
		return c.authenticateLocked(ctx)
	}

	req := NewAPIRequest(http.MethodGet, refreshEndpoint, nil)
	req.Headers.Set("refreshtoken", prior.RefreshToken())
	req.Headers.Set("Accept", "application/json")

	cred, err := c.exchange(ctx, OpRefresh, req)
	if err != nil {
		var reqErr *RequestError
		if c.ReauthOnRefreshFailure && errors.As(err, &reqErr) {
			c.Logger.Warn("credential refresh rejected, falling back to password login", "account", c.AccountID(), "status", reqErr.StatusCode)
			return c.authenticateLocked(ctx)
		}
		return Credential{}, err
	}
	c.Logger.Debug("refreshed credential", "account", c.AccountID(), "expiresAt", cred.ExpiresAt())
	return cred, nil
}

// Sends a login or refresh request, and on success stores the resulting credential and invokes the update callback.
func (c *APIClient) exchange(ctx context.Context, op string, req *APIRequest) (Credential, error) {
	httpReq, err := req.HTTPRequest(ctx, c.base, c.Headers)
	if err != nil {
		return Credential{}, err
	}

	resp, err := c.send(ctx, httpReq)
	if err != nil {
		authExchanges.WithLabelValues(op, statusLabel(0)).Inc()
		return Credential{}, err
	}
	defer resp.Body.Close()
	authExchanges.WithLabelValues(op, statusLabel(resp.StatusCode)).Inc()

	if !isSuccess(resp.StatusCode) {
		return Credential{}, translateResponse(op, resp)
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credential{}, fmt.Errorf("decoding %s response: %w", op, err)
	}

	cred, err := NewCredential(out.AccessToken, out.RefreshToken, c.now().Add(out.ExpiresIn.Duration()))
	if err != nil {
		return Credential{}, fmt.Errorf("%s response: %w", op, err)
	}

	c.lk.Lock()
	c.cred = &cred
	cb := c.onUpdate
	c.lk.Unlock()

	if cb != nil {
		cb(ctx, cred)
	}
	return cred, nil
}
