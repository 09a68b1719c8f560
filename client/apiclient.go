package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/onetoweb/mybusiness-go/pkg/robusthttp"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// Called with every new credential the client obtains (initial login or refresh). Typically used to persist the credential, so a later process can resume the session with [APIClient.SetCredential].
//
// The callback is invoked synchronously, before the triggering call returns. It must not call [APIClient.Login] or [APIClient.Refresh] on the same client.
type CredentialCallback = func(ctx context.Context, cred Credential)

// Client for the MyBusiness REST API, authenticated as a single account.
//
// The client logs in lazily: no network request is made until the first API call. Before every request the current credential is checked, and if it is missing or expired it is refreshed (or obtained by password login) first.
type APIClient struct {
	// Inner HTTP client. May be customized after the overall [APIClient] struct is created; for example to set a default request timeout.
	Client *http.Client

	// Optional HTTP headers which will be included in all requests. Only a single value per key is included; request-level headers will override any client-level defaults.
	Headers http.Header

	// Optional client-side rate limit. When set, every HTTP exchange (including login and refresh) waits for a token.
	Limiter *rate.Limiter

	// If true, a refresh exchange which the remote service rejects (non-success HTTP status) falls back to a single password login.
	ReauthOnRefreshFailure bool

	Logger *slog.Logger

	base     *url.URL
	username string
	password string
	now      func() time.Time

	// protects cred and onUpdate
	lk       sync.RWMutex
	cred     *Credential
	onUpdate CredentialCallback

	// serializes login and refresh exchanges
	exchangeLk sync.Mutex
}

type Option func(*APIClient)

func WithHTTPClient(c *http.Client) Option {
	return func(ac *APIClient) {
		ac.Client = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(ac *APIClient) {
		ac.Logger = logger
	}
}

// Overrides the time source used to compute credential expiry.
func WithClock(now func() time.Time) Option {
	return func(ac *APIClient) {
		ac.now = now
	}
}

func WithLimiter(lim *rate.Limiter) Option {
	return func(ac *APIClient) {
		ac.Limiter = lim
	}
}

func WithUserAgent(ua string) Option {
	return func(ac *APIClient) {
		ac.Headers.Set("User-Agent", ua)
	}
}

// Seeds the client with an existing credential, eg one restored from storage. A zero Credential leaves the client without one.
func WithCredential(cred Credential) Option {
	return func(ac *APIClient) {
		if cred.IsZero() {
			ac.cred = nil
			return
		}
		ac.cred = &cred
	}
}

func WithCredentialUpdateCallback(cb CredentialCallback) Option {
	return func(ac *APIClient) {
		ac.onUpdate = cb
	}
}

func WithReauthOnRefreshFailure(enabled bool) Option {
	return func(ac *APIClient) {
		ac.ReauthOnRefreshFailure = enabled
	}
}

// Creates a new client for the service at `baseEndpoint` (eg "https://example.mybusiness.nl/api/MyConnect/v1/"). Endpoint paths passed to request methods are resolved relative to this base.
//
// Does not perform any network requests.
func NewAPIClient(baseEndpoint, username, password string, opts ...Option) (*APIClient, error) {
	base, err := url.Parse(baseEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid base endpoint: %w", err)
	}
	if base.Scheme == "" {
		return nil, fmt.Errorf("empty scheme in base endpoint")
	}
	if base.Host == "" {
		return nil, fmt.Errorf("empty hostname in base endpoint")
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path = base.Path + "/"
	}
	base.RawQuery = ""
	base.Fragment = ""

	c := &APIClient{
		Headers: map[string][]string{
			"User-Agent": []string{"mybusiness-go/" + versioninfo.Short()},
		},
		base:     base,
		username: username,
		password: password,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Client == nil {
		c.Client = robusthttp.NewClient()
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("system", "mybusiness-client")
	}
	return c, nil
}

// Base endpoint URL, always with a trailing slash.
func (c *APIClient) BaseEndpoint() string {
	return c.base.String()
}

func (c *APIClient) Username() string {
	return c.username
}

// Stable identifier for the account this client authenticates as ("username@host"). Useful as a key for persisting credentials.
func (c *APIClient) AccountID() string {
	return c.username + "@" + c.base.Host
}

// Returns the current credential, if any.
func (c *APIClient) Credential() (Credential, bool) {
	c.lk.RLock()
	defer c.lk.RUnlock()
	if c.cred == nil {
		return Credential{}, false
	}
	return *c.cred, true
}

// Injects an existing credential (eg, restored from a prior session), replacing any current credential. Does not invoke the update callback.
//
// Passing the zero Credential clears the current credential, so the next request performs a password login.
func (c *APIClient) SetCredential(cred Credential) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if cred.IsZero() {
		c.cred = nil
		return
	}
	c.cred = &cred
}

// Registers the callback invoked with every new credential. Only one callback is held; a later registration replaces an earlier one. A nil callback unregisters.
func (c *APIClient) SetCredentialUpdateCallback(cb CredentialCallback) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.onUpdate = cb
}

// Returns the current credential if it exists and has not expired.
func (c *APIClient) validCredential() (Credential, bool) {
	cred, ok := c.Credential()
	if !ok || cred.ExpiredAt(c.now()) {
		return Credential{}, false
	}
	return cred, true
}

// Returns a current, non-expired credential, running a refresh (or initial login) exchange first if needed.
func (c *APIClient) ensureCredential(ctx context.Context) (Credential, error) {
	if cred, ok := c.validCredential(); ok {
		return cred, nil
	}

	c.exchangeLk.Lock()
	defer c.exchangeLk.Unlock()

	// a concurrent caller may have completed an exchange while we waited on the lock
	if cred, ok := c.validCredential(); ok {
		return cred, nil
	}
	return c.refreshLocked(ctx)
}

// High-level helper for GET requests. Returns the decoded JSON response body as generic values ([map[string]any], []any, [json.Number], string, bool), or nil if the response had no content.
//
// Non-success responses are returned as [*RequestError].
func (c *APIClient) Get(ctx context.Context, endpoint string, query Query) (any, error) {
	var out any
	if err := c.Request(ctx, http.MethodGet, endpoint, nil, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// High-level helper for POST requests. The body is sent as JSON if it is non-empty. See [APIClient.Get] for the return value.
func (c *APIClient) Post(ctx context.Context, endpoint string, body map[string]any, query Query) (any, error) {
	var out any
	if err := c.Request(ctx, http.MethodPost, endpoint, body, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// High-level helper for DELETE requests. See [APIClient.Get] for the return value.
func (c *APIClient) Delete(ctx context.Context, endpoint string, query Query) (any, error) {
	var out any
	if err := c.Request(ctx, http.MethodDelete, endpoint, nil, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sends an authenticated JSON request and decodes the JSON response in to `out` (which may be nil to discard the response). An empty response body leaves `out` untouched.
//
// `body` is only sent if it is non-empty. `query` is appended to the endpoint in order.
//
// Non-success responses are returned as [*RequestError]. Failures with no HTTP response at all are returned as the original transport error.
func (c *APIClient) Request(ctx context.Context, method, endpoint string, body map[string]any, query Query, out any) error {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding JSON request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyJSON)
	}

	req := NewAPIRequest(method, endpoint, bodyReader)
	req.QueryParams = query

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return translateResponse(OpRequest, resp)
	}
	return decodeJSON(resp.Body, out)
}

// Full-featured method for authenticated API requests.
//
// Ensures a valid credential (logging in or refreshing first if needed), attaches the access token and standard headers, and sends the request. Any HTTP response is returned as-is, including non-success statuses; callers are responsible for closing the body. Credential exchange failures are returned as errors.
func (c *APIClient) Do(ctx context.Context, req *APIRequest) (*http.Response, error) {
	cred, err := c.ensureCredential(ctx)
	if err != nil {
		return nil, err
	}

	hdr := c.Headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "close")
	hdr.Set("Content-Type", "application/json")

	httpReq, err := req.HTTPRequest(ctx, c.base, hdr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("accesstoken", cred.AccessToken())
	httpReq.Close = true

	start := time.Now()
	resp, err := c.send(ctx, httpReq)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	apiRequests.WithLabelValues(req.Method, statusLabel(status)).Inc()
	apiRequestDuration.WithLabelValues(req.Method, statusLabel(status)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.Logger.Debug("API request failed", "method", req.Method, "endpoint", req.Endpoint, "err", err)
		return nil, err
	}
	c.Logger.Debug("API request", "method", req.Method, "endpoint", req.Endpoint, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// Sends a single HTTP exchange, after waiting on the rate limiter (if any). Transport errors are returned unchanged.
func (c *APIClient) send(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return c.Client.Do(httpReq)
}

func decodeJSON(body io.Reader, out any) error {
	if out == nil {
		// drain body before returning
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			// no content
			return nil
		}
		return fmt.Errorf("failed decoding JSON response body: %w", err)
	}
	return nil
}
