package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// In-process stand-in for the remote service. Logs in "user1" with "password1", and hands out access1/refresh1 on login and access2/refresh2 on refresh.
type fakeService struct {
	mu        sync.Mutex
	logins    int
	refreshes int
	requests  int
	last      *http.Request
	lastBody  []byte

	loginContentLength int64
}

func (f *fakeService) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.refreshes, f.requests
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/api/v1/MyAuth/create":
		f.logins++
		f.loginContentLength = r.ContentLength
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if body["username"] != "user1" || body["password"] != passwordDigest("password1") {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid login"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"accesstoken":"access1","refreshtoken":"refresh1","expiresin":3600}`)
	case "/api/v1/MyAuth/refresh":
		f.refreshes++
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("refreshtoken") != "refresh1" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid refresh token"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		// refresh sends a numeric string, login a number
		fmt.Fprint(w, `{"accesstoken":"access2","refreshtoken":"refresh2","expiresin":"7200"}`)
	default:
		f.requests++
		f.last = r
		f.lastBody, _ = io.ReadAll(r.Body)
		tok := r.Header.Get("accesstoken")
		if tok != "access1" && tok != "access2" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid access token"}`)
			return
		}
		switch r.URL.Path {
		case "/api/v1/product":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"results":[{"productkey":"abc","price":12.5}],"token":%q}`, tok)
		case "/api/v1/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/missing":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestClient(t *testing.T, srvURL string, password string, opts ...Option) *APIClient {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	c, err := NewAPIClient(srvURL+"/api/v1", "user1", password, opts...)
	require.NoError(t, err)
	return c
}

func mustCredential(t *testing.T, access, refresh string, expiresAt time.Time) Credential {
	cred, err := NewCredential(access, refresh, expiresAt)
	require.NoError(t, err)
	return cred
}

func TestNewAPIClient(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	c, err := NewAPIClient("https://example.mybusiness.nl/api/MyConnect/v1", "user1", "password1")
	require.NoError(err)
	assert.Equal("https://example.mybusiness.nl/api/MyConnect/v1/", c.BaseEndpoint())
	assert.Equal("user1@example.mybusiness.nl", c.AccountID())
	assert.Equal("user1", c.Username())
	assert.True(strings.HasPrefix(c.Headers.Get("User-Agent"), "mybusiness-go/"))
	_, ok := c.Credential()
	assert.False(ok)

	_, err = NewAPIClient("example.mybusiness.nl/api", "user1", "password1")
	assert.Error(err)

	_, err = NewAPIClient("https://", "user1", "password1")
	assert.Error(err)

	c, err = NewAPIClient("https://example.mybusiness.nl", "user1", "password1", WithUserAgent("test-agent"))
	require.NoError(err)
	assert.Equal("https://example.mybusiness.nl/", c.BaseEndpoint())
	assert.Equal("test-agent", c.Headers.Get("User-Agent"))
}

func TestLazyLogin(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var updates []Credential
	c := newTestClient(t, srv.URL, "password1")
	c.SetCredentialUpdateCallback(func(ctx context.Context, cred Credential) {
		updates = append(updates, cred)
	})

	// construction is lazy
	logins, refreshes, requests := fake.counts()
	assert.Equal(0, logins+refreshes+requests)

	out, err := c.Get(ctx, "product", nil)
	require.NoError(err)
	logins, refreshes, requests = fake.counts()
	assert.Equal(1, logins)
	assert.Equal(0, refreshes)
	assert.Equal(1, requests)
	fake.mu.Lock()
	assert.Greater(fake.loginContentLength, int64(0))
	fake.mu.Unlock()

	require.Len(updates, 1)
	assert.Equal("access1", updates[0].AccessToken())
	assert.Equal("refresh1", updates[0].RefreshToken())
	assert.Equal(testNow.Add(time.Hour), updates[0].ExpiresAt())

	obj, ok := out.(map[string]any)
	require.True(ok)
	assert.Equal("access1", obj["token"])
	results, ok := obj["results"].([]any)
	require.True(ok)
	require.Len(results, 1)
	product := results[0].(map[string]any)
	assert.Equal("abc", product["productkey"])
	assert.Equal(json.Number("12.5"), product["price"])

	// credential is reused
	_, err = c.Get(ctx, "product", nil)
	require.NoError(err)
	logins, refreshes, requests = fake.counts()
	assert.Equal(1, logins)
	assert.Equal(0, refreshes)
	assert.Equal(2, requests)
	assert.Len(updates, 1)
}

func TestSeededCredential(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	calls := 0
	c := newTestClient(t, srv.URL, "password1",
		WithCredential(mustCredential(t, "access1", "refresh1", testNow.Add(time.Second))),
		WithCredentialUpdateCallback(func(ctx context.Context, cred Credential) { calls++ }),
	)

	_, err := c.Get(ctx, "product", nil)
	require.NoError(err)
	logins, refreshes, requests := fake.counts()
	assert.Equal(0, logins)
	assert.Equal(0, refreshes)
	assert.Equal(1, requests)
	assert.Equal(0, calls)
}

func TestZeroCredentialClears(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1", WithCredential(Credential{}))
	_, ok := c.Credential()
	assert.False(ok)

	c.SetCredential(mustCredential(t, "stale", "stale", testNow.Add(-time.Hour)))
	c.SetCredential(Credential{})
	_, ok = c.Credential()
	assert.False(ok)

	// no refresh with an empty refresh token; a password login instead
	_, err := c.Get(ctx, "product", nil)
	require.NoError(err)
	logins, refreshes, requests := fake.counts()
	assert.Equal(1, logins)
	assert.Equal(0, refreshes)
	assert.Equal(1, requests)
}

func TestExpiredCredentialRefresh(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var updates []Credential
	c := newTestClient(t, srv.URL, "password1")
	c.SetCredentialUpdateCallback(func(ctx context.Context, cred Credential) {
		updates = append(updates, cred)
	})

	// expiring exactly now counts as expired
	prior := mustCredential(t, "access1", "refresh1", testNow)
	c.SetCredential(prior)
	assert.Len(updates, 0)

	out, err := c.Get(ctx, "product", nil)
	require.NoError(err)
	logins, refreshes, requests := fake.counts()
	assert.Equal(0, logins)
	assert.Equal(1, refreshes)
	assert.Equal(1, requests)
	assert.Equal("access2", out.(map[string]any)["token"])

	require.Len(updates, 1)
	assert.Equal("access2", updates[0].AccessToken())
	assert.Equal("refresh2", updates[0].RefreshToken())
	assert.Equal(testNow.Add(2*time.Hour), updates[0].ExpiresAt())

	// prior value is untouched by replacement
	assert.Equal("access1", prior.AccessToken())
	assert.Equal("refresh1", prior.RefreshToken())
	assert.Equal(testNow, prior.ExpiresAt())

	current, ok := c.Credential()
	require.True(ok)
	assert.Equal("access2", current.AccessToken())
}

func TestRequestHeaders(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1",
		WithCredential(mustCredential(t, "access1", "refresh1", testNow.Add(time.Hour))),
		WithUserAgent("test-agent"),
	)

	_, err := c.Get(ctx, "product", nil)
	require.NoError(err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotNil(fake.last)
	assert.Equal("access1", fake.last.Header.Get("accesstoken"))
	assert.Equal("no-cache", fake.last.Header.Get("Cache-Control"))
	assert.Equal("application/json", fake.last.Header.Get("Content-Type"))
	assert.Equal("test-agent", fake.last.Header.Get("User-Agent"))
	assert.True(fake.last.Close)
}

func TestRequestQuery(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1",
		WithCredential(mustCredential(t, "access1", "refresh1", testNow.Add(time.Hour))),
	)

	_, err := c.Get(ctx, "product", Query{{Key: "page", Value: 1}})
	require.NoError(err)
	fake.mu.Lock()
	assert.True(strings.HasSuffix(fake.last.RequestURI, "/api/v1/product?page=1"))
	fake.mu.Unlock()

	_, err = c.Get(ctx, "product", Query{})
	require.NoError(err)
	fake.mu.Lock()
	assert.Equal("/api/v1/product", fake.last.RequestURI)
	fake.mu.Unlock()

	_, err = c.Get(ctx, "/product", Query{}.Add("search", "blue chair").Add("page", 2))
	require.NoError(err)
	fake.mu.Lock()
	assert.Equal("/api/v1/product?search=blue+chair&page=2", fake.last.RequestURI)
	fake.mu.Unlock()
}

func TestRequestBody(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1",
		WithCredential(mustCredential(t, "access1", "refresh1", testNow.Add(time.Hour))),
	)

	body := map[string]any{
		"description": "Blue chair",
		"price":       12.5,
		"tags":        []any{"a", "b"},
	}
	_, err := c.Post(ctx, "product", body, nil)
	require.NoError(err)
	fake.mu.Lock()
	assert.Equal(http.MethodPost, fake.last.Method)
	assert.JSONEq(`{"description":"Blue chair","price":12.5,"tags":["a","b"]}`, string(fake.lastBody))
	assert.Equal(int64(len(fake.lastBody)), fake.last.ContentLength)
	assert.Empty(fake.last.TransferEncoding)
	fake.mu.Unlock()

	_, err = c.Post(ctx, "product", map[string]any{}, nil)
	require.NoError(err)
	fake.mu.Lock()
	assert.Empty(fake.lastBody)
	assert.Equal(int64(0), fake.last.ContentLength)
	fake.mu.Unlock()

	_, err = c.Delete(ctx, "product", Query{{Key: "id", Value: "abc"}})
	require.NoError(err)
	fake.mu.Lock()
	assert.Equal(http.MethodDelete, fake.last.Method)
	assert.Empty(fake.lastBody)
	fake.mu.Unlock()
}

func TestEmptyResponse(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1")

	out, err := c.Get(ctx, "empty", nil)
	require.NoError(err)
	assert.Nil(out)
}

func TestRequestError(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1")

	out, err := c.Get(ctx, "missing", nil)
	assert.Nil(out)
	require.Error(err)

	var reqErr *RequestError
	require.True(errors.As(err, &reqErr))
	assert.Equal(OpRequest, reqErr.Op)
	assert.Equal(404, reqErr.StatusCode)
	assert.Equal(`{"error":"not found"}`, reqErr.Message)
	assert.Equal("application/json", reqErr.Header.Get("Content-Type"))
	assert.True(errors.Is(err, ErrNotFound))
	assert.False(errors.Is(err, ErrUnauthorized))

	var detail map[string]string
	require.NoError(reqErr.DecodeBody(&detail))
	assert.Equal("not found", detail["error"])
}

func TestTransportError(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	// grab a URL which will refuse connections
	srv := httptest.NewServer(http.NotFoundHandler())
	srvURL := srv.URL
	srv.Close()

	{
		c := newTestClient(t, srvURL, "password1",
			WithHTTPClient(&http.Client{}),
			WithCredential(mustCredential(t, "access1", "refresh1", testNow.Add(time.Hour))),
		)
		_, err := c.Get(ctx, "product", nil)
		require.Error(err)

		var reqErr *RequestError
		assert.False(errors.As(err, &reqErr))
		var urlErr *url.Error
		assert.True(errors.As(err, &urlErr))
	}

	{
		// same for the login exchange
		c := newTestClient(t, srvURL, "password1", WithHTTPClient(&http.Client{}))
		_, err := c.Get(ctx, "product", nil)
		require.Error(err)

		var reqErr *RequestError
		assert.False(errors.As(err, &reqErr))
		var urlErr *url.Error
		assert.True(errors.As(err, &urlErr))
	}
}

func TestConcurrentRequestsShareLogin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fake := &fakeService{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv.URL, "password1")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(ctx, "product", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(err)
	}

	logins, refreshes, requests := fake.counts()
	assert.Equal(1, logins)
	assert.Equal(0, refreshes)
	assert.Equal(8, requests)
}
