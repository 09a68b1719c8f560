package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/onetoweb/mybusiness-go/client"
	"github.com/onetoweb/mybusiness-go/credstore"
	"github.com/onetoweb/mybusiness-go/pkg/robusthttp"
	"github.com/onetoweb/mybusiness-go/util/cliutil"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// Expands a bare hostname to the standard API base path. Full URLs are passed through.
func baseEndpoint(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("MyBusiness host is required (--host or MYBUSINESS_HOST)")
	}
	if strings.Contains(host, "://") {
		return host, nil
	}
	u := url.URL{
		Scheme: "https",
		Host:   strings.TrimSuffix(host, "/"),
		Path:   "/api/MyConnect/v1/",
	}
	return u.String(), nil
}

func openStore(cctx *cli.Context) (credstore.Store, error) {
	val := cctx.String("session-store")
	switch {
	case val == "" || val == "file":
		return credstore.NewFileStore()
	case val == "memory":
		return credstore.NewMemStore(16, 0), nil
	case strings.HasPrefix(val, "redis://") || strings.HasPrefix(val, "rediss://"):
		return credstore.NewRedisStore(val, credstore.DefaultRedisTTL)
	case cliutil.IsDatabaseURL(val):
		db, err := cliutil.SetupDatabase(val, 1)
		if err != nil {
			return nil, err
		}
		return credstore.NewGormStore(db)
	}
	return nil, fmt.Errorf("unsupported session store: %q", val)
}

var stdinIsTerminal = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

func readPassword() (string, error) {
	if !stdinIsTerminal() {
		return "", fmt.Errorf("password is required (--password or MYBUSINESS_PASSWORD)")
	}
	fmt.Fprint(os.Stderr, "password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type passwordNeed int

const (
	passwordNever passwordNeed = iota
	passwordWithoutSession
	passwordAlways
)

// Creates an API client from global flags, resuming any stored session and persisting new credentials.
//
// If no password was given by flag or env var, and 'need' calls for one, the user is prompted on a terminal.
func loadClient(ctx context.Context, cctx *cli.Context, need passwordNeed) (*client.APIClient, credstore.Store, error) {
	endpoint, err := baseEndpoint(cctx.String("host"))
	if err != nil {
		return nil, nil, err
	}
	username := cctx.String("username")
	if username == "" {
		return nil, nil, fmt.Errorf("username is required (--username or MYBUSINESS_USERNAME)")
	}

	store, err := openStore(cctx)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}

	httpClient := robusthttp.NewClient(robusthttp.WithMaxRetries(cctx.Int("retries")))
	httpClient.Timeout = cctx.Duration("timeout")

	opts := []client.Option{
		client.WithHTTPClient(httpClient),
		client.WithLogger(slog.Default().With("system", "mybusiness-client")),
	}
	if rps := cctx.Float64("rate-limit"); rps > 0 {
		opts = append(opts, client.WithLimiter(rate.NewLimiter(rate.Limit(rps), 1)))
	}

	password := cctx.String("password")
	c, err := client.NewAPIClient(endpoint, username, password, opts...)
	if err != nil {
		return nil, nil, err
	}

	resumed, err := credstore.Attach(ctx, store, c, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("loading stored session: %w", err)
	}
	if password == "" && (need == passwordAlways || (need == passwordWithoutSession && !resumed)) {
		password, err = readPassword()
		if err != nil {
			return nil, nil, err
		}
		// re-create with the password, keeping the resumed session
		cred, ok := c.Credential()
		if ok {
			opts = append(opts, client.WithCredential(cred))
		}
		c, err = client.NewAPIClient(endpoint, username, password, opts...)
		if err != nil {
			return nil, nil, err
		}
		c.SetCredentialUpdateCallback(credstore.Persist(store, c.AccountID(), nil))
	}
	return c, store, nil
}
