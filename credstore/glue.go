package credstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onetoweb/mybusiness-go/client"
)

// Returns a credential update callback which saves every new credential for the account. The callback has no error return, so save failures are logged.
func Persist(store Store, account string, logger *slog.Logger) client.CredentialCallback {
	if logger == nil {
		logger = slog.Default().With("system", "credstore")
	}
	return func(ctx context.Context, cred client.Credential) {
		if err := store.Save(ctx, account, cred); err != nil {
			logger.Error("failed to persist credential", "account", account, "err", err)
		}
	}
}

// Seeds the client with the stored credential for its account, if any. Expired credentials are seeded too: the client will use the refresh token on the next request.
//
// Returns false if nothing was stored.
func Resume(ctx context.Context, store Store, c *client.APIClient) (bool, error) {
	cred, err := store.Load(ctx, c.AccountID())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.SetCredential(cred)
	return true, nil
}

// Resumes any stored session for the client, and registers a callback persisting all future credentials.
func Attach(ctx context.Context, store Store, c *client.APIClient, logger *slog.Logger) (bool, error) {
	resumed, err := Resume(ctx, store, c)
	if err != nil {
		return false, err
	}
	c.SetCredentialUpdateCallback(Persist(store, c.AccountID(), logger))
	return resumed, nil
}
