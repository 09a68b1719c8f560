package credstore

import (
	"context"
	"errors"

	"github.com/onetoweb/mybusiness-go/client"
)

var ErrNotFound = errors.New("no stored credential for account")

// Persistent storage for API credentials, keyed by account identifier (see [client.APIClient.AccountID]).
type Store interface {
	// Returns ErrNotFound if nothing is stored for the account.
	Load(ctx context.Context, account string) (client.Credential, error)
	Save(ctx context.Context, account string, cred client.Credential) error
	// Deleting an account with nothing stored is not an error.
	Delete(ctx context.Context, account string) error
}
