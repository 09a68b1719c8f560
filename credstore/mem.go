package credstore

import (
	"context"
	"time"

	"github.com/onetoweb/mybusiness-go/client"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemStore struct {
	Data *expirable.LRU[string, client.Credential]
}

var _ Store = (*MemStore)(nil)

// A ttl of zero keeps entries until they are evicted for capacity.
func NewMemStore(capacity int, ttl time.Duration) *MemStore {
	return &MemStore{
		Data: expirable.NewLRU[string, client.Credential](capacity, nil, ttl),
	}
}

func (s *MemStore) Load(ctx context.Context, account string) (client.Credential, error) {
	cred, ok := s.Data.Get(account)
	if !ok {
		return client.Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *MemStore) Save(ctx context.Context, account string, cred client.Credential) error {
	s.Data.Add(account, cred)
	return nil
}

func (s *MemStore) Delete(ctx context.Context, account string) error {
	s.Data.Remove(account)
	return nil
}
