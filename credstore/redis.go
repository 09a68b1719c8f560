package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/onetoweb/mybusiness-go/client"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Default lifetime of stored credentials. Entries older than this are assumed to have a refresh token the remote service no longer accepts.
const DefaultRedisTTL = 30 * 24 * time.Hour

type RedisStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return NewRedisStoreFromClient(rdb, ttl), nil
}

func NewRedisStoreFromClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	// no local cache: several processes may share an account, and a stale refresh token is useless
	data := cache.New(&cache.Options{
		Redis: rdb,
	})
	return &RedisStore{
		Data: data,
		TTL:  ttl,
	}
}

func redisCredentialKey(account string) string {
	return "mybusiness/credential/" + account
}

func (s *RedisStore) Load(ctx context.Context, account string) (client.Credential, error) {
	var val string
	err := s.Data.Get(ctx, redisCredentialKey(account), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return client.Credential{}, ErrNotFound
	}
	if err != nil {
		return client.Credential{}, err
	}
	var cred client.Credential
	if err := json.Unmarshal([]byte(val), &cred); err != nil {
		return client.Credential{}, err
	}
	return cred, nil
}

func (s *RedisStore) Save(ctx context.Context, account string, cred client.Credential) error {
	b, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCredentialKey(account),
		Value: string(b),
		TTL:   s.TTL,
	})
}

func (s *RedisStore) Delete(ctx context.Context, account string) error {
	err := s.Data.Delete(ctx, redisCredentialKey(account))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
