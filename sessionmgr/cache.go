package sessionmgr

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

const tokenCacheTTL = 5 * time.Minute

// TokenCache is a Redis read-through cache in front of Store's session
// lookups, so the token-resolution chain doesn't hit Postgres on every
// outbound send. API keys are never cached in plaintext: only a bcrypt
// hash is kept, so a cache compromise can verify but not exfiltrate.
type TokenCache struct {
	redis *redis.Client
}

func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{redis: client}
}

func providerTokenKey(villageID kernel.VillageID) string {
	return "sessionmgr:token:" + villageID.String()
}

func apiKeyHashKey(villageID kernel.VillageID) string {
	return "sessionmgr:apikeyhash:" + villageID.String()
}

// GetProviderToken returns (token, true, nil) on a cache hit, ("", false,
// nil) on a clean miss.
func (c *TokenCache) GetProviderToken(ctx context.Context, villageID kernel.VillageID) (string, bool, error) {
	token, err := c.redis.Get(ctx, providerTokenKey(villageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (c *TokenCache) SetProviderToken(ctx context.Context, villageID kernel.VillageID, token string) error {
	return c.redis.Set(ctx, providerTokenKey(villageID), token, tokenCacheTTL).Err()
}

func (c *TokenCache) InvalidateProviderToken(ctx context.Context, villageID kernel.VillageID) error {
	return c.redis.Del(ctx, providerTokenKey(villageID)).Err()
}

// CacheAPIKeyHash stores bcrypt(apiKey) so a later presented key can be
// verified without a DB round trip or plaintext storage.
func (c *TokenCache) CacheAPIKeyHash(ctx context.Context, villageID kernel.VillageID, apiKey string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, apiKeyHashKey(villageID), hash, tokenCacheTTL).Err()
}

// ErrCacheMiss signals the caller should resolve via Store and repopulate
// the cache.
var ErrCacheMiss = errors.New("sessionmgr: cache miss")

// VerifyAPIKey checks presented against the cached bcrypt hash. Returns
// ErrCacheMiss if nothing is cached for this village.
func (c *TokenCache) VerifyAPIKey(ctx context.Context, villageID kernel.VillageID, presented string) (bool, error) {
	hash, err := c.redis.Get(ctx, apiKeyHashKey(villageID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, ErrCacheMiss
	}
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil, nil
}
