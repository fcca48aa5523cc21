package sessionmgr

import (
	"context"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/store"
)

// NewTokenResolver builds a provider.TokenResolver implementing spec.md
// §4.2's chain: session by village_id, then by instance_name, then the
// channel account's reserved token. CONFIG_ERROR if none of the three
// yields a usable token — never a process-wide fallback.
func NewTokenResolver(st store.Store, cache *TokenCache) provider.TokenResolver {
	return func(ctx context.Context, tenantKey kernel.VillageID) (string, *provider.ProviderError) {
		if cache != nil {
			if token, ok, err := cache.GetProviderToken(ctx, tenantKey); err == nil && ok {
				return token, nil
			}
		}

		if s, err := st.GetSession(ctx, tenantKey); err == nil && s.ProviderToken.Valid && s.ProviderToken.String != "" {
			cacheToken(ctx, cache, tenantKey, s.ProviderToken.String)
			return s.ProviderToken.String, nil
		}

		if s, err := st.GetSessionByInstanceName(ctx, tenantKey.String()); err == nil && s.ProviderToken.Valid && s.ProviderToken.String != "" {
			cacheToken(ctx, cache, s.VillageID, s.ProviderToken.String)
			return s.ProviderToken.String, nil
		}

		if ca, err := st.GetChannelAccount(ctx, tenantKey); err == nil && ca.WAToken.Valid && ca.WAToken.String != "" {
			cacheToken(ctx, cache, tenantKey, ca.WAToken.String)
			return ca.WAToken.String, nil
		}

		return "", &provider.ProviderError{
			Type:    provider.TypeConfigError,
			Message: "no usable provider token for " + tenantKey.String(),
		}
	}
}

func cacheToken(ctx context.Context, cache *TokenCache, villageID kernel.VillageID, token string) {
	if cache == nil {
		return
	}
	_ = cache.SetProviderToken(ctx, villageID, token)
}
