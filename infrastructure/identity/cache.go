package identity

import (
	"context"
	"strings"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
)

// CachedProvider is a read-through TTL cache in front of an identity provider.
// Misses are cached too, so unknown addresses are not looked up on every read.
type CachedProvider struct {
	next      interfaces.IdentityProvider
	byFID     *expirable.LRU[int64, *entities.Profile]
	byAddress *expirable.LRU[string, *entities.Profile]
}

var _ interfaces.IdentityProvider = (*CachedProvider)(nil)

// NewCachedProvider wraps next with caches of the given size and TTL
func NewCachedProvider(next interfaces.IdentityProvider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{
		next:      next,
		byFID:     expirable.NewLRU[int64, *entities.Profile](size, nil, ttl),
		byAddress: expirable.NewLRU[string, *entities.Profile](size, nil, ttl),
	}
}

func (c *CachedProvider) ProfileByFID(ctx context.Context, fid int64) (*entities.Profile, error) {
	if profile, ok := c.byFID.Get(fid); ok {
		return profile, nil
	}
	profile, err := c.next.ProfileByFID(ctx, fid)
	if err != nil {
		return nil, err
	}
	c.byFID.Add(fid, profile)
	return profile, nil
}

func (c *CachedProvider) ProfilesByFID(ctx context.Context, fids []int64) (map[int64]*entities.Profile, error) {
	out := make(map[int64]*entities.Profile, len(fids))
	var missing []int64
	seen := make(map[int64]bool, len(fids))
	for _, fid := range fids {
		if seen[fid] {
			continue
		}
		seen[fid] = true
		if profile, ok := c.byFID.Get(fid); ok {
			if profile != nil {
				out[fid] = profile
			}
			continue
		}
		missing = append(missing, fid)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.ProfilesByFID(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, fid := range missing {
		profile := fetched[fid]
		c.byFID.Add(fid, profile)
		if profile != nil {
			out[fid] = profile
		}
	}

	log.WithFields(log.Fields{
		"requested": len(fids),
		"fetched":   len(missing),
	}).Debug("Identity cache refreshed")
	return out, nil
}

func (c *CachedProvider) ProfileByAddress(ctx context.Context, address string) (*entities.Profile, error) {
	key := strings.ToLower(address)
	if profile, ok := c.byAddress.Get(key); ok {
		return profile, nil
	}
	profile, err := c.next.ProfileByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	c.byAddress.Add(key, profile)
	if profile != nil {
		c.byFID.Add(profile.FID, profile)
	}
	return profile, nil
}
