package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-antinuke-guard/internal/models"
)

// DefaultPolicyTTL bounds how long a cached guild policy is trusted when no
// write went through this process.
const DefaultPolicyTTL = 30 * time.Second

type cachedPolicy struct {
	policy   *GuildPolicy
	loadedAt time.Time
}

// policyCache keeps the per-guild policy in memory so each gateway event
// does not cost four queries. Every write through the store invalidates the
// affected guild and bumps its generation; a load that started before the
// write carries the old generation and is not cached.
type policyCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedPolicy
	gens    map[string]uint64
}

func newPolicyCache(ttl time.Duration) *policyCache {
	return &policyCache{ttl: ttl, entries: make(map[string]cachedPolicy), gens: make(map[string]uint64)}
}

func (c *policyCache) get(guildID string, now time.Time) (*GuildPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ttl <= 0 {
		return nil, false
	}
	e, ok := c.entries[guildID]
	if !ok || now.Sub(e.loadedAt) >= c.ttl {
		return nil, false
	}
	return e.policy, true
}

func (c *policyCache) generation(guildID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[guildID]
}

// put stores p unless the guild was invalidated after gen was read.
func (c *policyCache) put(guildID string, p *GuildPolicy, now time.Time, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 || c.gens[guildID] != gen {
		return
	}
	c.entries[guildID] = cachedPolicy{policy: p, loadedAt: now}
}

func (c *policyCache) invalidate(guildID string) {
	c.mu.Lock()
	delete(c.entries, guildID)
	c.gens[guildID]++
	c.mu.Unlock()
}

func (c *policyCache) setTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	clear(c.entries)
	c.mu.Unlock()
}

// SetPolicyTTL changes the cache lifetime and drops cached policies; zero
// disables caching. Safe to call while the store is in use.
func (s *SQLiteStore) SetPolicyTTL(ttl time.Duration) {
	s.policies.setTTL(ttl)
}

// LoadPolicy returns the full policy for a guild. For a guild that never ran
// setup the returned policy has a nil Config. The result is shared and must
// not be modified.
func (s *SQLiteStore) LoadPolicy(ctx context.Context, guildID string) (*GuildPolicy, error) {
	now := s.now()
	if p, ok := s.policies.get(guildID, now); ok {
		return p, nil
	}
	gen := s.policies.generation(guildID)

	p := &GuildPolicy{}
	cfg, err := s.GuildConfig(ctx, guildID)
	switch {
	case errors.Is(err, ErrNotProvisioned):
		p.Limits = map[models.ActionType]models.LimitRule{}
		s.policies.put(guildID, p, now, gen)
		return p, nil
	case err != nil:
		return nil, err
	}
	p.Config = cfg

	if p.Limits, err = s.Limits(ctx, guildID); err != nil {
		return nil, err
	}
	if p.Whitelist, err = s.Whitelist(ctx, guildID); err != nil {
		return nil, err
	}
	owners, err := s.ExtraOwners(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, o := range owners {
		p.ExtraOwners = append(p.ExtraOwners, o.UserID)
	}

	s.policies.put(guildID, p, now, gen)
	return p, nil
}
