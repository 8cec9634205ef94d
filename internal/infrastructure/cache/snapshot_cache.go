package cache

import (
	"sync"
	"time"

	"fundarb/internal/domain/model"
)

// State classifies a cache read.
type State int

const (
	Miss State = iota
	Fresh
	Stale
)

type entry struct {
	snapshot  model.FundingSnapshot
	expiresAt time.Time
}

// SnapshotCache is a bounded-TTL cache over (exchange, symbol) funding
// snapshots with a stale-fallback window. It is the only cross-request
// shared mutable state; updates are atomic at the key level.
type SnapshotCache struct {
	mu          sync.Mutex
	ttl         time.Duration
	staleMaxAge time.Duration
	entries     map[model.Key]entry
	now         func() time.Time
}

func New(ttl, staleMaxAge time.Duration) *SnapshotCache {
	return &SnapshotCache{
		ttl:         ttl,
		staleMaxAge: staleMaxAge,
		entries:     make(map[model.Key]entry),
		now:         time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (c *SnapshotCache) SetClock(now func() time.Time) { c.now = now }

// Put stores a snapshot, refusing updates that would move FetchedAt
// backwards for the key.
func (c *SnapshotCache) Put(snap model.FundingSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := snap.Key()
	if prev, ok := c.entries[key]; ok && snap.FetchedAt.Before(prev.snapshot.FetchedAt) {
		return
	}
	c.entries[key] = entry{snapshot: snap, expiresAt: c.now().Add(c.ttl)}
}

// PutAll stores every snapshot under the monotonicity rule.
func (c *SnapshotCache) PutAll(snaps []model.FundingSnapshot) {
	for _, snap := range snaps {
		c.Put(snap)
	}
}

// Get returns the entry state. Stale entries carry SourceTag "stale"
// regardless of what produced them.
func (c *SnapshotCache) Get(key model.Key) (model.FundingSnapshot, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return model.FundingSnapshot{}, Miss
	}
	now := c.now()
	if !now.After(e.expiresAt) {
		return e.snapshot, Fresh
	}
	if now.Sub(e.expiresAt) <= c.staleMaxAge {
		snap := e.snapshot
		snap.SourceTag = model.SourceStale
		return snap, Stale
	}
	delete(c.entries, key)
	return model.FundingSnapshot{}, Miss
}

// VenueSnapshots returns every admissible entry for one venue along with
// whether all of them were fresh. An empty slice means nothing admissible.
func (c *SnapshotCache) VenueSnapshots(exchange model.Exchange) (snaps []model.FundingSnapshot, allFresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	allFresh = true
	for key, e := range c.entries {
		if key.Exchange != exchange {
			continue
		}
		if !now.After(e.expiresAt) {
			snaps = append(snaps, e.snapshot)
			continue
		}
		if now.Sub(e.expiresAt) <= c.staleMaxAge {
			snap := e.snapshot
			snap.SourceTag = model.SourceStale
			snaps = append(snaps, snap)
			allFresh = false
		}
	}
	if len(snaps) == 0 {
		allFresh = false
	}
	return snaps, allFresh
}

// Len reports the number of live entries, counting stale ones.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
