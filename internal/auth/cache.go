package auth

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"faithbase.org/internal/obs"
)

// SnapshotTTL bounds how long a revoked grant may still be served from a
// stale cached snapshot. Writes invalidate eagerly; the TTL is the backstop.
const SnapshotTTL = 300 * time.Second

// SnapshotCache holds resolved membership snapshots keyed by
// (userID, churchID). It is a performance optimization only: the store
// stays the source of truth and every miss falls through to it.
type SnapshotCache struct {
	backing *gocache.Cache
}

// NewSnapshotCache builds a cache with the given TTL (SnapshotTTL when
// ttl <= 0) and a one-minute janitor interval.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = SnapshotTTL
	}
	return &SnapshotCache{backing: gocache.New(ttl, time.Minute)}
}

func snapshotKey(userID, churchID string) string {
	return userID + "|" + churchID
}

// Get returns the cached snapshot for the pair, if present and fresh.
func (c *SnapshotCache) Get(userID, churchID string) (Snapshot, bool) {
	if c == nil {
		return Snapshot{}, false
	}
	v, ok := c.backing.Get(snapshotKey(userID, churchID))
	obs.AuthzCacheLookup(ok)
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := v.(Snapshot)
	if !ok {
		return Snapshot{}, false
	}
	return snap, true
}

// Put stores a snapshot under the pair key for the default TTL.
func (c *SnapshotCache) Put(userID, churchID string, snap Snapshot) {
	if c == nil {
		return
	}
	c.backing.SetDefault(snapshotKey(userID, churchID), snap)
}

// Invalidate evicts the pair. Stores call this synchronously on any write
// affecting the pair, before reporting success to the writer.
func (c *SnapshotCache) Invalidate(userID, churchID string) {
	if c == nil {
		return
	}
	c.backing.Delete(snapshotKey(userID, churchID))
}

// Flush drops every cached snapshot.
func (c *SnapshotCache) Flush() {
	if c == nil {
		return
	}
	c.backing.Flush()
}
