package auth

import (
	"testing"
	"time"
)

func TestSnapshotCacheRoundTrip(t *testing.T) {
	c := NewSnapshotCache(time.Minute)
	snap := Snapshot{Membership: Membership{ID: "m1", UserID: "u1", ChurchID: "ch1", IsActive: true}}

	if _, ok := c.Get("u1", "ch1"); ok {
		t.Fatal("empty cache returned a snapshot")
	}
	c.Put("u1", "ch1", snap)
	got, ok := c.Get("u1", "ch1")
	if !ok {
		t.Fatal("cached snapshot missing")
	}
	if got.Membership.ID != "m1" {
		t.Fatalf("got membership %q, want m1", got.Membership.ID)
	}
	// The pair key is exact: same user, different church misses.
	if _, ok := c.Get("u1", "ch2"); ok {
		t.Fatal("snapshot leaked across churches")
	}
	if _, ok := c.Get("u2", "ch1"); ok {
		t.Fatal("snapshot leaked across users")
	}
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	c := NewSnapshotCache(time.Minute)
	c.Put("u1", "ch1", Snapshot{})
	c.Put("u1", "ch2", Snapshot{})

	c.Invalidate("u1", "ch1")
	if _, ok := c.Get("u1", "ch1"); ok {
		t.Fatal("invalidated entry still cached")
	}
	if _, ok := c.Get("u1", "ch2"); !ok {
		t.Fatal("invalidation evicted an unrelated pair")
	}

	c.Flush()
	if _, ok := c.Get("u1", "ch2"); ok {
		t.Fatal("flush left an entry behind")
	}
}

func TestSnapshotCacheExpiry(t *testing.T) {
	c := NewSnapshotCache(20 * time.Millisecond)
	c.Put("u1", "ch1", Snapshot{})
	if _, ok := c.Get("u1", "ch1"); !ok {
		t.Fatal("fresh entry missing")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("u1", "ch1"); ok {
		t.Fatal("expired entry still served")
	}
}

func TestSnapshotCacheNilSafe(t *testing.T) {
	var c *SnapshotCache
	if _, ok := c.Get("u1", "ch1"); ok {
		t.Fatal("nil cache returned a snapshot")
	}
	c.Put("u1", "ch1", Snapshot{})
	c.Invalidate("u1", "ch1")
	c.Flush()
}
