// Package kv defines the shared key-value store and distributed lock
// primitives (C1) every other component depends on: atomic
// set-if-absent, hash/set/sorted-set operations, and leased reentrant
// locks that fail closed when a lease can't be renewed.
package kv

import (
	"context"
	"time"
)

// Store is the shared KV surface. All collection mutations are atomic at
// the store (never read-modify-write from the caller), per the
// concurrency design's "Shared KV: all collection mutations use the
// store's atomic primitives."
type Store interface {
	// SetIfAbsent sets key to value with the given ttl only if key does
	// not already exist, returning whether it set.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)

	// Hash operations.
	HashPutAll(ctx context.Context, key string, fields map[string]string) error
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashDelete(ctx context.Context, key string, fields ...string) error
	HashLen(ctx context.Context, key string) (int, error)

	// Set operations.
	AddToSet(ctx context.Context, key string, members ...string) error
	RemoveFromSet(ctx context.Context, key string, members ...string) error
	SizeOfSet(ctx context.Context, key string) (int, error)
	SetMembers(ctx context.Context, key string) ([]string, error)
	IsSetMember(ctx context.Context, key, member string) (bool, error)

	// Sorted-set operations (used for queue ordering by join time).
	ScoredAdd(ctx context.Context, key string, member string, score float64) error
	ScoredRemove(ctx context.Context, key string, member string) error
	ScoredRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Keys lists every key matching a glob pattern, used by the janitor's
	// reconciliation sweep. It scans the whole keyspace, unlike the
	// collection reads above, which are linear only in one key's size.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// LockHandle represents a held (or formerly held) distributed lock. Once
// IsHeld reports false, no further operation guarded by this handle may
// proceed — the caller must treat it as LockLost and abort.
type LockHandle interface {
	IsHeld() bool
	// Unlock releases the lock. Safe to call even if the lease already
	// expired; it is a best-effort compare-and-delete.
	Unlock(ctx context.Context) error
}

// Locker acquires named, leased, reentrant-per-task locks.
type Locker interface {
	// TryLock attempts to acquire name, waiting up to waitMs for
	// contention to clear, with a lease of leaseMs once acquired. It
	// returns a nil handle (not an error) if the wait elapses without
	// acquiring — callers translate that to errs.Contended themselves so
	// they can attach match/phase context.
	TryLock(ctx context.Context, name string, wait, lease time.Duration) (LockHandle, error)
}
