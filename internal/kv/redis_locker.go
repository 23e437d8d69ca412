package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisLocker implements Locker as a leased, reentrant-per-token mutex
// stored in Redis: the key's value is "<ownerToken>:<holdCount>", and the
// three Lua scripts below make acquire-or-reenter, renew, and release
// each a single atomic round trip.
type RedisLocker struct {
	rdb *redis.Client
	log *logrus.Entry
}

// NewRedisLocker wraps an existing *redis.Client.
func NewRedisLocker(rdb *redis.Client, log *logrus.Entry) *RedisLocker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisLocker{rdb: rdb, log: log}
}

// acquireScript: if the key is absent, set it to "<token>:1" with the
// lease TTL and return 1 (acquired). If present and owned by token,
// bump the hold count, refresh the TTL, and return 1 (reentered). If
// owned by someone else, return 0 (contended).
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local leaseMs = ARGV[2]
local current = redis.call("GET", key)
if current == false then
	redis.call("SET", key, token .. ":1", "PX", leaseMs)
	return 1
end
local sep = string.find(current, ":")
local owner = string.sub(current, 1, sep - 1)
if owner == token then
	local count = tonumber(string.sub(current, sep + 1))
	redis.call("SET", key, token .. ":" .. (count + 1), "PX", leaseMs)
	return 1
end
return 0
`)

// renewScript refreshes the TTL only if the key is still owned by token,
// returning 1 if renewed, 0 if the lease was already lost to someone
// else or expired out from under us.
var renewScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local leaseMs = ARGV[2]
local current = redis.call("GET", key)
if current == false then
	return 0
end
local sep = string.find(current, ":")
local owner = string.sub(current, 1, sep - 1)
if owner ~= token then
	return 0
end
redis.call("PEXPIRE", key, leaseMs)
return 1
`)

// releaseScript decrements the hold count if owned by token, deleting the
// key once it reaches zero. Releasing a lock we no longer own is a no-op,
// matching "Unlock is safe to call even after lease expiry."
var releaseScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local current = redis.call("GET", key)
if current == false then
	return 0
end
local sep = string.find(current, ":")
local owner = string.sub(current, 1, sep - 1)
if owner ~= token then
	return 0
end
local count = tonumber(string.sub(current, sep + 1))
if count <= 1 then
	redis.call("DEL", key)
else
	redis.call("SET", key, token .. ":" .. (count - 1), "KEEPTTL")
end
return 1
`)

const lockPollInterval = 50 * time.Millisecond

func (l *RedisLocker) TryLock(ctx context.Context, name string, wait, lease time.Duration) (LockHandle, error) {
	token := OwnerTokenFrom(ctx)
	if token == "" {
		token = uuid.NewString()
	}
	key := "lock:" + name
	deadline := time.Now().Add(wait)
	leaseMs := strconv.FormatInt(lease.Milliseconds(), 10)

	for {
		acquired, err := acquireScript.Run(ctx, l.rdb, []string{key}, token, leaseMs).Int()
		if err != nil {
			return nil, fmt.Errorf("kv: acquire lock %s: %w", name, err)
		}
		if acquired == 1 {
			h := &redisLockHandle{
				locker: l,
				key:    key,
				name:   name,
				token:  token,
				lease:  lease,
			}
			h.held.Store(true)
			h.renewCtx, h.renewCancel = context.WithCancel(context.Background())
			go h.renewLoop()
			return h, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

type redisLockHandle struct {
	locker      *RedisLocker
	key         string
	name        string
	token       string
	lease       time.Duration
	held        atomic.Bool
	renewCtx    context.Context
	renewCancel context.CancelFunc
}

func (h *redisLockHandle) IsHeld() bool {
	return h.held.Load()
}

func (h *redisLockHandle) renewLoop() {
	interval := h.lease / 3
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	leaseMs := strconv.FormatInt(h.lease.Milliseconds(), 10)
	for {
		select {
		case <-h.renewCtx.Done():
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(context.Background(), h.lease)
			ok, err := renewScript.Run(renewCtx, h.locker.rdb, []string{h.key}, h.token, leaseMs).Int()
			cancel()
			if err != nil || ok != 1 {
				h.held.Store(false)
				h.locker.log.WithFields(logrus.Fields{
					"lock": h.name,
				}).Warn("lock lease renewal failed, handle is no longer held")
				return
			}
		}
	}
}

func (h *redisLockHandle) Unlock(ctx context.Context) error {
	if h.renewCancel != nil {
		h.renewCancel()
	}
	h.held.Store(false)
	_, err := releaseScript.Run(ctx, h.locker.rdb, []string{h.key}, h.token).Int()
	if err != nil && !strings.Contains(err.Error(), "redis: nil") {
		return err
	}
	return nil
}
