// Package kvtest provides an in-memory kv.Store and kv.Locker so the
// component test suites (§8's invariants, laws, and boundary behaviours)
// can be exercised without a real Redis instance.
package kvtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftlobby/matchcore/internal/kv"
)

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Store is an in-memory kv.Store. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	values map[string]entry
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
}

// New creates an empty fake store.
func New() *Store {
	return &Store{
		values: make(map[string]entry),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		zsets:  make(map[string]map[string]float64),
	}
}

func (s *Store) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.values[key]; ok && !e.expired(now) {
		return false, nil
	}
	s.values[key] = s.mkEntry(value, ttl, now)
	return true, nil
}

func (s *Store) mkEntry(value string, ttl time.Duration, now time.Time) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	return e
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[key]
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = s.mkEntry(value, ttl, time.Now())
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
		delete(s.hashes, k)
		delete(s.sets, k)
		delete(s.zsets, k)
	}
	return nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.values[key]; ok {
		e.expires = time.Now().Add(ttl)
		s.values[key] = e
	}
	return nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) { return s.addInt(key, 1) }
func (s *Store) Decr(ctx context.Context, key string) (int64, error) { return s.addInt(key, -1) }

func (s *Store) addInt(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.values[key]
	n := parseInt(e.value) + delta
	e.value = formatInt(n)
	s.values[key] = e
	return n, nil
}

func (s *Store) HashPutAll(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (s *Store) HashGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (s *Store) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) HashDelete(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (s *Store) HashLen(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes[key]), nil
}

func (s *Store) AddToSet(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *Store) RemoveFromSet(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *Store) SizeOfSet(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[key]), nil
}

func (s *Store) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for m := range s.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) IsSetMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *Store) ScoredAdd(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *Store) ScoredRemove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zsets[key], member)
	return nil
}

func (s *Store) ScoredRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zsets[key]
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(z))
	for m, sc := range z {
		pairs = append(pairs, pair{m, sc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
	n := int64(len(pairs))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	var out []string
	for i := start; i <= stop && i < n; i++ {
		out = append(out, pairs[i].member)
	}
	return out, nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range s.sets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func parseInt(s string) int64 {
	var n int64
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func formatInt(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// Locker is an in-memory kv.Locker with the same reentrancy and
// fail-closed lease semantics as the Redis implementation, without any
// background goroutine: IsHeld checks the lease deadline lazily.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

type lockState struct {
	token    string
	count    int
	deadline time.Time
}

// NewLocker creates an empty fake locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockState)}
}

func (l *Locker) TryLock(ctx context.Context, name string, wait, lease time.Duration) (kv.LockHandle, error) {
	token := kv.OwnerTokenFrom(ctx)
	if token == "" {
		token = uuid.NewString()
	}
	deadline := time.Now().Add(wait)
	for {
		l.mu.Lock()
		st, exists := l.locks[name]
		now := time.Now()
		if !exists || now.After(st.deadline) {
			st = &lockState{token: token, count: 1, deadline: now.Add(lease)}
			l.locks[name] = st
			l.mu.Unlock()
			return &fakeHandle{locker: l, name: name, token: token}, nil
		}
		if st.token == token {
			st.count++
			st.deadline = now.Add(lease)
			l.mu.Unlock()
			return &fakeHandle{locker: l, name: name, token: token}, nil
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

type fakeHandle struct {
	locker *Locker
	name   string
	token  string
}

func (h *fakeHandle) IsHeld() bool {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	st, ok := h.locker.locks[h.name]
	if !ok {
		return false
	}
	return st.token == h.token && time.Now().Before(st.deadline)
}

func (h *fakeHandle) Unlock(_ context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	st, ok := h.locker.locks[h.name]
	if !ok || st.token != h.token {
		return nil
	}
	st.count--
	if st.count <= 0 {
		delete(h.locker.locks, h.name)
	}
	return nil
}
