// Package adapterstest provides an in-memory adapters.SqlStore for unit
// tests, mirroring internal/kv/kvtest's role for the KV/lock surface.
package adapterstest

import (
	"context"
	"sort"
	"sync"

	"github.com/riftlobby/matchcore/internal/model"
)

// SqlStore is an in-memory adapters.SqlStore. Safe for concurrent use.
type SqlStore struct {
	mu      sync.Mutex
	queue   map[string]model.QueueEntry
	matches map[string]model.Match
	players map[string]model.Player
}

// New creates an empty fake SQL store.
func New() *SqlStore {
	return &SqlStore{
		queue:   make(map[string]model.QueueEntry),
		matches: make(map[string]model.Match),
		players: make(map[string]model.Player),
	}
}

func (s *SqlStore) UpsertQueueEntry(_ context.Context, e model.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[model.NormalizeName(e.SummonerName)] = e
	return nil
}

func (s *SqlStore) DeleteQueueEntry(_ context.Context, summonerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, model.NormalizeName(summonerName))
	return nil
}

func (s *SqlStore) ListQueueEntries(_ context.Context) ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueueEntry, 0, len(s.queue))
	for _, e := range s.queue {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinTime.Before(out[j].JoinTime) })
	return out, nil
}

func (s *SqlStore) GetQueueEntry(_ context.Context, summonerName string) (model.QueueEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.queue[model.NormalizeName(summonerName)]
	return e, ok, nil
}

func (s *SqlStore) CreateMatch(_ context.Context, m model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
	return nil
}

func (s *SqlStore) UpdateMatch(_ context.Context, m model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
	return nil
}

func (s *SqlStore) GetMatch(_ context.Context, matchID string) (model.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	return m, ok, nil
}

func (s *SqlStore) ListMatchesByStatus(_ context.Context, status model.MatchStatus) ([]model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Match
	for _, m := range s.matches {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *SqlStore) DeleteMatch(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchID)
	return nil
}

func (s *SqlStore) GetPlayer(_ context.Context, summonerName string) (model.Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[model.NormalizeName(summonerName)]
	return p, ok, nil
}

func (s *SqlStore) UpsertPlayer(_ context.Context, p model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[model.NormalizeName(p.SummonerName)] = p
	return nil
}

func (s *SqlStore) ApplyLPDeltas(_ context.Context, deltas map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, delta := range deltas {
		key := model.NormalizeName(name)
		p := s.players[key]
		p.CustomLp += delta
		s.players[key] = p
	}
	return nil
}
