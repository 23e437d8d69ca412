// Package janitor implements the reconciliation sweep (C9): a periodic,
// multi-replica-safe pass that deletes orphaned ephemeral keys and
// force-resets any player stuck in a phase no SQL match row still backs.
package janitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/riftlobby/matchcore/internal/adapters"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/ownership"
	"github.com/riftlobby/matchcore/internal/playerstate"
)

// expectedStatus maps a PlayerState to the match status that must still
// exist for that player to legitimately hold it.
var expectedStatus = map[model.PlayerState]model.MatchStatus{
	model.InMatchFound: model.MatchFound,
	model.InDraft:       model.MatchDraft,
	model.InGame:        model.MatchInGame,
}

// Engine runs the janitor sweep.
type Engine struct {
	store     kv.Store
	sql       adapters.SqlStore
	players   *playerstate.Registry
	ownership *ownership.Registry
	log       *logrus.Entry
}

// Config bundles the Engine's dependencies.
type Config struct {
	Store     kv.Store
	SQL       adapters.SqlStore
	Players   *playerstate.Registry
	Ownership *ownership.Registry
	Log       *logrus.Entry
}

// New builds a janitor Engine.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		store:     cfg.Store,
		sql:       cfg.SQL,
		players:   cfg.Players,
		ownership: cfg.Ownership,
		log:       log,
	}
}

// Sweep runs both reconciliation steps. It is safe to call concurrently
// from multiple replicas since every deletion is a compare-and-delete
// against current SQL truth rather than a blind clear.
func (e *Engine) Sweep(ctx context.Context) error {
	if err := e.sweepOrphanKeys(ctx); err != nil {
		return fmt.Errorf("janitor: sweep orphan keys: %w", err)
	}
	if err := e.sweepStalePlayerStates(ctx); err != nil {
		return fmt.Errorf("janitor: sweep stale player states: %w", err)
	}
	return nil
}

// sweepOrphanKeys enumerates game_ack:*, game_retry:*, and match_vote:*
// keys and deletes those whose matchId no longer belongs to a status
// that key family is valid for.
func (e *Engine) sweepOrphanKeys(ctx context.Context) error {
	families := []struct {
		pattern string
		valid   map[model.MatchStatus]bool
	}{
		{"game_ack:*", map[model.MatchStatus]bool{model.MatchInGame: true}},
		{"game_retry:*", map[model.MatchStatus]bool{model.MatchInGame: true}},
		{"match_vote:*", map[model.MatchStatus]bool{
			model.MatchFound: true, model.MatchDraft: true, model.MatchInGame: true,
		}},
	}

	for _, family := range families {
		keys, err := e.store.Keys(ctx, family.pattern)
		if err != nil {
			return fmt.Errorf("list %s: %w", family.pattern, err)
		}
		for _, key := range keys {
			matchID := matchIDFromKey(key)
			if matchID == "" {
				continue
			}
			match, ok, err := e.sql.GetMatch(ctx, matchID)
			if err != nil {
				return fmt.Errorf("load match %s: %w", matchID, err)
			}
			if ok && family.valid[match.Status] {
				continue
			}
			if err := e.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete orphan key %s: %w", key, err)
			}
		}
	}
	return nil
}

// matchIDFromKey extracts the matchId segment from a "<family>:<matchId>"
// or "<family>:<matchId>:<rest>" key.
func matchIDFromKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// sweepStalePlayerStates enumerates every PlayerState key currently in
// IN_MATCH_FOUND, IN_DRAFT, or IN_GAME and force-resets to AVAILABLE any
// player whose owning match no longer exists, or exists at a different
// status than that phase expects.
func (e *Engine) sweepStalePlayerStates(ctx context.Context) error {
	keys, err := e.store.Keys(ctx, playerstate.KeyPrefix()+"*")
	if err != nil {
		return fmt.Errorf("list player state keys: %w", err)
	}
	for _, key := range keys {
		name := playerstate.NameFromKey(key)
		if name == "" {
			continue
		}
		state, err := e.players.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("get state for %s: %w", name, err)
		}
		want, tracked := expectedStatus[state]
		if !tracked {
			continue
		}

		matchID, owned, err := e.ownership.GetMatchFor(ctx, name)
		if err != nil {
			return fmt.Errorf("get owner of %s: %w", name, err)
		}
		stale := !owned
		if owned {
			match, ok, err := e.sql.GetMatch(ctx, matchID)
			if err != nil {
				return fmt.Errorf("load match %s for %s: %w", matchID, name, err)
			}
			stale = !ok || match.Status != want
		}
		if !stale {
			continue
		}

		if err := e.players.ForceSet(ctx, name, model.Available); err != nil {
			return fmt.Errorf("force-reset %s: %w", name, err)
		}
		e.log.WithField("player", name).WithField("state", state).
			Info("janitor reset orphaned player state")
	}
	return nil
}
