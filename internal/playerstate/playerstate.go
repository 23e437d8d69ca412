// Package playerstate implements the PlayerState registry (C2): the
// single-writer record of which phase of the match lifecycle each player
// currently occupies. Every transition is validated against a fixed
// graph before being written, and every write refreshes the key's TTL so
// a player who never completes a lifecycle (crashed client, abandoned
// tab) falls back to AVAILABLE on its own once the lock ownership
// design's "state implicitly resets" expectation kicks in.
package playerstate

import (
	"context"
	"fmt"
	"time"

	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/model"
)

const keyPrefix = "state:player:"

// allowed maps each state to the set of states it may transition into
// directly, per §4.2's transition graph.
var allowed = map[model.PlayerState]map[model.PlayerState]bool{
	model.Available:    {model.InQueue: true},
	model.InQueue:      {model.Available: true, model.InMatchFound: true},
	model.InMatchFound: {model.Available: true, model.InDraft: true, model.InQueue: true},
	model.InDraft:      {model.Available: true, model.InGame: true},
	model.InGame:       {model.Available: true},
}

// Registry is the PlayerState store, backed by the shared kv.Store.
type Registry struct {
	store kv.Store
	ttl   time.Duration
}

// New builds a Registry. ttl is the key lifetime refreshed on every
// write; the configuration's player_lock.ttl_hours value is the intended
// source for it (4 hours by default), chosen generously since a stuck
// key only matters if the janitor's reconciliation sweep hasn't already
// force-corrected it.
func New(store kv.Store, ttl time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl}
}

func key(name string) string {
	return keyPrefix + model.NormalizeName(name)
}

// Get returns the player's current state, defaulting to AVAILABLE if no
// key is present (never joined, or expired out).
func (r *Registry) Get(ctx context.Context, name string) (model.PlayerState, error) {
	v, ok, err := r.store.Get(ctx, key(name))
	if err != nil {
		return "", fmt.Errorf("playerstate: get %s: %w", name, err)
	}
	if !ok {
		return model.Available, nil
	}
	return model.PlayerState(v), nil
}

// Set validates that current → next is one of the allowed edges before
// writing next, refreshing the TTL. It returns errs.IllegalTransition
// (carrying the attempted edge in Phase) when the edge is not permitted.
func (r *Registry) Set(ctx context.Context, name string, next model.PlayerState) error {
	current, err := r.Get(ctx, name)
	if err != nil {
		return err
	}
	if !allowed[current][next] {
		return errs.Wrap(errs.IllegalTransition, "", string(current)+"->"+string(next),
			fmt.Errorf("playerstate: %s cannot move from %s to %s", name, current, next))
	}
	if err := r.store.Set(ctx, key(name), string(next), r.ttl); err != nil {
		return fmt.Errorf("playerstate: set %s to %s: %w", name, next, err)
	}
	return nil
}

// ForceSet writes next unconditionally, bypassing the transition graph.
// Used by the janitor's reconciliation sweep, which must be able to
// repair a player stuck in a phase no match table entry backs up
// anymore, and by the game monitor's finish sequence, which reconciles
// every roster member to IN_GAME and then AVAILABLE whatever their
// recorded state.
func (r *Registry) ForceSet(ctx context.Context, name string, next model.PlayerState) error {
	if err := r.store.Set(ctx, key(name), string(next), r.ttl); err != nil {
		return fmt.Errorf("playerstate: force-set %s to %s: %w", name, next, err)
	}
	return nil
}

// KeyPrefix exposes the key namespace so the janitor can enumerate every
// PlayerState entry via kv.Store.Keys without duplicating the schema.
func KeyPrefix() string { return keyPrefix }

// NameFromKey strips the namespace prefix back to a summoner name, the
// inverse of key(), for callers enumerating over Keys().
func NameFromKey(k string) string {
	if len(k) <= len(keyPrefix) {
		return ""
	}
	return k[len(keyPrefix):]
}
