// Package ownership implements the player/match ownership maps (C3):
// the invariant that a player belongs to at most one active match at a
// time, enforced by an atomic set-if-absent rather than a
// read-then-write race.
package ownership

import (
	"context"
	"fmt"

	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/model"
)

const (
	playerMatchPrefix  = "lock:player_match:"
	matchPlayersPrefix = "match:players:"
)

// Registry tracks the player→match and match→players mappings.
type Registry struct {
	store kv.Store
}

// New builds a Registry over the shared store.
func New(store kv.Store) *Registry {
	return &Registry{store: store}
}

func playerKey(name string) string {
	return playerMatchPrefix + model.NormalizeName(name)
}

func matchSetKey(matchID string) string {
	return matchPlayersPrefix + matchID
}

// RegisterPlayerMatch atomically claims player for matchID. If the
// player is already owned by a different match it returns
// errs.AlreadyOwned; registering the same player for the same match
// again is a no-op success (idempotent retry of a partially-applied
// match-found step).
func (r *Registry) RegisterPlayerMatch(ctx context.Context, player, matchID string) error {
	key := playerKey(player)
	set, err := r.store.SetIfAbsent(ctx, key, matchID, 0)
	if err != nil {
		return fmt.Errorf("ownership: register %s for %s: %w", player, matchID, err)
	}
	if !set {
		existing, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("ownership: read existing owner of %s: %w", player, err)
		}
		if ok && existing != matchID {
			return errs.New(errs.AlreadyOwned, matchID, "")
		}
	}
	if err := r.store.AddToSet(ctx, matchSetKey(matchID), model.NormalizeName(player)); err != nil {
		return fmt.Errorf("ownership: track %s under %s: %w", player, matchID, err)
	}
	return nil
}

// RegisterRoster registers every player in one call, rolling back any
// partial registration before surfacing the first conflict — a match
// must own either all ten players or none.
func (r *Registry) RegisterRoster(ctx context.Context, players []string, matchID string) error {
	registered := make([]string, 0, len(players))
	for _, p := range players {
		if err := r.RegisterPlayerMatch(ctx, p, matchID); err != nil {
			for _, done := range registered {
				_ = r.releaseOne(ctx, done, matchID)
			}
			return err
		}
		registered = append(registered, p)
	}
	return nil
}

func (r *Registry) releaseOne(ctx context.Context, player, matchID string) error {
	key := playerKey(player)
	existing, ok, err := r.store.Get(ctx, key)
	if err != nil || !ok || existing != matchID {
		return err
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return err
	}
	return r.store.RemoveFromSet(ctx, matchSetKey(matchID), model.NormalizeName(player))
}

// ClearMatchPlayers iterates the tracked roster for matchID, deleting
// each player's ownership entry only if it still points at this match
// (guarding against a player having already moved to a newer match),
// then deletes the roster set itself.
func (r *Registry) ClearMatchPlayers(ctx context.Context, matchID string) error {
	setKey := matchSetKey(matchID)
	members, err := r.store.SetMembers(ctx, setKey)
	if err != nil {
		return fmt.Errorf("ownership: list roster for %s: %w", matchID, err)
	}
	for _, player := range members {
		key := playerKey(player)
		existing, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("ownership: read owner of %s: %w", player, err)
		}
		if ok && existing == matchID {
			if err := r.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("ownership: clear owner of %s: %w", player, err)
			}
		}
	}
	return r.store.Delete(ctx, setKey)
}

// GetMatchFor returns the match currently owning player, if any.
func (r *Registry) GetMatchFor(ctx context.Context, player string) (string, bool, error) {
	v, ok, err := r.store.Get(ctx, playerKey(player))
	if err != nil {
		return "", false, fmt.Errorf("ownership: get match for %s: %w", player, err)
	}
	return v, ok, nil
}
