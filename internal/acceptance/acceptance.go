// Package acceptance implements the acceptance coordinator (C5): once
// the queue engine proposes a cohort, every rostered player must accept
// within a countdown before the match proceeds to draft.
package acceptance

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riftlobby/matchcore/internal/adapters"
	"github.com/riftlobby/matchcore/internal/bus"
	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/ownership"
	"github.com/riftlobby/matchcore/internal/playerstate"
)

const (
	acceptLockWait  = 2 * time.Second
	acceptLockLease = 10 * time.Second

	statusWaiting     = "waiting"
	statusAllAccepted = "all_accepted"
	statusCancelled   = "cancelled"

	entryPending  = "pending"
	entryAccepted = "accepted"
	entryDeclined = "declined"
)

// DraftStartHandler is invoked once every player has accepted, handing
// the finalized roster to internal/draft.
type DraftStartHandler func(ctx context.Context, match model.Match) error

// Engine tracks acceptance state for proposed matches.
type Engine struct {
	kv           kv.Store
	locker       kv.Locker
	sql          adapters.SqlStore
	players      *playerstate.Registry
	ownership    *ownership.Registry
	publisher    bus.Publisher
	onDraftStart DraftStartHandler
	timeout      time.Duration
	botDelay     time.Duration
	log          *logrus.Entry
}

// Config bundles the Engine's dependencies.
type Config struct {
	KV           kv.Store
	Locker       kv.Locker
	SQL          adapters.SqlStore
	Players      *playerstate.Registry
	Ownership    *ownership.Registry
	Publisher    bus.Publisher
	OnDraftStart DraftStartHandler
	Timeout      time.Duration
	BotDelay     time.Duration
	Log          *logrus.Entry
}

// New builds an acceptance Engine.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		kv:           cfg.KV,
		locker:       cfg.Locker,
		sql:          cfg.SQL,
		players:      cfg.Players,
		ownership:    cfg.Ownership,
		publisher:    cfg.Publisher,
		onDraftStart: cfg.OnDraftStart,
		timeout:      cfg.Timeout,
		botDelay:     cfg.BotDelay,
		log:          log,
	}
}

func metaKey(matchID string) string       { return "match:" + matchID + ":metadata" }
func acceptHashKey(matchID string) string { return "match:" + matchID + ":acceptances" }

// StartAcceptance records a freshly proposed match's acceptance
// tracking, registers ownership for all ten players, transitions them
// to IN_MATCH_FOUND, and publishes match:found. It is the queue
// engine's MatchFoundHandler.
func (e *Engine) StartAcceptance(ctx context.Context, match model.Match) error {
	roster := match.Roster()
	if err := e.ownership.RegisterRoster(ctx, roster, match.ID); err != nil {
		return fmt.Errorf("acceptance: register roster for %s: %w", match.ID, err)
	}

	fields := map[string]string{}
	for _, name := range roster {
		fields[model.NormalizeName(name)] = entryPending
	}
	if err := e.kv.HashPutAll(ctx, acceptHashKey(match.ID), fields); err != nil {
		return fmt.Errorf("acceptance: seed acceptance hash for %s: %w", match.ID, err)
	}
	if err := e.kv.HashPutAll(ctx, metaKey(match.ID), map[string]string{
		"status":      statusWaiting,
		"startTimeMs": fmt.Sprintf("%d", time.Now().UnixMilli()),
	}); err != nil {
		return fmt.Errorf("acceptance: seed metadata for %s: %w", match.ID, err)
	}

	if err := e.sql.CreateMatch(ctx, match); err != nil {
		return fmt.Errorf("acceptance: persist match %s: %w", match.ID, err)
	}

	for _, name := range roster {
		if err := e.players.Set(ctx, name, model.InMatchFound); err != nil {
			return fmt.Errorf("acceptance: transition %s to IN_MATCH_FOUND: %w", name, err)
		}
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelMatchFound, "match.found", match, roster...)
	}

	for _, name := range roster {
		if model.IsBot(name) {
			go e.autoAcceptBot(match.ID, name)
		}
	}
	return nil
}

func (e *Engine) autoAcceptBot(matchID, name string) {
	time.Sleep(e.botDelay)
	ctx, cancel := context.WithTimeout(context.Background(), acceptLockLease)
	defer cancel()
	if err := e.Accept(ctx, matchID, name); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{"match": matchID, "player": name}).
			Warn("bot auto-accept failed")
	}
}

// Accept records player's acceptance of matchID, advancing to draft once
// all ten have accepted.
func (e *Engine) Accept(ctx context.Context, matchID, player string) error {
	handle, err := e.locker.TryLock(ctx, "match_acceptance:"+matchID, acceptLockWait, acceptLockLease)
	if err != nil {
		return fmt.Errorf("acceptance: acquire lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, matchID, "acceptance")
	}
	defer handle.Unlock(ctx)

	status, _, err := e.kv.HashGet(ctx, metaKey(matchID), "status")
	if err != nil {
		return fmt.Errorf("acceptance: read status for %s: %w", matchID, err)
	}
	if status != statusWaiting {
		return errs.New(errs.NotInPhase, matchID, "acceptance:"+status)
	}

	if err := e.kv.HashPutAll(ctx, acceptHashKey(matchID), map[string]string{
		model.NormalizeName(player): entryAccepted,
	}); err != nil {
		return fmt.Errorf("acceptance: record accept for %s: %w", player, err)
	}

	entries, err := e.kv.HashGetAll(ctx, acceptHashKey(matchID))
	if err != nil {
		return fmt.Errorf("acceptance: read acceptance hash for %s: %w", matchID, err)
	}
	allAccepted := len(entries) > 0
	for _, v := range entries {
		if v != entryAccepted {
			allAccepted = false
			break
		}
	}
	if !allAccepted {
		return nil
	}

	if err := e.kv.HashPutAll(ctx, metaKey(matchID), map[string]string{"status": statusAllAccepted}); err != nil {
		return fmt.Errorf("acceptance: mark all-accepted for %s: %w", matchID, err)
	}
	return e.advanceToDraft(ctx, matchID)
}

// Decline records player's decline, cancelling the match for everyone.
func (e *Engine) Decline(ctx context.Context, matchID, player string) error {
	handle, err := e.locker.TryLock(ctx, "match_acceptance:"+matchID, acceptLockWait, acceptLockLease)
	if err != nil {
		return fmt.Errorf("acceptance: acquire lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, matchID, "acceptance")
	}
	defer handle.Unlock(ctx)

	status, _, err := e.kv.HashGet(ctx, metaKey(matchID), "status")
	if err != nil {
		return fmt.Errorf("acceptance: read status for %s: %w", matchID, err)
	}
	if status != statusWaiting {
		return errs.New(errs.NotInPhase, matchID, "acceptance:"+status)
	}

	if err := e.kv.HashPutAll(ctx, acceptHashKey(matchID), map[string]string{
		model.NormalizeName(player): entryDeclined,
	}); err != nil {
		return fmt.Errorf("acceptance: record decline for %s: %w", player, err)
	}
	if err := e.kv.HashPutAll(ctx, metaKey(matchID), map[string]string{
		"status":     statusCancelled,
		"declinedBy": model.NormalizeName(player),
	}); err != nil {
		return fmt.Errorf("acceptance: mark cancelled for %s: %w", matchID, err)
	}
	return e.cancel(ctx, matchID, player, "declined")
}

// TickTimeouts examines every waiting match and treats the first
// pending player as a decline once the 30s countdown elapses; runs from
// a 1s ticker per §4.5.
func (e *Engine) TickTimeouts(ctx context.Context) error {
	matches, err := e.sql.ListMatchesByStatus(ctx, model.MatchFound)
	if err != nil {
		return fmt.Errorf("acceptance: list match_found matches: %w", err)
	}
	for _, m := range matches {
		if err := e.tickOne(ctx, m); err != nil {
			e.log.WithError(err).WithField("match", m.ID).Warn("acceptance timeout tick failed")
		}
	}
	return nil
}

func (e *Engine) tickOne(ctx context.Context, m model.Match) error {
	meta, err := e.kv.HashGetAll(ctx, metaKey(m.ID))
	if err != nil {
		return err
	}
	if meta["status"] != statusWaiting {
		return nil
	}
	startMs, _, err := e.kv.HashGet(ctx, metaKey(m.ID), "startTimeMs")
	if err != nil {
		return err
	}
	var startedAt int64
	fmt.Sscanf(startMs, "%d", &startedAt)
	if time.Since(time.UnixMilli(startedAt)) < e.timeout {
		if e.publisher != nil {
			_ = e.publisher.Publish(ctx, bus.ChannelMatchAcceptance, "match.acceptance_tick", map[string]any{
				"matchId": m.ID,
			}, m.Roster()...)
		}
		return nil
	}

	entries, err := e.kv.HashGetAll(ctx, acceptHashKey(m.ID))
	if err != nil {
		return err
	}
	var pendingPlayer string
	for _, name := range m.Roster() {
		if entries[model.NormalizeName(name)] == entryPending {
			pendingPlayer = name
			break
		}
	}
	if pendingPlayer == "" {
		return nil
	}
	return e.Decline(ctx, m.ID, pendingPlayer)
}

// advanceToDraft persists the full roster into pickBanData, removes the
// accepted players from the queue, clears acceptance tracking,
// transitions everyone to IN_DRAFT, and hands off to draft.
func (e *Engine) advanceToDraft(ctx context.Context, matchID string) error {
	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("acceptance: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "acceptance")
	}

	roster := match.Roster()
	match.Status = model.MatchDraft
	match.UpdatedAt = time.Now()
	if err := e.sql.UpdateMatch(ctx, match); err != nil {
		return fmt.Errorf("acceptance: update match %s: %w", matchID, err)
	}

	for _, name := range roster {
		if err := e.sql.DeleteQueueEntry(ctx, name); err != nil {
			return fmt.Errorf("acceptance: remove %s from queue: %w", name, err)
		}
	}
	if err := e.kv.Delete(ctx, acceptHashKey(matchID), metaKey(matchID)); err != nil {
		return fmt.Errorf("acceptance: clear tracking for %s: %w", matchID, err)
	}
	for _, name := range roster {
		if err := e.players.Set(ctx, name, model.InDraft); err != nil {
			return fmt.Errorf("acceptance: transition %s to IN_DRAFT: %w", name, err)
		}
	}

	if e.onDraftStart != nil {
		return e.onDraftStart(ctx, match)
	}
	return nil
}

// cancel tears down a declined/timed-out match: removes the declining
// player from the queue and returns them to AVAILABLE, resets the other
// nine to AcceptanceIdle and IN_QUEUE, and deletes the match row.
func (e *Engine) cancel(ctx context.Context, matchID, decliningPlayer, reason string) error {
	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("acceptance: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "acceptance")
	}
	roster := match.Roster()

	if err := e.sql.DeleteQueueEntry(ctx, decliningPlayer); err != nil {
		return fmt.Errorf("acceptance: remove %s from queue: %w", decliningPlayer, err)
	}
	for _, name := range roster {
		if model.NormalizeName(name) == model.NormalizeName(decliningPlayer) {
			continue
		}
		entry, ok, err := e.sql.GetQueueEntry(ctx, name)
		if err != nil {
			return fmt.Errorf("acceptance: load queue entry for %s: %w", name, err)
		}
		if ok {
			entry.AcceptanceStatus = model.AcceptanceIdle
			if err := e.sql.UpsertQueueEntry(ctx, entry); err != nil {
				return fmt.Errorf("acceptance: reset %s in queue: %w", name, err)
			}
		}
		if err := e.players.Set(ctx, name, model.InQueue); err != nil {
			return fmt.Errorf("acceptance: transition %s back to IN_QUEUE: %w", name, err)
		}
	}
	if match.TeamOf(decliningPlayer) != 0 {
		if err := e.players.Set(ctx, decliningPlayer, model.Available); err != nil {
			return fmt.Errorf("acceptance: transition %s to AVAILABLE: %w", decliningPlayer, err)
		}
	}

	if err := e.ownership.ClearMatchPlayers(ctx, matchID); err != nil {
		return fmt.Errorf("acceptance: clear ownership for %s: %w", matchID, err)
	}
	if err := e.kv.Delete(ctx, acceptHashKey(matchID), metaKey(matchID)); err != nil {
		return fmt.Errorf("acceptance: clear tracking for %s: %w", matchID, err)
	}
	if err := e.sql.DeleteMatch(ctx, matchID); err != nil {
		return fmt.Errorf("acceptance: delete match %s: %w", matchID, err)
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelMatchCancelled, "match.cancelled", map[string]any{
			"matchId":        matchID,
			"reason":         reason,
			"declinedPlayer": decliningPlayer,
		}, roster...)
	}
	return nil
}
