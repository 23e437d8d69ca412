// Package draft implements the draft engine (C6): the twenty-action
// ban/pick sequence, its per-action timeout, and the final confirmation
// gate before a match hands off to the game monitor.
package draft

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
)

const (
	draftLockWait  = 10 * time.Second
	draftLockLease = 5 * time.Second

	confirmLockWait  = 2 * time.Second
	confirmLockLease = 30 * time.Second
)

// GameStartHandler is invoked once all ten players confirm, handing the
// completed match to internal/gamemonitor.
type GameStartHandler func(ctx context.Context, match model.Match) error

// Engine drives the draft state machine for every in-flight match.
type Engine struct {
	locker        kv.Locker
	sql           adapters.SqlStore
	publisher     bus.Publisher
	onGameStart   GameStartHandler
	actionTimeout time.Duration
	log           *logrus.Entry
}

// Config bundles the Engine's dependencies.
type Config struct {
	Locker        kv.Locker
	SQL           adapters.SqlStore
	Publisher     bus.Publisher
	OnGameStart   GameStartHandler
	ActionTimeout time.Duration
	Log           *logrus.Entry
}

// New builds a draft Engine.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		locker:        cfg.Locker,
		sql:           cfg.SQL,
		publisher:     cfg.Publisher,
		onGameStart:   cfg.OnGameStart,
		actionTimeout: cfg.ActionTimeout,
		log:           log,
	}
}

// StartDraft initializes the 20-action template for a freshly accepted
// match and persists it. It is the acceptance engine's DraftStartHandler.
func (e *Engine) StartDraft(ctx context.Context, match model.Match) error {
	team1, team2 := rosterNames(match.Team1), rosterNames(match.Team2)
	match.PickBanData = model.NewDraftState(match.ID, team1, team2)
	match.UpdatedAt = time.Now()
	if err := e.sql.UpdateMatch(ctx, match); err != nil {
		return fmt.Errorf("draft: persist initial draft state for %s: %w", match.ID, err)
	}
	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelDraftStarting, "draft.starting", match.PickBanData, match.Roster()...)
	}
	return nil
}

func rosterNames(slots []model.RosterSlot) []string {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = s.SummonerName
	}
	return names
}

// ProcessAction validates and applies one ban/pick action, per §4.6's
// six-step sequence, under lock:draft:<matchId>.
func (e *Engine) ProcessAction(ctx context.Context, matchID string, actionIndex int, championID, byPlayer string) error {
	handle, err := e.locker.TryLock(ctx, "draft:"+matchID, draftLockWait, draftLockLease)
	if err != nil {
		return fmt.Errorf("draft: acquire lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, matchID, "draft")
	}
	defer handle.Unlock(ctx)

	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("draft: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "draft")
	}
	state := match.PickBanData

	if state.Complete() {
		return errs.New(errs.DraftComplete, matchID, "draft")
	}
	if actionIndex != state.CurrentIndex {
		return errs.New(errs.OutOfTurn, matchID, "draft")
	}
	current := state.Actions[state.CurrentIndex]
	timeoutSkip := byPlayer == model.SystemTimeoutPlayer && championID == model.SkippedChampion
	if !timeoutSkip && state.TeamOf(byPlayer) != current.Team {
		return errs.New(errs.WrongTeam, matchID, "draft")
	}
	if state.ChampionTaken(championID) {
		return errs.New(errs.ChampionUsed, matchID, "draft")
	}

	now := time.Now()
	state.Actions[state.CurrentIndex] = model.DraftAction{
		Index:       current.Index,
		Type:        current.Type,
		Team:        current.Team,
		ChampionID:  championID,
		ByPlayer:    byPlayer,
		CompletedAt: &now,
	}
	state.CurrentIndex++
	state.LastActionStart = now

	match.PickBanData = state
	match.UpdatedAt = now
	if err := e.sql.UpdateMatch(ctx, match); err != nil {
		return fmt.Errorf("draft: persist action %d for %s: %w", actionIndex, matchID, err)
	}

	e.publishAction(ctx, match, current)
	if state.Complete() && e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelDraftCompleted, "draft.completed", state, match.Roster()...)
	}
	return nil
}

func (e *Engine) publishAction(ctx context.Context, match model.Match, completed model.DraftAction) {
	if e.publisher == nil {
		return
	}
	eventType := "draft.pick"
	if completed.Type == model.ActionBan {
		eventType = "draft.ban"
	}
	roster := match.Roster()
	_ = e.publisher.Publish(ctx, bus.ChannelDraftUpdated, eventType, completed, roster...)
	_ = e.publisher.Publish(ctx, bus.ChannelDraftUpdated, "draft.updated", map[string]any{
		"matchId":      match.ID,
		"currentIndex": match.PickBanData.CurrentIndex,
		"actions":      match.PickBanData.Actions,
	}, roster...)
}

// TickTimeouts examines every in-flight draft and replaces the current
// action with a SKIPPED entry once actionTimeout elapses since the last
// action started, per §4.6's per-action timeout.
func (e *Engine) TickTimeouts(ctx context.Context) error {
	matches, err := e.sql.ListMatchesByStatus(ctx, model.MatchDraft)
	if err != nil {
		return fmt.Errorf("draft: list draft matches: %w", err)
	}
	for _, m := range matches {
		if err := e.tickOne(ctx, m); err != nil {
			e.log.WithError(err).WithField("match", m.ID).Warn("draft timeout tick failed")
		}
	}
	return nil
}

func (e *Engine) tickOne(ctx context.Context, m model.Match) error {
	state := m.PickBanData
	if state.Complete() {
		return nil
	}
	if time.Since(state.LastActionStart) < e.actionTimeout {
		return nil
	}
	return e.ProcessAction(ctx, m.ID, state.CurrentIndex, model.SkippedChampion, model.SystemTimeoutPlayer)
}

// Confirm records player's confirmation of the completed draft; once
// all ten confirm, the match transitions to game and OnGameStart fires.
func (e *Engine) Confirm(ctx context.Context, matchID, player string) error {
	handle, err := e.locker.TryLock(ctx, "draft_confirm:"+matchID, confirmLockWait, confirmLockLease)
	if err != nil {
		return fmt.Errorf("draft: acquire confirm lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, matchID, "draft_confirm")
	}
	defer handle.Unlock(ctx)

	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("draft: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "draft_confirm")
	}
	if !match.PickBanData.Complete() {
		return errs.New(errs.NotInPhase, matchID, "draft_confirm")
	}

	state := match.PickBanData
	if state.Confirmations == nil {
		state.Confirmations = make(map[string]bool)
	}
	state.Confirmations[model.NormalizeName(player)] = true
	match.PickBanData = state
	match.UpdatedAt = time.Now()
	if err := e.sql.UpdateMatch(ctx, match); err != nil {
		return fmt.Errorf("draft: persist confirmation for %s: %w", player, err)
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelDraftConfirmed, "draft.confirmed", map[string]any{
			"matchId":       matchID,
			"confirmations": len(state.Confirmations),
		}, match.Roster()...)
	}

	if len(state.Confirmations) < len(match.Roster()) {
		return nil
	}

	match.Status = model.MatchInGame
	if err := e.sql.UpdateMatch(ctx, match); err != nil {
		return fmt.Errorf("draft: transition %s to in_progress: %w", matchID, err)
	}
	if e.onGameStart != nil {
		return e.onGameStart(ctx, match)
	}
	return nil
}

// Snapshot returns the current DraftState for a reconnecting client,
// supporting mid-draft resync without replaying action history.
func (e *Engine) Snapshot(ctx context.Context, matchID string) (model.DraftState, error) {
	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return model.DraftState{}, fmt.Errorf("draft: load match %s: %w", matchID, err)
	}
	if !ok {
		return model.DraftState{}, errs.New(errs.UnknownMatch, matchID, "draft")
	}
	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelDraftSnapshot, "draft.snapshot", match.PickBanData, match.Roster()...)
	}
	return match.PickBanData, nil
}
