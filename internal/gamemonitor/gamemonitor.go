// Package gamemonitor implements the in-progress game tracker (C7):
// entry bookkeeping, a 1h expiry ticker, winner-vote ballot collection,
// and the finish sequence that recomputes LP and tears a match down.
package gamemonitor

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
	cancelLockWait  = 0
	cancelLockLease = 10 * time.Second

	finishLockWait  = 5 * time.Second
	finishLockLease = 10 * time.Second

	voteLockWait  = 2 * time.Second
	voteLockLease = 10 * time.Second

	votesToWin = 6

	activeGamesKey = "game:active"
)

// Engine tracks every in-progress match, its timeout, and its winner-vote
// ballots.
type Engine struct {
	locker     kv.Locker
	kvStore    kv.Store
	sql        adapters.SqlStore
	players    *playerstate.Registry
	ownership  *ownership.Registry
	publisher  bus.Publisher
	gameClient adapters.GameClientBridge
	lpConfig   model.LPConfig
	timeout    time.Duration
	log        *logrus.Entry
}

// Config bundles the Engine's dependencies.
type Config struct {
	Locker     kv.Locker
	KV         kv.Store
	SQL        adapters.SqlStore
	Players    *playerstate.Registry
	Ownership  *ownership.Registry
	Publisher  bus.Publisher
	GameClient adapters.GameClientBridge
	LPConfig   model.LPConfig
	Timeout    time.Duration
	Log        *logrus.Entry
}

// New builds a game monitor Engine.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	lpConfig := cfg.LPConfig
	if lpConfig == (model.LPConfig{}) {
		lpConfig = model.DefaultLPConfig
	}
	return &Engine{
		locker:     cfg.Locker,
		kvStore:    cfg.KV,
		sql:        cfg.SQL,
		players:    cfg.Players,
		ownership:  cfg.Ownership,
		publisher:  cfg.Publisher,
		gameClient: cfg.GameClient,
		lpConfig:   lpConfig,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

func voteKey(matchID string) string { return "match_vote:" + matchID }

// StartGame records matchID in the active-games set, transitions its
// roster to IN_GAME, starts the real game client, and publishes
// game_started directed at the ten participants. It is the draft
// engine's GameStartHandler.
func (e *Engine) StartGame(ctx context.Context, match model.Match) error {
	now := time.Now()
	if err := e.kvStore.HashPutAll(ctx, activeGamesKey, map[string]string{
		match.ID: fmt.Sprintf("%d", now.UnixMilli()),
	}); err != nil {
		return fmt.Errorf("gamemonitor: mark %s active: %w", match.ID, err)
	}

	roster := match.Roster()
	for _, name := range roster {
		if err := e.players.Set(ctx, name, model.InGame); err != nil {
			return fmt.Errorf("gamemonitor: transition %s to IN_GAME: %w", name, err)
		}
	}

	if e.gameClient != nil {
		if err := e.gameClient.StartGame(ctx, match.ID, match.Team1, match.Team2); err != nil {
			e.log.WithError(err).WithField("match", match.ID).Warn("game client start failed")
		}
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelGameStarted, "game.started", map[string]any{
			"matchId": match.ID,
			"status":  string(model.MatchInGame),
			"startTime": now,
			"team1":   match.Team1,
			"team2":   match.Team2,
			"pickBanData": match.PickBanData,
		}, roster...)
	}
	return nil
}

// TickExpiry examines every active game and cancels it with reason
// "timeout" once it has run longer than the configured timeout.
func (e *Engine) TickExpiry(ctx context.Context) error {
	active, err := e.kvStore.HashGetAll(ctx, activeGamesKey)
	if err != nil {
		return fmt.Errorf("gamemonitor: list active games: %w", err)
	}
	for matchID, startedMs := range active {
		var startedAt int64
		fmt.Sscanf(startedMs, "%d", &startedAt)
		if time.Since(time.UnixMilli(startedAt)) <= e.timeout {
			continue
		}
		if err := e.cancelOne(ctx, matchID); err != nil {
			e.log.WithError(err).WithField("match", matchID).Warn("game expiry cancel failed")
		}
	}
	return nil
}

// cancelOne expires matchID under a single-shot lock so concurrent
// tickers on different replicas only fire the cancellation once.
func (e *Engine) cancelOne(ctx context.Context, matchID string) error {
	handle, err := e.locker.TryLock(ctx, "game:cancel:"+matchID, cancelLockWait, cancelLockLease)
	if err != nil {
		return fmt.Errorf("gamemonitor: acquire cancel lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return nil
	}
	defer handle.Unlock(ctx)

	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("gamemonitor: load match %s: %w", matchID, err)
	}
	if !ok || match.Status.Terminal() {
		return nil
	}
	return e.finish(ctx, match, 0, "timeout")
}

// Finish declares matchID's result under lock:game:finish:<matchId>,
// recomputing LP and tearing the match down.
func (e *Engine) Finish(ctx context.Context, matchID string, winnerTeam int, reason string) error {
	handle, err := e.locker.TryLock(ctx, "game:finish:"+matchID, finishLockWait, finishLockLease)
	if err != nil {
		return fmt.Errorf("gamemonitor: acquire finish lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, matchID, "game:finish")
	}
	defer handle.Unlock(ctx)

	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("gamemonitor: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "game:finish")
	}
	if match.Status.Terminal() {
		return nil
	}
	if match.Status != model.MatchInGame {
		return errs.New(errs.NotInPhase, matchID, "game:finish")
	}
	return e.finish(ctx, match, winnerTeam, reason)
}

// finish performs the six-step sequence from a caller holding the match's
// finish lock (Finish) or its cancel lock (the expiry canceller):
// reconcile PlayerState, compute and persist LP deltas, mark the match
// completed, reset everyone to AVAILABLE, clear ownership, and publish.
func (e *Engine) finish(ctx context.Context, match model.Match, winnerTeam int, reason string) error {
	roster := match.Roster()
	for _, name := range roster {
		if err := e.players.ForceSet(ctx, name, model.InGame); err != nil {
			return fmt.Errorf("gamemonitor: reconcile %s to IN_GAME: %w", name, err)
		}
	}

	team1 := rosterNames(match.Team1)
	team2 := rosterNames(match.Team2)
	deltas := model.TeamLPDeltas(e.lpConfig, team1, team2, match.AverageMmrTeam1, match.AverageMmrTeam2, winnerTeam)
	if len(deltas) > 0 {
		if err := e.sql.ApplyLPDeltas(ctx, deltas); err != nil {
			return fmt.Errorf("gamemonitor: apply LP deltas for %s: %w", match.ID, err)
		}
	}

	now := time.Now()
	startedMs, _, _ := e.kvStore.HashGet(ctx, activeGamesKey, match.ID)
	var startedAt int64
	fmt.Sscanf(startedMs, "%d", &startedAt)
	if startedAt > 0 {
		match.ActualDuration = int64(now.Sub(time.UnixMilli(startedAt)).Seconds())
	}
	match.Status = model.MatchDone
	match.WinnerTeam = winnerTeam
	match.LpChanges = deltas
	match.UpdatedAt = now
	match.CompletedAt = &now
	if err := e.sql.UpdateMatch(ctx, match); err != nil {
		return fmt.Errorf("gamemonitor: persist completion for %s: %w", match.ID, err)
	}

	if e.gameClient != nil {
		if err := e.gameClient.EndGame(ctx, match.ID); err != nil {
			e.log.WithError(err).WithField("match", match.ID).Warn("game client end failed")
		}
	}

	for _, name := range roster {
		if err := e.players.ForceSet(ctx, name, model.Available); err != nil {
			return fmt.Errorf("gamemonitor: release %s to AVAILABLE: %w", name, err)
		}
	}

	if err := e.ownership.ClearMatchPlayers(ctx, match.ID); err != nil {
		return fmt.Errorf("gamemonitor: clear ownership for %s: %w", match.ID, err)
	}
	if err := e.kvStore.HashDelete(ctx, activeGamesKey, match.ID); err != nil {
		return fmt.Errorf("gamemonitor: unmark %s active: %w", match.ID, err)
	}
	if err := e.kvStore.Delete(ctx, voteKey(match.ID)); err != nil {
		return fmt.Errorf("gamemonitor: clear vote state for %s: %w", match.ID, err)
	}
	if err := e.sql.DeleteMatch(ctx, match.ID); err != nil {
		return fmt.Errorf("gamemonitor: delete match row for %s: %w", match.ID, err)
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelGameFinished, "game.finished", map[string]any{
			"matchId":        match.ID,
			"winnerTeam":     winnerTeam,
			"reason":         reason,
			"actualDuration": match.ActualDuration,
			"lpChanges":      deltas,
		}, roster...)
	}
	return nil
}

// spectatorChannels maps a SpectatorAction's action name to the bus
// channel it publishes on.
var spectatorChannels = map[string]string{
	"mute":   bus.ChannelSpectatorMute,
	"unmute": bus.ChannelSpectatorUnmute,
	"add":    bus.ChannelSpectatorAdd,
	"remove": bus.ChannelSpectatorRemove,
}

// SpectatorAction publishes a spectator:{mute,unmute,add,remove} event for
// matchID on behalf of actorName, who must be a member of that match's
// roster — gamemonitor is the only phase where spectating is meaningful,
// so it owns this thin pass-through rather than a dedicated component.
func (e *Engine) SpectatorAction(ctx context.Context, matchID, actorName, action, targetName string) error {
	channel, known := spectatorChannels[action]
	if !known {
		return errs.New(errs.IllegalTransition, matchID, "spectator:"+action)
	}

	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("gamemonitor: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "spectator:"+action)
	}
	if match.TeamOf(actorName) == 0 {
		return errs.New(errs.AlreadyOwned, matchID, "spectator:not_roster")
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, channel, "spectator."+action, map[string]any{
			"matchId": matchID,
			"actor":   actorName,
			"target":  targetName,
		}, match.Roster()...)
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

// VoteWinner records one player's winner ballot under
// lock:game:finish:<matchId> (the vote family shares finish's lock), and
// finalises the match once six ballots agree on the same team.
func (e *Engine) VoteWinner(ctx context.Context, matchID, summonerName string, votedTeam int) error {
	handle, err := e.locker.TryLock(ctx, "game:finish:"+matchID, voteLockWait, voteLockLease)
	if err != nil {
		return fmt.Errorf("gamemonitor: acquire vote lock for %s: %w", matchID, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, matchID, "game:vote")
	}
	defer handle.Unlock(ctx)

	match, ok, err := e.sql.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("gamemonitor: load match %s: %w", matchID, err)
	}
	if !ok {
		return errs.New(errs.UnknownMatch, matchID, "game:vote")
	}
	if match.Status != model.MatchInGame {
		return errs.New(errs.NotInPhase, matchID, "game:vote")
	}

	if err := e.kvStore.HashPutAll(ctx, voteKey(matchID), map[string]string{
		model.NormalizeName(summonerName): fmt.Sprintf("%d", votedTeam),
	}); err != nil {
		return fmt.Errorf("gamemonitor: record vote for %s: %w", summonerName, err)
	}

	ballots, err := e.kvStore.HashGetAll(ctx, voteKey(matchID))
	if err != nil {
		return fmt.Errorf("gamemonitor: read ballots for %s: %w", matchID, err)
	}
	votesTeam1, votesTeam2 := 0, 0
	for _, v := range ballots {
		switch v {
		case "1":
			votesTeam1++
		case "2":
			votesTeam2++
		}
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelGameWinnerVote, "game.winner_vote", map[string]any{
			"matchId":      matchID,
			"summonerName": summonerName,
			"votedTeam":    votedTeam,
			"votesTeam1":   votesTeam1,
			"votesTeam2":   votesTeam2,
			"totalNeeded":  votesToWin,
		}, match.Roster()...)
	}

	switch {
	case votesTeam1 >= votesToWin:
		return e.finish(ctx, match, 1, "vote")
	case votesTeam2 >= votesToWin:
		return e.finish(ctx, match, 2, "vote")
	}
	return nil
}
