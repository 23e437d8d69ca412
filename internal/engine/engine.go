// Package engine wires every lifecycle component (C1-C9) into one
// object exposing the client RPC surface named in §6: joinQueue,
// leaveQueue, acceptMatch, declineMatch, draftAction, confirmDraft, and
// voteWinner. It is the composition root a transport-layer adapter (not
// part of this module) calls into per authenticated request.
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riftlobby/matchcore/internal/acceptance"
	"github.com/riftlobby/matchcore/internal/adapters"
	"github.com/riftlobby/matchcore/internal/bus"
	"github.com/riftlobby/matchcore/internal/config"
	"github.com/riftlobby/matchcore/internal/draft"
	"github.com/riftlobby/matchcore/internal/gamemonitor"
	"github.com/riftlobby/matchcore/internal/janitor"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/ownership"
	"github.com/riftlobby/matchcore/internal/playerstate"
	"github.com/riftlobby/matchcore/internal/queue"
)

// Deps bundles every driver the Engine wires together. The caller (e.g.
// cmd/server) constructs the concrete Redis/SQLite/Noop implementations
// and hands them in as interfaces, per the driver-injection design.
type Deps struct {
	KV         kv.Store
	Locker     kv.Locker
	SQL        adapters.SqlStore
	Bus        bus.Transport
	GameClient adapters.GameClientBridge
	Chat       adapters.ChatBridge
	Ranked     adapters.RankedDataBridge
	Config     *config.Config
	Log        *logrus.Entry
}

// Engine is the fully wired match-lifecycle coordinator.
type Engine struct {
	Players     *playerstate.Registry
	Ownership   *ownership.Registry
	Queue       *queue.Engine
	Acceptance  *acceptance.Engine
	Draft       *draft.Engine
	GameMonitor *gamemonitor.Engine
	Janitor     *janitor.Engine

	ranked adapters.RankedDataBridge
	chat   adapters.ChatBridge
	log    *logrus.Entry
}

// New wires every component, threading the MatchFoundHandler /
// DraftStartHandler / GameStartHandler callbacks that hand a match off
// from one phase's engine to the next.
func New(d Deps) *Engine {
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	players := playerstate.New(d.KV, d.Config.PlayerLockTTL)
	own := ownership.New(d.KV)

	e := &Engine{
		Players:   players,
		Ownership: own,
		ranked:    d.Ranked,
		chat:      d.Chat,
		log:       log,
	}

	e.GameMonitor = gamemonitor.New(gamemonitor.Config{
		Locker:     d.Locker,
		KV:         d.KV,
		SQL:        d.SQL,
		Players:    players,
		Ownership:  own,
		Publisher:  d.Bus,
		GameClient: d.GameClient,
		LPConfig:   model.DefaultLPConfig,
		Timeout:    d.Config.GameTimeout,
		Log:        log.WithField("component", "gamemonitor"),
	})

	e.Draft = draft.New(draft.Config{
		Locker:        d.Locker,
		SQL:           d.SQL,
		Publisher:     d.Bus,
		OnGameStart:   e.GameMonitor.StartGame,
		ActionTimeout: d.Config.DraftActionTimeout,
		Log:           log.WithField("component", "draft"),
	})

	e.Acceptance = acceptance.New(acceptance.Config{
		KV:           d.KV,
		Locker:       d.Locker,
		SQL:          d.SQL,
		Players:      players,
		Ownership:    own,
		Publisher:    d.Bus,
		OnDraftStart: e.Draft.StartDraft,
		Timeout:      d.Config.AcceptanceTimeout,
		BotDelay:     d.Config.BotAutoAcceptDelay,
		Log:          log.WithField("component", "acceptance"),
	})

	e.Queue = queue.New(queue.Config{
		KV:           d.KV,
		Locker:       d.Locker,
		SQL:          d.SQL,
		Players:      players,
		Publisher:    d.Bus,
		OnMatchFound: e.Acceptance.StartAcceptance,
		Log:          log.WithField("component", "queue"),
	})

	e.Janitor = janitor.New(janitor.Config{
		Store:     d.KV,
		SQL:       d.SQL,
		Players:   players,
		Ownership: own,
		Log:       log.WithField("component", "janitor"),
	})

	return e
}

// --- Client RPC surface (§6) ---

// JoinQueue admits player with their lane preferences.
func (e *Engine) JoinQueue(ctx context.Context, player model.Player, primary, secondary model.Lane) error {
	return e.Queue.Join(ctx, player, primary, secondary)
}

// LeaveQueue withdraws summonerName from the matchmaking pool.
func (e *Engine) LeaveQueue(ctx context.Context, summonerName string) error {
	return e.Queue.Leave(ctx, summonerName)
}

// AcceptMatch records summonerName's acceptance of matchID.
func (e *Engine) AcceptMatch(ctx context.Context, matchID, summonerName string) error {
	return e.Acceptance.Accept(ctx, matchID, summonerName)
}

// DeclineMatch records summonerName's decline of matchID, cancelling it.
func (e *Engine) DeclineMatch(ctx context.Context, matchID, summonerName string) error {
	return e.Acceptance.Decline(ctx, matchID, summonerName)
}

// DraftAction applies one ban/pick action to an in-progress draft.
func (e *Engine) DraftAction(ctx context.Context, matchID string, actionIndex int, championID, summonerName string) error {
	return e.Draft.ProcessAction(ctx, matchID, actionIndex, championID, summonerName)
}

// ConfirmDraft records summonerName's confirmation of a completed draft.
func (e *Engine) ConfirmDraft(ctx context.Context, matchID, summonerName string) error {
	return e.Draft.Confirm(ctx, matchID, summonerName)
}

// VoteWinner records summonerName's winner ballot for an in-progress game.
func (e *Engine) VoteWinner(ctx context.Context, matchID, summonerName string, team int) error {
	return e.GameMonitor.VoteWinner(ctx, matchID, summonerName, team)
}

// SpectatorAction applies a mute/unmute/add/remove spectator action,
// authorized against matchID's roster.
func (e *Engine) SpectatorAction(ctx context.Context, matchID, actorName, action, targetName string) error {
	return e.GameMonitor.SpectatorAction(ctx, matchID, actorName, action, targetName)
}

// NotifyPlayer sends a one-off notification (e.g. "your match is ready")
// to summonerName via the configured ChatBridge. A nil bridge is a no-op,
// so wiring NoopChatBridge in tests and development never errors.
func (e *Engine) NotifyPlayer(ctx context.Context, summonerName, message string) error {
	if e.chat == nil {
		return nil
	}
	return e.chat.Notify(ctx, summonerName, message)
}

// LookupRank consults the configured RankedDataBridge for summonerName's
// external rank, for display at the transport layer. A failed or absent
// lookup returns an empty rank rather than surfacing an error to the
// caller, matching the downstream-unavailable handling in the ranked
// data design.
func (e *Engine) LookupRank(ctx context.Context, summonerName string) string {
	if e.ranked == nil {
		return ""
	}
	rank, err := e.ranked.LookupRank(ctx, summonerName)
	if err != nil {
		e.log.WithError(err).WithField("player", summonerName).Warn("ranked data lookup failed")
		return ""
	}
	return rank
}

// RunBackgroundLoops starts every periodic driver (matcher loop,
// acceptance/draft timeout tickers, game expiry, janitor sweep) and
// blocks until ctx is cancelled. Only the matcher loop takes a named lock
// per tick and so runs single-flight across replicas. The other tickers
// run on every replica: the acceptance and draft ticks serialize through
// their per-match locks, game expiry through its per-match cancel lock,
// and the janitor sweep takes no lock.
func (e *Engine) RunBackgroundLoops(ctx context.Context, cfg *config.Config) {
	go e.Queue.RunMatcherLoop(ctx, time.Second)
	go e.runTicker(ctx, time.Second, func(ctx context.Context) error { return e.Acceptance.TickTimeouts(ctx) })
	go e.runTicker(ctx, time.Second, func(ctx context.Context) error { return e.Draft.TickTimeouts(ctx) })
	go e.runTicker(ctx, cfg.GameMonitorInterval, func(ctx context.Context) error { return e.GameMonitor.TickExpiry(ctx) })
	go e.runTicker(ctx, cfg.JanitorInterval, func(ctx context.Context) error { return e.Janitor.Sweep(ctx) })
	<-ctx.Done()
}

func (e *Engine) runTicker(ctx context.Context, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				e.log.WithError(err).Warn("background tick failed")
			}
		}
	}
}
