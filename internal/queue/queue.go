// Package queue implements the queue engine (C4): admission into the
// matchmaking pool and the team-formation loop that turns ten idle
// entries into a proposed match. The periodic matcher loop follows the
// teacher's own ticker-in-goroutine idiom (cmd/server's session-cleanup
// job), generalized to run only on the replica holding the named
// distributed lock rather than on every replica unconditionally.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/riftlobby/matchcore/internal/adapters"
	"github.com/riftlobby/matchcore/internal/bus"
	"github.com/riftlobby/matchcore/internal/errs"
	"github.com/riftlobby/matchcore/internal/kv"
	"github.com/riftlobby/matchcore/internal/model"
	"github.com/riftlobby/matchcore/internal/playerstate"
)

const (
	joinLockLease    = 5 * time.Second
	matcherLockWait  = 0
	matcherLockLease = 10 * time.Second
	matcherRenew     = 3 * time.Second
	minCohort        = 10
)

// MatchFoundHandler is invoked with a freshly formed proposal once the
// matcher assembles a full cohort; it is implemented by
// internal/acceptance in the wired engine.
type MatchFoundHandler func(ctx context.Context, match model.Match) error

// Engine is the queue admission and team-formation driver.
type Engine struct {
	kv           kv.Store
	locker       kv.Locker
	sql          adapters.SqlStore
	players      *playerstate.Registry
	publisher    bus.Publisher
	onMatchFound MatchFoundHandler
	log          *logrus.Entry

	enabled bool
}

// Config bundles the Engine's dependencies.
type Config struct {
	KV           kv.Store
	Locker       kv.Locker
	SQL          adapters.SqlStore
	Players      *playerstate.Registry
	Publisher    bus.Publisher
	OnMatchFound MatchFoundHandler
	Log          *logrus.Entry
}

// New builds a queue Engine. The cohort size is the fixed minCohort
// constant (10): the matcher's lane assignment always produces one
// player per lane per team (§4.4), so there is no config knob for it
// here — queue.min_cohort is validated to equal 10 at config.Load time
// instead, since any other value would leave the lane algorithm unable
// to produce a valid ten-player roster.
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
		publisher:    cfg.Publisher,
		onMatchFound: cfg.OnMatchFound,
		log:          log,
		enabled:      true,
	}
}

// Disable makes every Join call return an errs.NotInPhase error with
// phase "queue_disabled", for maintenance windows or deployments that
// haven't finished wiring a cohort path. The errs package has no
// NotConfigured kind.
func (e *Engine) Disable() { e.enabled = false }

// Join admits player into the matchmaking pool with their lane
// preferences, per §4.4's admission sequence.
func (e *Engine) Join(ctx context.Context, player model.Player, primary, secondary model.Lane) error {
	if !e.enabled {
		return errs.New(errs.NotInPhase, "", "queue_disabled")
	}

	lockName := "queue:join:" + model.NormalizeName(player.SummonerName)
	handle, err := e.locker.TryLock(ctx, lockName, joinLockLease, joinLockLease)
	if err != nil {
		return fmt.Errorf("queue: acquire join lock for %s: %w", player.SummonerName, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, "", "queue_join")
	}
	defer handle.Unlock(ctx)

	state, err := e.players.Get(ctx, player.SummonerName)
	if err != nil {
		return err
	}
	if state != model.Available && state != model.InQueue {
		return errs.New(errs.Conflict, "", "queue_join_state="+string(state))
	}

	entry := model.QueueEntry{
		PlayerID:         player.SummonerName,
		SummonerName:     player.SummonerName,
		Region:           player.Region,
		CustomLp:         player.CustomLp,
		CustomMmr:        player.CustomMmr(),
		PrimaryLane:      primary,
		SecondaryLane:    secondary,
		JoinTime:         time.Now(),
		AcceptanceStatus: model.AcceptanceIdle,
	}
	if err := e.sql.UpsertQueueEntry(ctx, entry); err != nil {
		return fmt.Errorf("queue: upsert entry for %s: %w", player.SummonerName, err)
	}

	if err := e.players.Set(ctx, player.SummonerName, model.InQueue); err != nil {
		return err
	}

	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelQueuePlayerJoined, "queue.player_joined", entry)
	}
	return nil
}

// Leave withdraws player from the matchmaking pool, symmetric to Join.
func (e *Engine) Leave(ctx context.Context, summonerName string) error {
	lockName := "queue:join:" + model.NormalizeName(summonerName)
	handle, err := e.locker.TryLock(ctx, lockName, joinLockLease, joinLockLease)
	if err != nil {
		return fmt.Errorf("queue: acquire join lock for %s: %w", summonerName, err)
	}
	if handle == nil {
		return errs.New(errs.Contended, "", "queue_leave")
	}
	defer handle.Unlock(ctx)

	if err := e.sql.DeleteQueueEntry(ctx, summonerName); err != nil {
		return fmt.Errorf("queue: delete entry for %s: %w", summonerName, err)
	}
	if err := e.players.Set(ctx, summonerName, model.Available); err != nil {
		return err
	}
	if e.publisher != nil {
		_ = e.publisher.Publish(ctx, bus.ChannelQueuePlayerLeft, "queue.player_left", summonerName)
	}
	return nil
}

// RunMatcherLoop runs the team-formation loop until ctx is cancelled,
// attempting to acquire lock:queue:matcher on every tick and forming a
// cohort when one replica holds it and the pool has enough idle
// entries. It mirrors the teacher's periodic-ticker-goroutine pattern.
func (e *Engine) RunMatcherLoop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tryFormMatch(ctx); err != nil {
				e.log.WithError(err).Warn("matcher loop iteration failed")
			}
		}
	}
}

func (e *Engine) tryFormMatch(ctx context.Context) error {
	handle, err := e.locker.TryLock(ctx, "queue:matcher", matcherLockWait, matcherLockLease)
	if err != nil {
		return fmt.Errorf("queue: acquire matcher lock: %w", err)
	}
	if handle == nil {
		return nil
	}
	defer handle.Unlock(ctx)

	entries, err := e.sql.ListQueueEntries(ctx)
	if err != nil {
		return fmt.Errorf("queue: list entries: %w", err)
	}

	idle := make([]model.QueueEntry, 0, len(entries))
	for _, en := range entries {
		if en.AcceptanceStatus == model.AcceptanceIdle {
			idle = append(idle, en)
		}
	}
	if len(idle) < minCohort {
		return nil
	}

	cohort, match := formCohort(idle)
	match.ID = uuid.NewString()
	match.Status = model.MatchFound
	match.CreatedAt = time.Now()
	match.UpdatedAt = match.CreatedAt

	for _, en := range cohort {
		en.AcceptanceStatus = model.AcceptanceAwaiting
		if err := e.sql.UpsertQueueEntry(ctx, en); err != nil {
			return fmt.Errorf("queue: mark awaiting for %s: %w", en.SummonerName, err)
		}
	}

	if e.onMatchFound != nil {
		if err := e.onMatchFound(ctx, match); err != nil {
			return fmt.Errorf("queue: hand off match %s: %w", match.ID, err)
		}
	}
	return nil
}

// formCohort implements the §4.4 team-formation algorithm: sort by join
// time, assign lanes greedily (primary, then secondary, then autofill),
// split into two MMR-balanced teams of one player per lane via a bounded
// swap search, then order slots top/jungle/mid/bot/support.
func formCohort(idle []model.QueueEntry) ([]model.QueueEntry, model.Match) {
	sort.Slice(idle, func(i, j int) bool { return idle[i].JoinTime.Before(idle[j].JoinTime) })
	cohort := idle[:minCohort]

	assigned := assignLanes(cohort)
	team1, team2 := splitTeams(assigned)

	m := model.Match{
		Team1:           slotsFor(team1),
		Team2:           slotsFor(team2),
		AverageMmrTeam1: meanMmr(team1),
		AverageMmrTeam2: meanMmr(team2),
	}
	return cohort, m
}

type assignedPlayer struct {
	entry    model.QueueEntry
	lane     model.Lane
	autofill bool
}

// assignLanes picks two candidates per lane (top, jungle, mid, bot,
// support) — one for each team: primary-lane match first, longest wait
// breaking ties; falling back to secondary-lane match; falling back to
// the earliest unassigned player as autofill. Ten picks total (five
// lanes, two per lane) feed splitTeams' one-per-lane-per-team split.
func assignLanes(cohort []model.QueueEntry) []assignedPlayer {
	used := make(map[string]bool, len(cohort))
	var result []assignedPlayer

	pick := func(lane model.Lane, byField func(model.QueueEntry) model.Lane) (model.QueueEntry, bool) {
		var best *model.QueueEntry
		for i := range cohort {
			c := cohort[i]
			if used[model.NormalizeName(c.SummonerName)] {
				continue
			}
			if byField(c) != lane {
				continue
			}
			if best == nil || c.JoinTime.Before(best.JoinTime) {
				best = &cohort[i]
			}
		}
		if best == nil {
			return model.QueueEntry{}, false
		}
		return *best, true
	}

	for _, lane := range model.OrderedLanes {
		for slot := 0; slot < 2; slot++ {
			if c, ok := pick(lane, func(e model.QueueEntry) model.Lane { return e.PrimaryLane }); ok {
				used[model.NormalizeName(c.SummonerName)] = true
				result = append(result, assignedPlayer{entry: c, lane: lane})
				continue
			}
			if c, ok := pick(lane, func(e model.QueueEntry) model.Lane { return e.SecondaryLane }); ok {
				used[model.NormalizeName(c.SummonerName)] = true
				result = append(result, assignedPlayer{entry: c, lane: lane})
				continue
			}
			// Autofill: earliest unassigned player takes the remaining lane.
			for i := range cohort {
				c := cohort[i]
				if !used[model.NormalizeName(c.SummonerName)] {
					used[model.NormalizeName(c.SummonerName)] = true
					result = append(result, assignedPlayer{entry: c, lane: lane, autofill: true})
					break
				}
			}
		}
	}
	return result
}

// splitTeams divides ten lane-assigned players into two five-player
// teams, one per lane, minimizing the MMR gap via a bounded same-lane
// swap search (at most ten iterations).
func splitTeams(assigned []assignedPlayer) ([]assignedPlayer, []assignedPlayer) {
	byLane := make(map[model.Lane][]assignedPlayer, 5)
	for _, a := range assigned {
		byLane[a.lane] = append(byLane[a.lane], a)
	}

	var team1, team2 []assignedPlayer
	for _, lane := range model.OrderedLanes {
		pair := byLane[lane]
		if len(pair) != 2 {
			// Defensive: assignLanes always produces exactly two per lane
			// for a ten-player cohort with five lanes; if it somehow
			// doesn't, fall back to a stable split so the caller always
			// gets ten players back.
			for i, a := range pair {
				if i%2 == 0 {
					team1 = append(team1, a)
				} else {
					team2 = append(team2, a)
				}
			}
			continue
		}
		if pair[0].entry.CustomMmr >= pair[1].entry.CustomMmr {
			team1 = append(team1, pair[0])
			team2 = append(team2, pair[1])
		} else {
			team1 = append(team1, pair[1])
			team2 = append(team2, pair[0])
		}
	}

	gap := func(a, b []assignedPlayer) float64 {
		return meanMmrAssigned(a) - meanMmrAssigned(b)
	}

	for iter := 0; iter < 10; iter++ {
		bestGap := absFloat(gap(team1, team2))
		improved := false
		for idx := range team1 {
			if team1[idx].lane != team2[idx].lane {
				continue
			}
			team1[idx], team2[idx] = team2[idx], team1[idx]
			newGap := absFloat(gap(team1, team2))
			if newGap < bestGap {
				bestGap = newGap
				improved = true
			} else {
				team1[idx], team2[idx] = team2[idx], team1[idx]
			}
		}
		if !improved {
			break
		}
	}

	return team1, team2
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func meanMmr(players []assignedPlayer) float64 {
	return meanMmrAssigned(players)
}

func meanMmrAssigned(players []assignedPlayer) float64 {
	if len(players) == 0 {
		return 0
	}
	sum := 0
	for _, p := range players {
		sum += p.entry.CustomMmr
	}
	return float64(sum) / float64(len(players))
}

func slotsFor(players []assignedPlayer) []model.RosterSlot {
	slots := make([]model.RosterSlot, len(players))
	for i, p := range players {
		slots[i] = model.RosterSlot{
			SummonerName: p.entry.SummonerName,
			Lane:         p.lane,
			Autofill:     p.autofill,
		}
	}
	return slots
}
