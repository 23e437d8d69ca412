// Package model holds the plain data types shared by every match-lifecycle
// component: players, queue entries, matches, and draft state, plus the
// invariants-adjacent helpers (customSessionId derivation, LP/MMR math)
// that don't belong to any single component.
package model

import (
	"regexp"
	"strings"
)

// Lane is one of the five role preferences a player can declare.
type Lane string

const (
	LaneTop     Lane = "top"
	LaneJungle  Lane = "jungle"
	LaneMid     Lane = "mid"
	LaneBot     Lane = "bot"
	LaneSupport Lane = "support"
	LaneFill    Lane = "fill"
)

// OrderedLanes is the fixed slot order within a team: top, jungle, mid,
// bot, support — slots 0..4 for team 1, 5..9 for team 2.
var OrderedLanes = [5]Lane{LaneTop, LaneJungle, LaneMid, LaneBot, LaneSupport}

// Player is the identity record keyed by summonerName (case-insensitive).
type Player struct {
	SummonerName   string `json:"summonerName"`
	GameName       string `json:"gameName"`
	TagLine        string `json:"tagLine"`
	Region         string `json:"region"`
	BaseMmr        int    `json:"baseMmr"`
	CustomLp       int    `json:"customLp"`
	PrimaryLane    Lane   `json:"primaryLane"`
	SecondaryLane  Lane   `json:"secondaryLane"`
}

// CustomMmr is baseMmr + customLp, the matchmaking rating used by the
// queue engine's team-balancing search.
func (p Player) CustomMmr() int {
	return p.BaseMmr + p.CustomLp
}

var nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// CustomSessionID derives the stable lock key used across reconnects:
// player_<gameName>_<tagLine>, lowercased, with runs of non-alphanumeric
// characters folded to a single underscore.
func CustomSessionID(gameName, tagLine string) string {
	raw := "player_" + gameName + "_" + tagLine
	folded := nonAlphaNum.ReplaceAllString(raw, "_")
	return strings.ToLower(folded)
}

// IsBot reports whether a summoner name is treated as a bot for the
// purposes of acceptance auto-accept. The source system has no bot
// registry; this prefix check is the whole rule, preserved as-is.
func IsBot(summonerName string) bool {
	return strings.HasPrefix(summonerName, "Bot")
}

// NormalizeName lowercases a summonerName for case-insensitive comparisons
// and use as a map/hash key.
func NormalizeName(summonerName string) string {
	return strings.ToLower(summonerName)
}
