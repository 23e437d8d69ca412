package model

import "math"

// LPConfig fixes the ELO-like constants used for post-match LP
// recomputation (Open Question resolution, spec §9). Only KFactor is read
// by TeamLPDeltas; BaselineMmr records the default base rating and is not
// read here, since team means come from each player's CustomMmr.
type LPConfig struct {
	KFactor    float64
	BaselineMmr int
}

// DefaultLPConfig matches the spec's fixed constants: K=32, baseline 1000.
var DefaultLPConfig = LPConfig{KFactor: 32, BaselineMmr: 1000}

// ExpectedScore is the standard ELO expected-score formula for team A
// against team B, given each team's mean MMR.
func ExpectedScore(meanMmrA, meanMmrB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (meanMmrB-meanMmrA)/400.0))
}

// TeamLPDeltas computes the LP delta for every member of a ten-player
// match given the pre-match mean MMR of each team and which team won.
// Every winner shares one expected score and every loser shares its
// complement, so the law "team-pair conservation" holds: sum(winner
// gains) == sum(loser losses).
func TeamLPDeltas(cfg LPConfig, team1, team2 []string, meanMmr1, meanMmr2 float64, winnerTeam int) map[string]int {
	deltas := make(map[string]int, len(team1)+len(team2))

	expected1 := ExpectedScore(meanMmr1, meanMmr2)
	expected2 := 1 - expected1

	gain := func(expected float64) int {
		return int(math.Round(cfg.KFactor * (1 - expected)))
	}
	loss := func(expected float64) int {
		return -int(math.Round(cfg.KFactor * expected))
	}

	switch winnerTeam {
	case 1:
		for _, name := range team1 {
			deltas[NormalizeName(name)] = gain(expected1)
		}
		for _, name := range team2 {
			deltas[NormalizeName(name)] = loss(expected2)
		}
	case 2:
		for _, name := range team2 {
			deltas[NormalizeName(name)] = gain(expected2)
		}
		for _, name := range team1 {
			deltas[NormalizeName(name)] = loss(expected1)
		}
	}
	return deltas
}
