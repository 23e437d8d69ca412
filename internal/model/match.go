package model

import "time"

// MatchStatus is the persistent match status, authoritative in SQL on
// recovery (invariant I7).
type MatchStatus string

const (
	MatchFound   MatchStatus = "match_found"
	MatchDraft   MatchStatus = "draft"
	MatchInGame  MatchStatus = "in_progress"
	MatchDone    MatchStatus = "completed"
	MatchCancel  MatchStatus = "cancelled"
)

// Terminal reports whether a match status is one from which no further
// phase transition happens (used by invariant I1's "not in terminal").
func (s MatchStatus) Terminal() bool {
	return s == MatchDone || s == MatchCancel
}

// RosterSlot is one seat in a team, in the fixed lane order.
type RosterSlot struct {
	SummonerName string `json:"summonerName"`
	Lane         Lane   `json:"lane"`
	Autofill     bool   `json:"autofill"`
}

// Match is the persistent record for one cohort's lifecycle.
type Match struct {
	ID               string       `json:"id"`
	Status           MatchStatus  `json:"status"`
	Team1            []RosterSlot `json:"team1Players"`
	Team2            []RosterSlot `json:"team2Players"`
	AverageMmrTeam1  float64      `json:"averageMmrTeam1"`
	AverageMmrTeam2  float64      `json:"averageMmrTeam2"`
	PickBanData      DraftState   `json:"pickBanData"`
	WinnerTeam       int          `json:"winnerTeam"` // 0 = undecided, 1 or 2
	ActualDuration   int64        `json:"actualDuration"` // seconds
	LpChanges        map[string]int `json:"lpChanges"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
}

// Roster returns all ten summoner names across both teams, slot order.
func (m Match) Roster() []string {
	names := make([]string, 0, len(m.Team1)+len(m.Team2))
	for _, s := range m.Team1 {
		names = append(names, s.SummonerName)
	}
	for _, s := range m.Team2 {
		names = append(names, s.SummonerName)
	}
	return names
}

// TeamOf returns 1 or 2 if summonerName is rostered, else 0.
func (m Match) TeamOf(summonerName string) int {
	norm := NormalizeName(summonerName)
	for _, s := range m.Team1 {
		if NormalizeName(s.SummonerName) == norm {
			return 1
		}
	}
	for _, s := range m.Team2 {
		if NormalizeName(s.SummonerName) == norm {
			return 2
		}
	}
	return 0
}
