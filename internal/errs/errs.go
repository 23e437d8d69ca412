// Package errs defines the typed error kinds shared across the match
// lifecycle components, per the error handling design: kinds rather than
// exception hierarchies, always carrying the match and phase they were
// raised in for correlation.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error categories every component can raise.
type Kind string

const (
	Contended            Kind = "contended"
	LockLost             Kind = "lock_lost"
	IllegalTransition     Kind = "illegal_transition"
	AlreadyOwned         Kind = "already_owned"
	OutOfTurn            Kind = "out_of_turn"
	WrongTeam            Kind = "wrong_team"
	ChampionUsed         Kind = "champion_used"
	DraftComplete        Kind = "draft_complete"
	NotInPhase           Kind = "not_in_phase"
	UnknownMatch         Kind = "unknown_match"
	Timeout              Kind = "timeout"
	Conflict             Kind = "conflict"
	DownstreamUnavailable Kind = "downstream_unavailable"
)

// Error is the concrete error type raised by every component in this
// module. It always carries the kind, and, where known, the match and
// phase it occurred in so the failure can be correlated by a caller or a
// log aggregator without parsing the message string.
type Error struct {
	Kind    Kind
	MatchID string
	Phase   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: match=%s phase=%s: %v", e.Kind, e.MatchID, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: match=%s phase=%s", e.Kind, e.MatchID, e.Phase)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, errs.New(errs.Contended, "", "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an Error for the given kind/match/phase with no wrapped cause.
func New(kind Kind, matchID, phase string) *Error {
	return &Error{Kind: kind, MatchID: matchID, Phase: phase}
}

// Wrap builds an Error for the given kind/match/phase wrapping cause.
func Wrap(kind Kind, matchID, phase string, cause error) *Error {
	return &Error{Kind: kind, MatchID: matchID, Phase: phase, Err: cause}
}

// Of reports the Kind of err, or "" if err is not one of ours.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinel values for errors.Is comparisons against a bare kind.
var (
	ErrContended             = New(Contended, "", "")
	ErrLockLost              = New(LockLost, "", "")
	ErrIllegalTransition     = New(IllegalTransition, "", "")
	ErrAlreadyOwned          = New(AlreadyOwned, "", "")
	ErrOutOfTurn             = New(OutOfTurn, "", "")
	ErrWrongTeam             = New(WrongTeam, "", "")
	ErrChampionUsed          = New(ChampionUsed, "", "")
	ErrDraftComplete         = New(DraftComplete, "", "")
	ErrNotInPhase            = New(NotInPhase, "", "")
	ErrUnknownMatch          = New(UnknownMatch, "", "")
	ErrTimeout               = New(Timeout, "", "")
	ErrConflict              = New(Conflict, "", "")
	ErrDownstreamUnavailable = New(DownstreamUnavailable, "", "")
)
