package model

// PlayerState is the phase a player occupies in the match lifecycle,
// mutated only through the playerstate registry.
type PlayerState string

const (
	Available    PlayerState = "AVAILABLE"
	InQueue      PlayerState = "IN_QUEUE"
	InMatchFound PlayerState = "IN_MATCH_FOUND"
	InDraft      PlayerState = "IN_DRAFT"
	InGame       PlayerState = "IN_GAME"
)
