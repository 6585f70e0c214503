package services

import "errors"

// Precondition and conflict errors shared across services. Handlers map
// these onto HTTP statuses; anything else is treated as an internal or
// upstream failure.
var (
	ErrProfileIncomplete = errors.New("personality questionnaire not completed")
	ErrGameNotFound      = errors.New("game not found")
	ErrGameFinished      = errors.New("game already finished")
	ErrNotParticipant    = errors.New("user is not a participant of this game")
	ErrRoundConflict     = errors.New("round was advanced by a concurrent request")
	ErrNoCredential      = errors.New("no valid agent credential")
)
