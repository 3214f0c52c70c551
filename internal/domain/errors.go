package domain

import "errors"

var (
	// ErrAuthFailed means a credential refresh failed; fatal for the
	// session. A recoverable token expiry is handled inside the gateway
	// and never surfaces.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrValidation covers missing selections and invalid payloads; surfaced
	// inline, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrTransport marks the realtime channel as unreachable; degrades
	// multiplayer features but never breaks solo play.
	ErrTransport = errors.New("realtime transport unavailable")
	// ErrSubmissionConflict is an answer for an already-submitted question;
	// treated as a no-op success so retries stay idempotent.
	ErrSubmissionConflict = errors.New("question already submitted")
	// ErrUnrecognizedCommand is a voice utterance outside the grammar; the
	// interpreter prompts for clarification rather than ignoring it.
	ErrUnrecognizedCommand = errors.New("unrecognized voice command")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptFinished is returned for operations on a finalized attempt.
	ErrAttemptFinished = errors.New("attempt already finished")
)
