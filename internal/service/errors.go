package service

import "errors"

// Sentinel errors for chat operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyDraft indicates Send was called with nothing to send.
	ErrEmptyDraft = errors.New("message cannot be empty")

	// ErrUnresolvedParticipant indicates the local user or the counterpart is
	// missing from the current roster, so no ids can be put on the wire.
	ErrUnresolvedParticipant = errors.New("participant not in roster")

	// ErrNoCounterpart indicates no conversation is selected.
	ErrNoCounterpart = errors.New("no counterpart selected")

	// ErrNotConnected indicates the messaging connection is not established.
	ErrNotConnected = errors.New("not connected")
)
