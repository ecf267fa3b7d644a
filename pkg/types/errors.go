package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds named in the error handling
// design. None of these propagate out of a handler — handlers log and
// drop the triggering envelope; these are returned from the narrow set
// of calls made at startup or from tests that want to assert on a
// specific failure kind.
var (
	// ErrInvalidConfiguration signals f >= N/3 (or any other
	// malformed Configuration) detected at process startup. Fatal:
	// the process must abort start.
	ErrInvalidConfiguration = errors.New("dolev-brb-rco: invalid configuration")

	// ErrMalformedEnvelope signals a missing or invalid phase/field on
	// a received envelope. The envelope is dropped and the error is
	// logged at warning level; it never reaches the caller.
	ErrMalformedEnvelope = errors.New("dolev-brb-rco: malformed envelope")

	// ErrUnknownPhase is a more specific ErrMalformedEnvelope for an
	// envelope whose Phase value is outside {SEND, ECHO, READY}.
	ErrUnknownPhase = fmt.Errorf("%w: unknown phase", ErrMalformedEnvelope)

	// ErrTransportSend signals a best-effort send to a peer failed.
	// DolevRC's redundant flood covers it: the error is logged and
	// never retried at this layer.
	ErrTransportSend = errors.New("dolev-brb-rco: transport send failed")

	// ErrStopped is logged when a task is scheduled on a process after
	// Stop has been invoked; the task is dropped.
	ErrStopped = errors.New("dolev-brb-rco: process stopped")
)
