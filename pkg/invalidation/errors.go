package invalidation

import "errors"

var (
	// ErrEngineClosed is returned when events are queued after Shutdown.
	ErrEngineClosed = errors.New("invalidation engine closed")

	// ErrUnknownEvent indicates an event key that maps to no EventKind.
	ErrUnknownEvent = errors.New("unknown invalidation event")

	// ErrRuleFailed wraps a failure inside a single rule. Other rules of the
	// same event are still applied.
	ErrRuleFailed = errors.New("invalidation rule failed")

	// ErrInvalidRule indicates a rule definition that cannot be used.
	ErrInvalidRule = errors.New("invalid invalidation rule")
)
