package canvaslease

import "errors"

var (
	// ErrLeaseUnavailable is returned when an edit is refused because
	// another client holds a non-stale lock on the object.
	ErrLeaseUnavailable = errors.New("object is locked by another user")

	// ErrReplayBlocked is returned when undo/redo refuses to run because
	// the live object state conflicts with the command's expectations.
	ErrReplayBlocked = errors.New("replay blocked")

	// ErrMissingActor is returned when an operation requires an
	// authenticated actor and none is configured.
	ErrMissingActor = errors.New("no authenticated user")

	// ErrNothingToUndo and ErrNothingToRedo are returned when the
	// corresponding stack is empty.
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrSessionClosed is returned for operations issued after teardown.
	ErrSessionClosed = errors.New("session is closed")
)
