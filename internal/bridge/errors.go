package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkerUnavailable is returned when no worker is running or the worker
	// exited while the call was pending.
	ErrWorkerUnavailable = errors.New("bridge: worker unavailable")

	// ErrCallTimeout is returned when a call's deadline passes before the
	// worker answers. The channel is then treated as desynchronized.
	ErrCallTimeout = errors.New("bridge: call timed out")
)

// ProtocolError reports a line from the worker that could not be decoded or
// attributed to a pending call.
type ProtocolError struct {
	Reason string
	Line   string
}

func (e *ProtocolError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return fmt.Sprintf("bridge: protocol error: %s: %q", e.Reason, line)
}

// WorkerError is a well-formed response whose only content is an error
// message reported by the worker itself.
type WorkerError struct {
	Func    string
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("bridge: %s: worker error: %s", e.Func, e.Message)
}
