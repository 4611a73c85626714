package conversation

import (
	"errors"
	"fmt"
)

// ErrUnknownConversation is returned for an id the manager does not hold.
var ErrUnknownConversation = errors.New("conversation: unknown conversation")

// ValidationError reports input that did not contain what the current phase
// expects.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("conversation: invalid %s %q", e.Field, e.Value)
}

// CollaboratorError wraps a failure of an external service the machine
// depends on.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("conversation: %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// userFacing is implemented by collaborator errors whose text may be shown
// to the user as-is.
type userFacing interface {
	UserMessage() string
}

// authFailure is implemented by errors that mean the credentials were
// rejected, as opposed to the service failing.
type authFailure interface {
	AuthFailure() bool
}

func isAuthFailure(err error) bool {
	var af authFailure
	return errors.As(err, &af) && af.AuthFailure()
}

func userMessage(err error) (string, bool) {
	var uf userFacing
	if errors.As(err, &uf) {
		if msg := uf.UserMessage(); msg != "" {
			return msg, true
		}
	}
	return "", false
}
