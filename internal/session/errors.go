package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConnectAborted is returned by [Controller.Connect] when Disconnect was
// called while the dial was still in flight. The controller releases the
// microphone, discards the late channel, and stays DISCONNECTED.
var ErrConnectAborted = errors.New("session: connect aborted by disconnect")

// ErrorKind classifies a session failure for the user-visible error slot.
type ErrorKind int

const (
	// ErrorDevice is a microphone acquisition failure (unavailable/denied).
	ErrorDevice ErrorKind = iota

	// ErrorCredential is a missing or rejected credential, including a
	// channel failure carrying the entity-not-found signature.
	ErrorCredential

	// ErrorChannel is a generic connectivity failure on the engine channel.
	ErrorChannel
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorDevice:
		return "DEVICE"
	case ErrorCredential:
		return "CREDENTIAL"
	case ErrorChannel:
		return "CHANNEL"
	default:
		return "UNKNOWN"
	}
}

// ClassifiedError is the single current-error slot value: the latest failure
// with a user-presentable message. It is replaced, not queued, on each new
// error.
type ClassifiedError struct {
	// Kind selects the user-visible presentation and recovery hint.
	Kind ErrorKind

	// Message is the user-presentable summary.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Message, e.Err)
	}
	return "session: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *ClassifiedError) Unwrap() error { return e.Err }

// entityNotFoundSignature is the substring that identifies a credential or
// project mismatch in an engine error detail, as opposed to a transient
// network failure.
const entityNotFoundSignature = "entity not found"

// classifyChannelError maps a channel-level failure onto the user-visible
// error taxonomy. An entity-not-found detail means the credential does not
// match a known project and the user should be re-prompted; anything else
// is generic connectivity trouble.
func classifyChannelError(err error) *ClassifiedError {
	if strings.Contains(strings.ToLower(err.Error()), entityNotFoundSignature) {
		return &ClassifiedError{
			Kind:    ErrorCredential,
			Message: "the engine rejected the configured credential",
			Err:     err,
		}
	}
	return &ClassifiedError{
		Kind:    ErrorChannel,
		Message: "lost the connection to the engine",
		Err:     err,
	}
}
