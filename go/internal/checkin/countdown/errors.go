package countdown

import "errors"

var (
	// ErrNotConnected is returned when the push channel cannot carry a command
	ErrNotConnected = errors.New("push channel not connected")
	// ErrNoSession is returned when a command needs a tracked session and none exists
	ErrNoSession = errors.New("no check-in session is running")
)

// ValidationError reports a request rejected before any command was sent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
