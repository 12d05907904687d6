package timer

import "errors"

var (
	// ErrInvalidRequest wraps every validation failure
	ErrInvalidRequest = errors.New("invalid timer request")
	// ErrNoActiveSession is returned when a command needs a running session
	ErrNoActiveSession = errors.New("no active check-in session")
	// ErrExtensionLimit is returned once a session has used all its extensions
	ErrExtensionLimit = errors.New("extension limit reached")
	// ErrOwnerMismatch is returned when a command names someone other than the connected user
	ErrOwnerMismatch = errors.New("command owner does not match connection")
)
