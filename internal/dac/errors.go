package dac

import "errors"

// UsageError reports a mistake at the call site: the operation was invoked
// in a state or with arguments it cannot accept. The caller must fix the
// call, retrying will not help.
type UsageError struct {
	Op     string
	Reason string
}

func (e *UsageError) Error() string {
	return "dac: " + e.Op + ": " + e.Reason
}

// ErrSessionClosed is returned by in-flight commands when the session is
// closed underneath them. Closing is the only hard-cancel path; pending
// response handlers are dropped and their waiters receive this error.
var ErrSessionClosed = errors.New("dac: session closed")
