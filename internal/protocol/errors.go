package protocol

import "fmt"

// ProtocolError reports a malformed wire frame: a decode attempted on
// fewer bytes than the frame's fixed size. When responses are driven
// through the demultiplexer these cannot occur, because it only
// dispatches complete frames.
type ProtocolError struct {
	Frame string // which frame kind was malformed
	Got   int    // bytes available
	Need  int    // bytes the frame requires
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s too short: %d bytes (need %d)", e.Frame, e.Got, e.Need)
}
