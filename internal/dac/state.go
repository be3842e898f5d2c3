package dac

// State is the session's authoritative lifecycle state. Transitions happen
// only on specific acknowledged responses: the connect greeting moves
// Disconnected to Idle, a prepare ack moves Idle to Prepared, a begin or
// update ack moves Prepared to Playing, and a device-reported underrun
// drops Playing back so playback has to be re-established.
type State int

const (
	StateDisconnected State = iota
	StateIdle
	StatePrepared
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StatePrepared:
		return "prepared"
	case StatePlaying:
		return "playing"
	default:
		return "invalid"
	}
}
