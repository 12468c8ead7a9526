// Package stream implements the HTTP/2 stream state machine, per-stream and
// per-connection flow control, and the stream table that the connection
// engine dispatches frames against.
package stream

// State is one of the states of the HTTP/2 stream state machine (RFC 7540
// section 5.1).
type State int

// Stream states.
const (
	StateIdle State = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReservedLocal:
		return "reserved(local)"
	case StateReservedRemote:
		return "reserved(remote)"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half-closed(local)"
	case StateHalfClosedRemote:
		return "half-closed(remote)"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// frameKind identifies the event driving a state transition, independent of
// the concrete frame.Type so this package doesn't need to import frame for
// its transition table.
type frameKind int

// Transition-driving events.
const (
	eventRecvHeaders frameKind = iota
	eventRecvHeadersEndStream
	eventSendHeaders
	eventSendHeadersEndStream
	eventRecvData
	eventRecvDataEndStream
	eventSendData
	eventRecvRSTStream
	eventSendRSTStream
)

// next computes the resulting state for an event arriving while in state s.
// ok is false if the event is not valid in s (the caller must then raise a
// stream or connection error per the policy table).
func next(s State, ev frameKind) (State, bool) {
	switch s {
	case StateIdle:
		switch ev {
		case eventRecvHeaders, eventSendHeaders:
			return StateOpen, true
		case eventRecvHeadersEndStream:
			return StateHalfClosedRemote, true
		case eventSendHeadersEndStream:
			return StateHalfClosedLocal, true
		}
		return s, false

	case StateOpen:
		switch ev {
		case eventRecvData:
			return s, true
		case eventRecvHeadersEndStream, eventRecvDataEndStream:
			return StateHalfClosedRemote, true
		case eventSendHeadersEndStream, eventSendData:
			return s, true
		case eventRecvRSTStream, eventSendRSTStream:
			return StateClosed, true
		}
		return s, false

	case StateHalfClosedRemote:
		switch ev {
		case eventSendData, eventSendHeaders:
			return s, true
		case eventSendHeadersEndStream:
			return StateClosed, true
		case eventRecvData, eventRecvHeaders, eventRecvDataEndStream:
			// A remote peer sending data/headers after it half-closed its
			// side is a stream error (STREAM_CLOSED).
			return s, false
		case eventRecvRSTStream, eventSendRSTStream:
			return StateClosed, true
		}
		return s, false

	case StateHalfClosedLocal:
		switch ev {
		case eventRecvData, eventRecvHeaders:
			return s, true
		case eventRecvHeadersEndStream, eventRecvDataEndStream:
			return StateClosed, true
		case eventRecvRSTStream, eventSendRSTStream:
			return StateClosed, true
		}
		return s, false

	case StateReservedLocal:
		switch ev {
		case eventSendHeaders, eventSendHeadersEndStream:
			return StateHalfClosedRemote, true
		case eventRecvRSTStream, eventSendRSTStream:
			return StateClosed, true
		}
		return s, false

	case StateReservedRemote:
		switch ev {
		case eventRecvHeaders, eventRecvHeadersEndStream:
			return StateHalfClosedLocal, true
		case eventRecvRSTStream, eventSendRSTStream:
			return StateClosed, true
		}
		return s, false

	case StateClosed:
		return s, false
	}
	return s, false
}
