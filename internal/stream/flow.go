package stream

import "sync/atomic"

// DefaultInitialWindowSize is the RFC 7540 default per-stream flow control
// window for newly created streams, prior to any SETTINGS negotiation.
const DefaultInitialWindowSize = 65535

// MaxWindowSize is the largest legal flow-control window (2^31-1).
const MaxWindowSize = 1<<31 - 1

// FlowWindow is an atomically-updated signed flow-control window, shared by
// both connection-level and stream-level accounting.
type FlowWindow struct {
	value int32
}

// NewFlowWindow creates a window initialized to n.
func NewFlowWindow(n int32) *FlowWindow {
	return &FlowWindow{value: n}
}

// Get returns the current window value, which may be negative after a
// SETTINGS_INITIAL_WINDOW_SIZE decrease.
func (w *FlowWindow) Get() int32 {
	return atomic.LoadInt32(&w.value)
}

// Consume subtracts n (a sent or received DATA payload size) from the
// window. Returns the resulting value.
func (w *FlowWindow) Consume(n int32) int32 {
	return atomic.AddInt32(&w.value, -n)
}

// Add adds n (a WINDOW_UPDATE increment, or a SETTINGS delta) to the window,
// returning the resulting value. Callers must check for overflow past
// MaxWindowSize before calling when n comes from an untrusted increment.
func (w *FlowWindow) Add(n int32) int32 {
	return atomic.AddInt32(&w.value, n)
}

// ApplySettingsDelta applies a SETTINGS_INITIAL_WINDOW_SIZE change (the
// difference between the new and old initial value) to an already-open
// stream's window, per RFC 7540 section 6.9.2.
func (w *FlowWindow) ApplySettingsDelta(delta int32) int32 {
	return atomic.AddInt32(&w.value, delta)
}
