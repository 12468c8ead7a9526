package stream

import "testing"

func TestStreamError_Error(t *testing.T) {
	err := &StreamError{StreamID: 1, Code: 0x1, Reason: "boom"}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", err.Error())
	}
}

func TestConnectionError_Error(t *testing.T) {
	err := &ConnectionError{Code: 0x1, Reason: "protocol error"}
	if err.Error() != "protocol error" {
		t.Errorf("Error() = %q, want 'protocol error'", err.Error())
	}
}
