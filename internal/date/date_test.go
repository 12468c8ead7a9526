package date

import (
	"testing"
	"time"
)

func TestCurrent_FallbackBeforeStart(t *testing.T) {
	b := Current()
	if len(b) == 0 {
		t.Fatal("expected non-empty date even before StartTicker")
	}
	if _, err := time.Parse(time.RFC1123, string(b)); err != nil {
		t.Errorf("expected RFC1123-formatted date, got %q: %v", b, err)
	}
}

func TestStartTicker_UpdatesAndStops(t *testing.T) {
	stop := StartTicker()
	defer stop()

	b := Current()
	if _, err := time.Parse(time.RFC1123, string(b)); err != nil {
		t.Errorf("expected RFC1123-formatted date after start, got %q: %v", b, err)
	}
}
