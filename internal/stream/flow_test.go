package stream

import "testing"

func TestFlowWindow_ConsumeAndAdd(t *testing.T) {
	w := NewFlowWindow(65535)

	if got := w.Consume(1000); got != 64535 {
		t.Errorf("Consume(1000) = %d, want 64535", got)
	}

	if got := w.Add(500); got != 65035 {
		t.Errorf("Add(500) = %d, want 65035", got)
	}

	if got := w.Get(); got != 65035 {
		t.Errorf("Get() = %d, want 65035", got)
	}
}

func TestFlowWindow_CanGoNegativeOnSettingsDecrease(t *testing.T) {
	w := NewFlowWindow(100)
	w.Consume(100)

	if got := w.ApplySettingsDelta(-50); got != -50 {
		t.Errorf("ApplySettingsDelta(-50) = %d, want -50", got)
	}
}

func TestFlowWindow_ApplySettingsDeltaIncrease(t *testing.T) {
	w := NewFlowWindow(0)

	if got := w.ApplySettingsDelta(65535); got != 65535 {
		t.Errorf("ApplySettingsDelta(65535) = %d, want 65535", got)
	}
}
