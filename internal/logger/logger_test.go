package logger

import "testing"

func TestNew_Production(t *testing.T) {
	log, err := New(false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log == nil {
		t.Fatal("expected logger, got nil")
	}
}

func TestNew_Development(t *testing.T) {
	log, err := New(true, "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(-1) { // zapcore.DebugLevel
		t.Error("debug level should be enabled")
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(false, "shouting")
	if err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestMust_DoesNotPanicOnValidConfig(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Must panicked: %v", r)
		}
	}()
	Must(false, "warn")
}
