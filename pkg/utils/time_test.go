package utils

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("expected %v, got %v", start, clock.Now())
	}

	clock.Advance(5 * time.Second)
	if expected := start.Add(5 * time.Second); !clock.Now().Equal(expected) {
		t.Errorf("expected %v, got %v", expected, clock.Now())
	}
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	now := SystemClock{}.Now()
	if now.Before(before.Add(-time.Second)) {
		t.Errorf("system clock too far behind: %v", now)
	}
	if now.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", now.Location())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{500 * time.Nanosecond, "1µs"},
		{1234 * time.Microsecond, "1ms"},
		{1234 * time.Millisecond, "1.23s"},
		{90*time.Second + 400*time.Millisecond, "1m30s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.input); got != tt.expected {
			t.Errorf("FormatDuration(%v) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}
