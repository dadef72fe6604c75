package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestAllowWithinWindow(t *testing.T) {
	mock := clock.NewMock()
	l := New(3, time.Minute, mock)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("Expected send %d to be allowed", i+1)
		}
		mock.Add(time.Second)
	}
	if l.Allow() {
		t.Error("Expected the 4th send in a minute to be refused")
	}
	if got := l.Retry(); got != 57*time.Second {
		t.Errorf("Expected 57s until the oldest send expires, got %v", got)
	}

	mock.Add(57 * time.Second)
	if !l.Allow() {
		t.Error("Expected a send once the oldest one left the window")
	}
}

func TestRefusedSendsAreNotCounted(t *testing.T) {
	mock := clock.NewMock()
	l := New(1, time.Minute, mock)

	l.Allow()
	for i := 0; i < 5; i++ {
		l.Allow()
	}
	mock.Add(time.Minute + time.Millisecond)
	if !l.Allow() {
		t.Error("Expected refusals not to extend the window")
	}
}

func TestDefaults(t *testing.T) {
	l := New(0, 0, nil)
	if l.max != DefaultMax || l.window != DefaultWindow {
		t.Errorf("Unexpected defaults %d %v", l.max, l.window)
	}
}
