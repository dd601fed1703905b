package timer

import (
	"errors"
	"testing"
	"time"
)

type phase int

const (
	phaseSubmit phase = iota
	phaseDrain
	phaseIdle
)

func TestMeasureAccumulates(t *testing.T) {
	tm := New[phase]()

	tm.Measure(phaseSubmit, func() { time.Sleep(20 * time.Millisecond) })
	first, err := tm.Elapsed(phaseSubmit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first < 20*time.Millisecond {
		t.Errorf("expected at least 20ms, got %v", first)
	}

	tm.Measure(phaseSubmit, func() { time.Sleep(20 * time.Millisecond) })
	total, _ := tm.Elapsed(phaseSubmit)
	if total < first+20*time.Millisecond {
		t.Errorf("expected accumulated duration >= %v, got %v", first+20*time.Millisecond, total)
	}
}

func TestAddIsAdditive(t *testing.T) {
	tm := New[string]()
	tm.Add("a", 3*time.Millisecond)
	tm.Add("a", 4*time.Millisecond)

	d, err := tm.Elapsed("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 7*time.Millisecond {
		t.Errorf("expected 7ms, got %v", d)
	}
}

func TestMeasureValue(t *testing.T) {
	tm := New[string]()

	v := MeasureValue(tm, "calc", func() int { return 42 })
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
	if _, err := tm.Elapsed("calc"); err != nil {
		t.Errorf("expected calc to be recorded, got %v", err)
	}
}

func TestElapsedUnknownToken(t *testing.T) {
	tm := New[phase]()

	_, err := tm.Elapsed(phaseIdle)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestResetOnlyTarget(t *testing.T) {
	tm := New[phase]()
	tm.Add(phaseSubmit, 5*time.Millisecond)
	tm.Add(phaseDrain, 8*time.Millisecond)

	tm.Reset(phaseSubmit)

	if d, _ := tm.Elapsed(phaseSubmit); d != 0 {
		t.Errorf("expected submit reset to 0, got %v", d)
	}
	if d, _ := tm.Elapsed(phaseDrain); d != 8*time.Millisecond {
		t.Errorf("expected drain untouched, got %v", d)
	}

	// Resetting an unrecorded token does not create it
	tm.Reset(phaseIdle)
	if _, err := tm.Elapsed(phaseIdle); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected idle to stay unrecorded, got %v", err)
	}
}

func TestClear(t *testing.T) {
	tm := New[phase]()
	tm.Add(phaseSubmit, time.Millisecond)
	tm.Add(phaseDrain, time.Millisecond)

	tm.Clear()

	if len(tm.Tokens()) != 0 {
		t.Errorf("expected no tokens, got %v", tm.Tokens())
	}
	if _, err := tm.Elapsed(phaseSubmit); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound after clear, got %v", err)
	}
}

func TestTokensOrder(t *testing.T) {
	tm := New[string]()
	tm.Add("submit", 0)
	tm.Add("drain", 0)
	tm.Add("submit", time.Millisecond)

	tokens := tm.Tokens()
	if len(tokens) != 2 || tokens[0] != "submit" || tokens[1] != "drain" {
		t.Errorf("expected [submit drain], got %v", tokens)
	}
}
