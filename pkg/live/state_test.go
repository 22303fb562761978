package live

import (
	"errors"
	"sync"
	"testing"
)

func TestStateMachine_Lifecycle(t *testing.T) {
	t.Parallel()

	var m stateMachine
	if got := m.Load(); got != StateIdle {
		t.Fatalf("zero value: got %s, want %s", got, StateIdle)
	}
	steps := []struct{ from, to State }{
		{StateIdle, StateConnecting},
		{StateConnecting, StateOpen},
		{StateOpen, StateClosing},
		{StateClosing, StateClosed},
		{StateClosed, StateConnecting},
		{StateConnecting, StateClosing},
	}
	for _, s := range steps {
		if err := m.transition(s.from, s.to); err != nil {
			t.Fatalf("%s → %s: %v", s.from, s.to, err)
		}
	}
}

func TestStateMachine_RejectsIllegalEdges(t *testing.T) {
	t.Parallel()

	tests := []struct{ from, to State }{
		{StateIdle, StateOpen},
		{StateOpen, StateConnecting},
		{StateClosing, StateOpen},
		{StateClosed, StateOpen},
		{StateOpen, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"_"+tt.to.String(), func(t *testing.T) {
			t.Parallel()
			var m stateMachine
			m.v.Store(int32(tt.from))
			if err := m.transition(tt.from, tt.to); !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("got %v, want ErrIllegalTransition", err)
			}
			if got := m.Load(); got != tt.from {
				t.Errorf("state changed to %s", got)
			}
		})
	}
}

func TestStateMachine_StaleFromFails(t *testing.T) {
	t.Parallel()

	var m stateMachine
	if err := m.transition(StateConnecting, StateOpen); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("got %v, want ErrIllegalTransition", err)
	}
}

func TestStateMachine_OnlyOneClosingWins(t *testing.T) {
	t.Parallel()

	var m stateMachine
	m.v.Store(int32(StateOpen))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.transitionFromAny(StateClosing, StateOpen, StateConnecting); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("winners: got %d, want 1", wins)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	if got := StateOpen.String(); got != "open" {
		t.Errorf("got %q, want %q", got, "open")
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("got %q, want %q", got, "State(42)")
	}
}
