package status

import (
	"testing"

	"github.com/matheus3301/wpdl/internal/model"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != model.Uninitialized {
		t.Errorf("initial state = %s, want uninitialized", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from model.Lifecycle
		to   model.Lifecycle
	}{
		{model.Uninitialized, model.Connecting},
		{model.Uninitialized, model.Closed},
		{model.Connecting, model.Authenticating},
		{model.Connecting, model.Ready},
		{model.Authenticating, model.Ready},
		{model.Ready, model.Authenticating},
		{model.Ready, model.Connecting},
		{model.Ready, model.Closed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(model.Ready); err == nil {
		t.Error("Transition(uninitialized -> ready) should fail")
	}
	if m.Current() != model.Uninitialized {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, model.Closed)
	for _, to := range []model.Lifecycle{model.Connecting, model.Authenticating, model.Ready} {
		if err := m.Transition(to); err == nil {
			t.Errorf("Transition(closed -> %s) should fail", to)
		}
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	calls := 0
	m := NewMachine(func(from, to model.Lifecycle) { calls++ })
	walkTo(t, m, model.Connecting)
	if err := m.Transition(model.Connecting); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("onChange calls = %d, want 1", calls)
	}
}

func TestTransitionNotifies(t *testing.T) {
	var got [][2]model.Lifecycle
	m := NewMachine(func(from, to model.Lifecycle) {
		got = append(got, [2]model.Lifecycle{from, to})
	})

	steps := []model.Lifecycle{model.Connecting, model.Authenticating, model.Ready, model.Closed}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if len(got) != 4 {
		t.Fatalf("notifications = %d, want 4", len(got))
	}
	if got[0] != [2]model.Lifecycle{model.Uninitialized, model.Connecting} {
		t.Errorf("first change = %v", got[0])
	}
	if got[3] != [2]model.Lifecycle{model.Ready, model.Closed} {
		t.Errorf("last change = %v", got[3])
	}
}

// TestReturningUserLifecycle covers a session with stored credentials, which
// never passes through authenticating.
func TestReturningUserLifecycle(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []model.Lifecycle{model.Connecting, model.Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v", s, err)
		}
	}
}

func TestForAuth(t *testing.T) {
	if ForAuth(model.AuthReady) != model.Ready {
		t.Error("ready auth should map to ready lifecycle")
	}
	for _, s := range []model.AuthState{model.AuthLoggedOut, model.AuthQRPending, model.AuthAwaitingCode, model.AuthAwaiting2FA} {
		if ForAuth(s) != model.Authenticating {
			t.Errorf("ForAuth(%s) = %s, want authenticating", s, ForAuth(s))
		}
	}
}

func walkTo(t *testing.T, m *Machine, target model.Lifecycle) {
	t.Helper()
	paths := map[model.Lifecycle][]model.Lifecycle{
		model.Uninitialized:  {},
		model.Connecting:     {model.Connecting},
		model.Authenticating: {model.Connecting, model.Authenticating},
		model.Ready:          {model.Connecting, model.Ready},
		model.Closed:         {model.Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
