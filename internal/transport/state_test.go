package transport

import (
	"testing"
)

func TestMachine_Lifecycle(t *testing.T) {
	tests := []struct {
		name string
		path []State
		ok   bool
	}{
		{"connect then live", []State{StateConnecting, StateLive}, true},
		{"connect then degrade", []State{StateConnecting, StateDegraded}, true},
		{"live then degrade", []State{StateConnecting, StateLive, StateDegraded}, true},
		{"live teardown", []State{StateConnecting, StateLive, StateDisconnected}, true},
		{"degraded teardown", []State{StateConnecting, StateDegraded, StateDisconnected}, true},
		{"teardown during connect", []State{StateConnecting, StateDisconnected}, true},
		{"live without connecting", []State{StateLive}, false},
		{"degraded back to live", []State{StateConnecting, StateDegraded, StateLive}, false},
		{"reconnect after teardown is a new machine", []State{StateConnecting, StateDisconnected, StateLive}, false},
		{"degrade from idle", []State{StateDegraded}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			var err error
			for _, next := range tt.path {
				if err = m.To(next); err != nil {
					break
				}
			}
			if tt.ok && err != nil {
				t.Errorf("Expected path to be legal, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Expected path to be rejected")
			}
		})
	}
}

func TestMachine_StartsDisconnected(t *testing.T) {
	m := NewMachine()
	if m.State() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestState_String(t *testing.T) {
	if StateLive.String() != "live" || StateDegraded.String() != "degraded" {
		t.Error("Unexpected state names")
	}
	if State(42).String() != "state(42)" {
		t.Errorf("Unexpected fallback name %q", State(42).String())
	}
}
