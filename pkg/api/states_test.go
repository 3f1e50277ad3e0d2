package api

import "testing"

func TestStateIsReady(t *testing.T) {
	ready := map[State]bool{
		StatePending:  false,
		StateReceived: false,
		StateStarted:  false,
		StateRetry:    false,
		StateSuccess:  true,
		StateFailure:  true,
		StateRevoked:  true,
	}
	for state, want := range ready {
		if got := state.IsReady(); got != want {
			t.Errorf("%s.IsReady() = %v, want %v", state, got, want)
		}
	}
}

func TestStateIsException(t *testing.T) {
	exception := map[State]bool{
		StatePending:  false,
		StateReceived: false,
		StateStarted:  false,
		StateRetry:    true,
		StateSuccess:  false,
		StateFailure:  true,
		StateRevoked:  true,
	}
	for state, want := range exception {
		if got := state.IsException(); got != want {
			t.Errorf("%s.IsException() = %v, want %v", state, got, want)
		}
	}
}

func TestStateIsPropagate(t *testing.T) {
	for _, state := range AllStates {
		want := state == StateFailure || state == StateRevoked
		if got := state.IsPropagate(); got != want {
			t.Errorf("%s.IsPropagate() = %v, want %v", state, got, want)
		}
	}
}

func TestStateIsSuccessful(t *testing.T) {
	for _, state := range AllStates {
		want := state == StateSuccess
		if got := state.IsSuccessful(); got != want {
			t.Errorf("%s.IsSuccessful() = %v, want %v", state, got, want)
		}
	}
}

func TestPendingMeta(t *testing.T) {
	meta := PendingMeta("some-task")
	if meta.TaskID != "some-task" {
		t.Fatalf("unexpected task id: %q", meta.TaskID)
	}
	if meta.State != StatePending {
		t.Fatalf("unexpected state: %q", meta.State)
	}
	if meta.Result != nil {
		t.Fatalf("expected nil result, got %#v", meta.Result)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
