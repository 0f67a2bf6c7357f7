package llm

import "testing"

func TestAccumulatorMergesFragmentsByIndex(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.addDelta(0, "call_1", "get_weather", `{"city":`)
	acc.addDelta(0, "", "", `"paris"}`)
	acc.addDelta(1, "call_2", "get_time", `{"tz":"UTC"}`)

	calls := acc.finish()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "get_weather" || calls[0].Arguments != `{"city":"paris"}` {
		t.Errorf("unexpected call 0: %+v", calls[0])
	}
	if calls[1].ID != "call_2" || calls[1].Name != "get_time" {
		t.Errorf("unexpected call 1: %+v", calls[1])
	}
}

func TestAccumulatorOrdersByIndexNotArrival(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.addDelta(2, "c", "third", "{}")
	acc.addDelta(0, "a", "first", "{}")
	acc.addDelta(1, "b", "second", "{}")

	calls := acc.finish()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	names := []string{calls[0].Name, calls[1].Name, calls[2].Name}
	want := []string{"first", "second", "third"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, names[i], want[i])
		}
	}
}

func TestAccumulatorFinishEmptyReturnsNil(t *testing.T) {
	acc := newToolCallAccumulator()
	if calls := acc.finish(); calls != nil {
		t.Errorf("expected nil for no accumulated calls, got %v", calls)
	}
}
