package challenge

import (
	"errors"
	"testing"
)

func mustDecode(t *testing.T, document string) *Definition {
	t.Helper()
	def, err := Decode(1, []byte(document))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return def
}

func testDefinition(t *testing.T) *Definition {
	return mustDecode(t, `{
		"initial": "PENDING",
		"states": {
			"PENDING":     {"on": {"START": {"target": "IN_PROGRESS"}}},
			"IN_PROGRESS": {"on": {"COMPLETE": {"target": "DONE"}}},
			"DONE":        {"on": {}}
		}
	}`)
}

func TestNext_ExplicitEvent(t *testing.T) {
	def := testDefinition(t)

	next, transitioned, err := Next(def, "PENDING", "START")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !transitioned {
		t.Error("expected a transition")
	}
	if next != "IN_PROGRESS" {
		t.Errorf("next = %q, want IN_PROGRESS", next)
	}
}

// An event the current state does not declare is a no-op, not an error.
func TestNext_EventDoesNotApply(t *testing.T) {
	def := testDefinition(t)

	next, transitioned, err := Next(def, "IN_PROGRESS", "START")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if transitioned {
		t.Error("expected no transition")
	}
	if next != "IN_PROGRESS" {
		t.Errorf("next = %q, want IN_PROGRESS", next)
	}
}

// An empty event auto-advances along the first authored event.
func TestNext_AutoAdvance(t *testing.T) {
	def := testDefinition(t)

	next, transitioned, err := Next(def, "PENDING", "")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !transitioned || next != "IN_PROGRESS" {
		t.Errorf("auto-advance from PENDING = (%q, %v), want (IN_PROGRESS, true)", next, transitioned)
	}

	next, transitioned, err = Next(def, "IN_PROGRESS", "")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !transitioned || next != "DONE" {
		t.Errorf("auto-advance from IN_PROGRESS = (%q, %v), want (DONE, true)", next, transitioned)
	}
}

// The auto-advance tie-break is the first authored event, not any other.
func TestNext_AutoAdvanceFirstAuthoredEventWins(t *testing.T) {
	def := mustDecode(t, `{
		"initial": "A",
		"states": {
			"A": {"on": {
				"SECOND_ALPHABETICALLY": {"target": "B"},
				"FIRST_ALPHABETICALLY":  {"target": "C"}
			}},
			"B": {"on": {}},
			"C": {"on": {}}
		}
	}`)

	next, transitioned, err := Next(def, "A", "")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !transitioned || next != "B" {
		t.Errorf("auto-advance = (%q, %v), want (B, true): first authored event must win", next, transitioned)
	}
}

// Terminal states never move, with or without an explicit event.
func TestNext_TerminalStability(t *testing.T) {
	def := testDefinition(t)

	for _, event := range []string{"", "START", "COMPLETE", "ANYTHING"} {
		next, transitioned, err := Next(def, "DONE", event)
		if err != nil {
			t.Fatalf("Next(DONE, %q) failed: %v", event, err)
		}
		if transitioned {
			t.Errorf("Next(DONE, %q) transitioned, terminal states must not move", event)
		}
		if next != "DONE" {
			t.Errorf("Next(DONE, %q) = %q, want DONE", event, next)
		}
	}
}

func TestNext_UnknownState(t *testing.T) {
	def := testDefinition(t)

	_, _, err := Next(def, "ARCHIVED", "")
	if err == nil {
		t.Fatal("expected an error for a state absent from the table")
	}
	if !errors.Is(err, ErrUnknownState) {
		t.Errorf("error = %v, want ErrUnknownState", err)
	}
}

// Next must be deterministic: same inputs, same outputs, every time.
func TestNext_Deterministic(t *testing.T) {
	def := mustDecode(t, `{
		"initial": "A",
		"states": {
			"A": {"on": {"X": {"target": "B"}, "Y": {"target": "C"}, "Z": {"target": "D"}}},
			"B": {"on": {}},
			"C": {"on": {}},
			"D": {"on": {}}
		}
	}`)

	first, firstTransitioned, err := Next(def, "A", "")
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		next, transitioned, err := Next(def, "A", "")
		if err != nil {
			t.Fatalf("Next failed on iteration %d: %v", i, err)
		}
		if next != first || transitioned != firstTransitioned {
			t.Fatalf("iteration %d: Next = (%q, %v), first call = (%q, %v)",
				i, next, transitioned, first, firstTransitioned)
		}
	}
}
