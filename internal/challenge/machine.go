package challenge

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when a progress record references a state that
// the current definition does not declare. This happens when a definition is
// edited incompatibly after users started progressing; it is never repaired
// automatically.
var ErrUnknownState = errors.New("current state not present in transition table")

// Next computes the state a progress record moves to when a job fires.
//
// Rules, in order:
//   - current must be a declared state, otherwise ErrUnknownState.
//   - A terminal state (no outgoing transitions) never moves; transitioned
//     is false and that is a normal outcome, not an error.
//   - An explicit event that the current state does not declare is a no-op,
//     also not an error.
//   - An empty event means auto-advance: apply the first event in authored
//     order. The tie-break is deliberate and documented here; it must never
//     depend on map iteration order.
//
// Next is pure: it never touches I/O and is deterministic for fixed inputs.
func Next(def *Definition, current, event string) (next string, transitioned bool, err error) {
	node, ok := def.State(current)
	if !ok {
		return "", false, fmt.Errorf("%w: %q (definition %d)", ErrUnknownState, current, def.ID)
	}

	if node.IsTerminal() {
		return current, false, nil
	}

	if event == "" {
		return node.Transitions[0].Target, true, nil
	}

	for _, tr := range node.Transitions {
		if tr.Event == event {
			return tr.Target, true, nil
		}
	}
	return current, false, nil
}
