package challenge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Transition is a single outgoing edge of a state: when Event fires, the
// machine moves to Target.
type Transition struct {
	Event  string
	Target string
}

// StateNode is one state of a challenge together with its outgoing
// transitions, kept in the order the challenge author wrote them.
// A node with no transitions is terminal.
type StateNode struct {
	Name        string
	Transitions []Transition
}

// IsTerminal returns true if the state has no outgoing transitions.
func (n *StateNode) IsTerminal() bool {
	return len(n.Transitions) == 0
}

// Definition is the decoded transition table of one challenge.
//
// The wire format (written by the challenge CRUD service) is:
//
//	{
//	  "initial": "PENDING",
//	  "states": {
//	    "PENDING":     {"on": {"START": {"target": "IN_PROGRESS"}}},
//	    "IN_PROGRESS": {"on": {"COMPLETE": {"target": "DONE"}}},
//	    "DONE":        {"on": {}}
//	  }
//	}
//
// States and events are kept in authored order, not map order. Authored
// order is load-bearing: auto-advance (a job with no explicit event) applies
// the first event the author declared for the current state.
type Definition struct {
	ID      int64
	Initial string
	States  []StateNode

	index map[string]*StateNode
}

// State looks up a state node by name.
func (d *Definition) State(name string) (*StateNode, bool) {
	n, ok := d.index[name]
	return n, ok
}

// Validate checks the structural invariants of the table: the initial state
// must be declared, and every transition target must be a declared state.
func (d *Definition) Validate() error {
	if d.Initial == "" {
		return fmt.Errorf("definition %d: missing initial state", d.ID)
	}
	if _, ok := d.index[d.Initial]; !ok {
		return fmt.Errorf("definition %d: initial state %q is not declared", d.ID, d.Initial)
	}
	for i := range d.States {
		for _, tr := range d.States[i].Transitions {
			if _, ok := d.index[tr.Target]; !ok {
				return fmt.Errorf("definition %d: state %q event %q targets undeclared state %q",
					d.ID, d.States[i].Name, tr.Event, tr.Target)
			}
		}
	}
	return nil
}

// Decode parses a stored definition document. It walks the JSON token stream
// instead of unmarshalling into maps because encoding/json maps do not
// preserve object key order, and the authored order of states and events must
// survive decoding.
func Decode(id int64, document []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(document))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("definition %d: %w", id, err)
	}

	def := &Definition{ID: id}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", id, err)
		}
		switch key {
		case "initial":
			if def.Initial, err = stringToken(dec); err != nil {
				return nil, fmt.Errorf("definition %d: initial: %w", id, err)
			}
		case "states":
			if def.States, err = decodeStates(dec); err != nil {
				return nil, fmt.Errorf("definition %d: states: %w", id, err)
			}
		default:
			if err := skipValue(dec); err != nil {
				return nil, fmt.Errorf("definition %d: %q: %w", id, key, err)
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("definition %d: %w", id, err)
	}

	def.index = make(map[string]*StateNode, len(def.States))
	for i := range def.States {
		def.index[def.States[i].Name] = &def.States[i]
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// decodeStates reads the "states" object, preserving key order.
func decodeStates(dec *json.Decoder) ([]StateNode, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var states []StateNode
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		node := StateNode{Name: name}
		if node.Transitions, err = decodeStateNode(dec); err != nil {
			return nil, fmt.Errorf("state %q: %w", name, err)
		}
		states = append(states, node)
	}
	return states, expectDelim(dec, '}')
}

// decodeStateNode reads one {"on": {...}} state object. A missing, null or
// empty "on" map means the state is terminal.
func decodeStateNode(dec *json.Decoder) ([]Transition, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var transitions []Transition
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if key != "on" {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}
		if transitions, err = decodeTransitions(dec); err != nil {
			return nil, err
		}
	}
	return transitions, expectDelim(dec, '}')
}

// decodeTransitions reads the "on" object, preserving event order.
func decodeTransitions(dec *json.Decoder) ([]Transition, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil // "on": null, terminal
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object for \"on\", got %v", tok)
	}

	var transitions []Transition
	for dec.More() {
		event, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		var target struct {
			Target string `json:"target"`
		}
		if err := dec.Decode(&target); err != nil {
			return nil, fmt.Errorf("event %q: %w", event, err)
		}
		if target.Target == "" {
			return nil, fmt.Errorf("event %q: missing target", event)
		}
		transitions = append(transitions, Transition{Event: event, Target: target.Target})
	}
	return transitions, expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %v", tok)
	}
	return s, nil
}

func skipValue(dec *json.Decoder) error {
	var raw json.RawMessage
	return dec.Decode(&raw)
}
