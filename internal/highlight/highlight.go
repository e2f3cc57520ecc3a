// Package highlight tracks the single active highlight of the review screen.
package highlight

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Kind discriminates Target.
type Kind int

const (
	KindNone Kind = iota
	KindField
	KindLineItem
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindField:
		return "field"
	case KindLineItem:
		return "line_item"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Target is None, a named field or a line item index. The zero value is None.
type Target struct {
	kind  Kind
	name  string
	index int
}

// None returns the empty target.
func None() Target { return Target{} }

// Field targets a named document field.
func Field(name string) Target { return Target{kind: KindField, name: name} }

// LineItem targets a line item by 0-based index.
func LineItem(index int) Target { return Target{kind: KindLineItem, index: index} }

func (t Target) Kind() Kind { return t.kind }
func (t Target) IsNone() bool { return t.kind == KindNone }
func (t Target) Name() string { return t.name }
func (t Target) Index() int { return t.index }

func (t Target) String() string {
	switch t.kind {
	case KindField:
		return "field:" + t.name
	case KindLineItem:
		return fmt.Sprintf("line_item:%d", t.index)
	default:
		return "none"
	}
}

// MarshalJSON encodes the target as {"kind": ..., "name"|"index": ...}.
func (t Target) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind  string `json:"kind"`
		Name  string `json:"name,omitempty"`
		Index *int   `json:"index,omitempty"`
	}{Kind: t.kind.String()}
	switch t.kind {
	case KindField:
		out.Name = t.name
	case KindLineItem:
		idx := t.index
		out.Index = &idx
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form.
func (t *Target) UnmarshalJSON(data []byte) error {
	var in struct {
		Kind  string `json:"kind"`
		Name  string `json:"name"`
		Index int    `json:"index"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "", "none":
		*t = None()
	case "field":
		*t = Field(in.Name)
	case "line_item":
		*t = LineItem(in.Index)
	default:
		return fmt.Errorf("unknown target kind %q", in.Kind)
	}
	return nil
}

// Transition describes what a Toggle did.
type Transition int

const (
	// Unchanged means nothing was active and nothing was selected.
	Unchanged Transition = iota
	// Activated means a target became active from None.
	Activated
	// Switched means a different target replaced the active one.
	Switched
	// Cleared means the active target was toggled off.
	Cleared
)

func (tr Transition) String() string {
	switch tr {
	case Unchanged:
		return "unchanged"
	case Activated:
		return "activated"
	case Switched:
		return "switched"
	case Cleared:
		return "cleared"
	default:
		return fmt.Sprintf("transition(%d)", int(tr))
	}
}

// Selector holds at most one active target.
type Selector struct {
	mu     sync.Mutex
	active Target
}

// Toggle selects t. Selecting the active target again clears it; selecting None clears
// whatever is active. The previously active target is returned.
func (s *Selector) Toggle(t Target) (Transition, Target) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.active
	switch {
	case t.IsNone() && prev.IsNone():
		return Unchanged, prev
	case t.IsNone() || t == prev:
		s.active = None()
		return Cleared, prev
	case prev.IsNone():
		s.active = t
		return Activated, prev
	default:
		s.active = t
		return Switched, prev
	}
}

// Clear drops the active target and returns it.
func (s *Selector) Clear() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.active
	s.active = None()
	return prev
}

// Active returns the active target.
func (s *Selector) Active() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
