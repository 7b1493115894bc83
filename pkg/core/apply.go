package core

import (
	"fmt"
	"strings"
)

// Apply validates ops against m and returns the resulting mission. m itself
// is never modified; subtrees untouched by an op are shared with the result.
// New events get their ids from ids.
func Apply(m Mission, ops []Op, ids IDGenerator) (Mission, error) {
	if err := ValidateOps(m, ops); err != nil {
		return Mission{}, err
	}
	out := Mission{Events: m.Events, Metadata: m.Metadata}
	for _, op := range ops {
		var err error
		switch v := op.(type) {
		case AddEventOp:
			out.Events, err = applyAdd(out.Events, v, ids)
		case UpdateEventOp:
			out.Events, err = applyUpdate(out.Events, v)
		case MoveEventOp:
			out.Events, err = applyMove(out.Events, v)
		case DeleteEventOp:
			out.Events, _, err = removeEvent(out.Events, v.EventID)
		default:
			err = fmt.Errorf("unsupported op %T", op)
		}
		if err != nil {
			return Mission{}, err
		}
	}
	return out, nil
}

func applyAdd(events []ScriptEvent, op AddEventOp, ids IDGenerator) ([]ScriptEvent, error) {
	kind := op.Kind
	if kind == "" {
		kind = KindEvent
	}
	ev := ScriptEvent{
		ID:         ids.NewID(),
		Kind:       kind,
		Attributes: op.Attributes.Clone(),
		Children:   []ScriptEvent{},
	}
	ev = rename(ev, op.Name)
	if op.Content != nil {
		ev.Content = StrPtr(*op.Content)
	}
	return insertEvent(events, op.ParentID, op.Index, ev)
}

func applyUpdate(events []ScriptEvent, op UpdateEventOp) ([]ScriptEvent, error) {
	return updateEvent(events, op.EventID, func(ev ScriptEvent) ScriptEvent {
		if op.Kind != nil && *op.Kind != "" {
			ev.Kind = *op.Kind
		}
		switch {
		case op.ClearContent:
			ev.Content = nil
		case op.Content != nil:
			ev.Content = StrPtr(*op.Content)
		}
		if op.Attributes != nil {
			ev.Attributes = op.Attributes.Clone()
			if op.Name == nil {
				ev.Name = DeriveName(ev.Kind, ev.Attributes)
			}
		}
		if op.Name != nil {
			ev = rename(ev, *op.Name)
		}
		return ev
	})
}

// rename stores name in the literal name attribute, the only place the
// encoder keeps it. An empty name drops the attribute.
func rename(ev ScriptEvent, name string) ScriptEvent {
	attrs := make(Attributes, 0, len(ev.Attributes)+1)
	for _, a := range ev.Attributes {
		if a.Kind == AttrLiteral && a.Key == NameKey {
			continue
		}
		attrs = append(attrs, a)
	}
	if name != "" {
		attrs = append(Attributes{Literal(NameKey, name)}, attrs...)
	}
	ev.Attributes = attrs
	ev.Name = DeriveName(ev.Kind, attrs)
	return ev
}

// DeriveName computes the display label of a node: its name attribute, else
// the trimmed text of its name element, else its tag.
func DeriveName(kind Kind, attrs Attributes) string {
	if v, _ := attrs.Literal(NameKey); v != "" {
		return v
	}
	if v, _ := attrs.ActionName(); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return kind.Tag()
}

func applyMove(events []ScriptEvent, op MoveEventOp) ([]ScriptEvent, error) {
	events, moved, err := removeEvent(events, op.EventID)
	if err != nil {
		return nil, err
	}
	return insertEvent(events, op.NewParentID, op.NewIndex, moved)
}

// updateEvent rebuilds only the path from the root to id.
func updateEvent(events []ScriptEvent, id string, fn func(ScriptEvent) ScriptEvent) ([]ScriptEvent, error) {
	for i, ev := range events {
		if ev.ID == id {
			out := cloneSlice(events)
			out[i] = fn(ev)
			return out, nil
		}
		children, err := updateEvent(ev.Children, id, fn)
		if err == nil {
			out := cloneSlice(events)
			out[i].Children = children
			return out, nil
		}
	}
	return nil, ErrInvalidNode
}

func insertEvent(events []ScriptEvent, parentID string, index *int, ev ScriptEvent) ([]ScriptEvent, error) {
	if parentID == "" {
		return insertAt(events, index, ev), nil
	}
	return updateEvent(events, parentID, func(parent ScriptEvent) ScriptEvent {
		parent.Children = insertAt(parent.Children, index, ev)
		return parent
	})
}

func removeEvent(events []ScriptEvent, id string) ([]ScriptEvent, ScriptEvent, error) {
	for i, ev := range events {
		if ev.ID == id {
			out := make([]ScriptEvent, 0, len(events)-1)
			out = append(out, events[:i]...)
			out = append(out, events[i+1:]...)
			return out, ev, nil
		}
		children, removed, err := removeEvent(ev.Children, id)
		if err == nil {
			out := cloneSlice(events)
			out[i].Children = children
			return out, removed, nil
		}
	}
	return nil, ScriptEvent{}, ErrInvalidNode
}

func insertAt(events []ScriptEvent, index *int, ev ScriptEvent) []ScriptEvent {
	pos := len(events)
	if index != nil && *index >= 0 && *index < pos {
		pos = *index
	}
	out := make([]ScriptEvent, 0, len(events)+1)
	out = append(out, events[:pos]...)
	out = append(out, ev)
	out = append(out, events[pos:]...)
	return out
}

func cloneSlice(events []ScriptEvent) []ScriptEvent {
	out := make([]ScriptEvent, len(events))
	copy(out, events)
	return out
}
