package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParent indicates a parent that does not exist.
	ErrInvalidParent = errors.New("invalid parent")
	// ErrCycleDetected indicates a move that would introduce a cycle.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrInvalidNode indicates the referenced event does not exist.
	ErrInvalidNode = errors.New("invalid node")
	// ErrInvalidIndex indicates a provided index is out of range.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrInvalidKind indicates an unknown event kind.
	ErrInvalidKind = errors.New("invalid kind")
	// ErrInvalidParams indicates param indices that are not 1..N.
	ErrInvalidParams = errors.New("invalid params")
	// ErrInvalidAttribute indicates an attribute list that cannot be written
	// and read back unchanged.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrInvalidText indicates a name, value or content holding characters
	// XML cannot carry.
	ErrInvalidText = errors.New("invalid text")
)

// ValidateOps performs validation of a batch against m before it is applied.
// Ops are checked in order against the tree as the previous ops leave it.
func ValidateOps(m Mission, ops []Op) error {
	state := newTreeState(m)
	for _, op := range ops {
		switch v := op.(type) {
		case AddEventOp:
			if err := state.requireParent(v.ParentID); err != nil {
				return err
			}
			if err := validateIndex(v.Index, len(state.children[v.ParentID])); err != nil {
				return err
			}
			if err := validateKind(v.Kind); err != nil {
				return err
			}
			if err := v.Attributes.Validate(); err != nil {
				return err
			}
			if err := validateText(&v.Name, v.Content); err != nil {
				return err
			}
			state.addPlaceholder(v.ParentID)
		case UpdateEventOp:
			if _, err := state.requireNode(v.EventID); err != nil {
				return err
			}
			if v.Kind != nil {
				if err := validateKind(*v.Kind); err != nil {
					return err
				}
			}
			if v.Attributes != nil {
				if err := v.Attributes.Validate(); err != nil {
					return err
				}
			}
			if err := validateText(v.Name, v.Content); err != nil {
				return err
			}
		case MoveEventOp:
			if _, err := state.requireNode(v.EventID); err != nil {
				return err
			}
			if err := state.requireParent(v.NewParentID); err != nil {
				return err
			}
			if state.isDescendant(v.NewParentID, v.EventID) {
				return ErrCycleDetected
			}
			siblings := len(state.children[v.NewParentID])
			if state.parent[v.EventID] == v.NewParentID {
				siblings--
			}
			if err := validateIndex(v.NewIndex, siblings); err != nil {
				return err
			}
			state.moveNode(v.EventID, v.NewParentID)
		case DeleteEventOp:
			if _, err := state.requireNode(v.EventID); err != nil {
				return err
			}
			state.deleteNode(v.EventID)
		default:
			return fmt.Errorf("unsupported op %T", op)
		}
	}
	return nil
}

func validateIndex(idx *int, length int) error {
	if idx == nil {
		return nil
	}
	if *idx < 0 || *idx > length {
		return ErrInvalidIndex
	}
	return nil
}

func validateText(values ...*string) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		if err := ValidateText(*v); err != nil {
			return err
		}
	}
	return nil
}

func validateKind(k Kind) error {
	if k == "" || k.Valid() {
		return nil
	}
	return ErrInvalidKind
}

// treeState is a parent/children index over a mission. The empty id stands
// for the document root.
type treeState struct {
	nodes    map[string]bool
	parent   map[string]string
	children map[string][]string
	pending  int
}

func newTreeState(m Mission) *treeState {
	s := &treeState{
		nodes:    make(map[string]bool),
		parent:   make(map[string]string),
		children: map[string][]string{"": nil},
	}
	Walk(m, func(ev ScriptEvent, parentID string, _ int) bool {
		s.nodes[ev.ID] = true
		s.parent[ev.ID] = parentID
		s.children[parentID] = append(s.children[parentID], ev.ID)
		return true
	})
	return s
}

func (s *treeState) requireParent(id string) error {
	if id == "" || s.nodes[id] {
		return nil
	}
	return ErrInvalidParent
}

func (s *treeState) requireNode(id string) (string, error) {
	if id == "" || !s.nodes[id] {
		return "", ErrInvalidNode
	}
	return id, nil
}

// addPlaceholder accounts for a node added earlier in the batch so later
// index checks see the right sibling count.
func (s *treeState) addPlaceholder(parentID string) {
	s.pending++
	s.children[parentID] = append(s.children[parentID], fmt.Sprintf("\x00pending-%d", s.pending))
}

// isDescendant reports whether candidate is ancestor or lies below it.
func (s *treeState) isDescendant(candidate, ancestor string) bool {
	for candidate != "" {
		if candidate == ancestor {
			return true
		}
		candidate = s.parent[candidate]
	}
	return false
}

func (s *treeState) detach(id string) {
	parentID := s.parent[id]
	children := s.children[parentID]
	for i, child := range children {
		if child == id {
			s.children[parentID] = append(children[:i:i], children[i+1:]...)
			break
		}
	}
}

func (s *treeState) moveNode(id, newParent string) {
	s.detach(id)
	s.parent[id] = newParent
	s.children[newParent] = append(s.children[newParent], id)
}

func (s *treeState) deleteNode(id string) {
	s.detach(id)
	var drop func(string)
	drop = func(n string) {
		for _, child := range s.children[n] {
			drop(child)
		}
		delete(s.children, n)
		delete(s.nodes, n)
		delete(s.parent, n)
	}
	drop(id)
}
