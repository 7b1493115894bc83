package core

import "strings"

// Kind enumerates the node kinds of the editable tree.
type Kind string

const (
	KindEvent   Kind = "event"
	KindTrigger Kind = "trigger"
	KindAction  Kind = "action"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEvent, KindTrigger, KindAction:
		return true
	}
	return false
}

// Tag returns the element name the encoder writes for k.
func (k Kind) Tag() string {
	switch k {
	case KindTrigger:
		return "Trigger"
	case KindAction:
		return "Action"
	default:
		return "Event"
	}
}

// KindForTag maps a script tag to its kind. Condition collapses into
// trigger; Timer and anything unknown collapse into event.
func KindForTag(tag string) Kind {
	switch strings.ToLower(tag) {
	case "trigger", "condition":
		return KindTrigger
	case "action":
		return KindAction
	default:
		return KindEvent
	}
}

// ScriptEvent is a node of the mission tree.
type ScriptEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Kind       Kind          `json:"kind"`
	Attributes Attributes    `json:"attributes"`
	Children   []ScriptEvent `json:"children"`
	Content    *string       `json:"content,omitempty"`
}

// Metadata holds the root-level properties of a mission file.
type Metadata struct {
	Version     *string `json:"version,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Mission is a decoded mission document.
type Mission struct {
	Events   []ScriptEvent `json:"events"`
	Metadata Metadata      `json:"metadata"`
}

// Op represents a mutation that can be applied to a mission.
type Op interface {
	isOp()
}

// AddEventOp creates an event under ParentID. An empty ParentID adds a
// top-level event.
type AddEventOp struct {
	ParentID   string
	Index      *int
	Name       string
	Kind       Kind
	Attributes Attributes
	Content    *string
}

func (AddEventOp) isOp() {}

// UpdateEventOp replaces the fields that are set.
type UpdateEventOp struct {
	EventID      string
	Name         *string
	Kind         *Kind
	Content      *string
	ClearContent bool
	Attributes   *Attributes
}

func (UpdateEventOp) isOp() {}

// MoveEventOp moves an event to a new parent/index.
type MoveEventOp struct {
	EventID     string
	NewParentID string
	NewIndex    *int
}

func (MoveEventOp) isOp() {}

// DeleteEventOp removes an event and its subtree.
type DeleteEventOp struct {
	EventID string
}

func (DeleteEventOp) isOp() {}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
