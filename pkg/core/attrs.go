package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rexliu/swtedit/pkg/xmltree"
)

// AttrKind tags the origin of an attribute entry.
type AttrKind string

const (
	// AttrLiteral is a real XML attribute on the element.
	AttrLiteral AttrKind = "literal"
	// AttrName is the text of a flattened <n> child element.
	AttrName AttrKind = "name"
	// AttrParam is the text of a flattened <Param> child element.
	AttrParam AttrKind = "param"
)

// Reserved keys of the flat attribute view.
const (
	ActionNameKey = "actionName"
	paramPrefix   = "param"
)

// NameKey is the literal attribute holding an explicit display name.
const NameKey = "name"

// Attribute is one entry of a node's attribute list. Key is set for literal
// entries and Index (1-based) for param entries.
type Attribute struct {
	Kind  AttrKind `json:"kind"`
	Key   string   `json:"key,omitempty"`
	Index int      `json:"index,omitempty"`
	Value string   `json:"value"`
}

// Literal returns a literal attribute entry.
func Literal(key, value string) Attribute {
	return Attribute{Kind: AttrLiteral, Key: key, Value: value}
}

// NameElement returns an entry for a flattened <n> element.
func NameElement(value string) Attribute {
	return Attribute{Kind: AttrName, Value: value}
}

// Param returns an entry for the index-th flattened <Param> element.
func Param(index int, value string) Attribute {
	return Attribute{Kind: AttrParam, Index: index, Value: value}
}

// FlatKey returns the key this entry has in the flat view.
func (a Attribute) FlatKey() string {
	switch a.Kind {
	case AttrName:
		return ActionNameKey
	case AttrParam:
		return paramPrefix + strconv.Itoa(a.Index)
	default:
		return a.Key
	}
}

// Attributes is the ordered attribute list of a node.
type Attributes []Attribute

// Literal returns the value of the literal attribute key.
func (attrs Attributes) Literal(key string) (string, bool) {
	for _, a := range attrs {
		if a.Kind == AttrLiteral && a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// ActionName returns the value of the first name entry.
func (attrs Attributes) ActionName() (string, bool) {
	for _, a := range attrs {
		if a.Kind == AttrName {
			return a.Value, true
		}
	}
	return "", false
}

// Params returns the param values in stored order.
func (attrs Attributes) Params() []string {
	var out []string
	for _, a := range attrs {
		if a.Kind == AttrParam {
			out = append(out, a.Value)
		}
	}
	return out
}

// Clone returns a copy of attrs that shares no backing array.
func (attrs Attributes) Clone() Attributes {
	if attrs == nil {
		return nil
	}
	out := make(Attributes, len(attrs))
	copy(out, attrs)
	return out
}

// Map returns the flat key/value view used by editors, together with every
// literal key that collides with a reserved key. On collision the reserved
// meaning wins in the returned map.
func (attrs Attributes) Map() (map[string]string, []error) {
	out := make(map[string]string, len(attrs))
	var errs []error
	for _, a := range attrs {
		if a.Kind != AttrLiteral {
			continue
		}
		if IsReservedKey(a.Key) {
			errs = append(errs, &AmbiguousAttributeError{Key: a.Key, Value: a.Value})
		}
		out[a.Key] = a.Value
	}
	for _, a := range attrs {
		if a.Kind != AttrLiteral {
			out[a.FlatKey()] = a.Value
		}
	}
	return out, errs
}

// ValidateParams reports ErrInvalidParams unless the param indices are
// exactly 1..N.
func (attrs Attributes) ValidateParams() error {
	seen := make(map[int]bool)
	for _, a := range attrs {
		if a.Kind != AttrParam {
			continue
		}
		if a.Index < 1 || seen[a.Index] {
			return ErrInvalidParams
		}
		seen[a.Index] = true
	}
	for i := 1; i <= len(seen); i++ {
		if !seen[i] {
			return ErrInvalidParams
		}
	}
	return nil
}

// Validate checks that attrs encodes to XML that decodes back to the same
// list: known kinds only, at most one name entry, literal keys that are
// unique XML names, params numbered 1..N in list order and values XML can
// carry. Failures wrap ErrInvalidAttribute, ErrInvalidParams or
// ErrInvalidText.
func (attrs Attributes) Validate() error {
	keys := make(map[string]bool)
	names, params := 0, 0
	for _, a := range attrs {
		switch a.Kind {
		case AttrLiteral:
			if !xmltree.IsName(a.Key) {
				return fmt.Errorf("%w: key %q is not an XML name", ErrInvalidAttribute, a.Key)
			}
			if keys[a.Key] {
				return fmt.Errorf("%w: duplicate key %q", ErrInvalidAttribute, a.Key)
			}
			keys[a.Key] = true
		case AttrName:
			names++
			if names > 1 {
				return fmt.Errorf("%w: more than one name entry", ErrInvalidAttribute)
			}
		case AttrParam:
			params++
			if a.Index != params {
				return ErrInvalidParams
			}
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidAttribute, a.Kind)
		}
		if err := ValidateText(a.Value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateText reports ErrInvalidText when s cannot be written into a
// mission file.
func ValidateText(s string) error {
	if err := xmltree.CheckText(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidText, err)
	}
	return nil
}

// AttributesFromMap converts a flat view back into tagged entries. Literal
// keys come first in key order, then the name entry, then params by index.
func AttributesFromMap(m map[string]string) (Attributes, error) {
	var (
		literals []string
		params   []int
	)
	name, hasName := "", false
	for key, value := range m {
		if key == ActionNameKey {
			name, hasName = value, true
			continue
		}
		if idx, ok := paramIndex(key); ok {
			params = append(params, idx)
			continue
		}
		literals = append(literals, key)
	}
	sort.Strings(literals)
	sort.Ints(params)

	out := make(Attributes, 0, len(m))
	for _, key := range literals {
		out = append(out, Literal(key, m[key]))
	}
	if hasName {
		out = append(out, NameElement(name))
	}
	for _, idx := range params {
		out = append(out, Param(idx, m[paramPrefix+strconv.Itoa(idx)]))
	}
	if err := out.ValidateParams(); err != nil {
		return nil, err
	}
	return out, nil
}

// IsReservedKey reports whether key has a special meaning in the flat view.
func IsReservedKey(key string) bool {
	if key == ActionNameKey {
		return true
	}
	_, ok := paramIndex(key)
	return ok
}

func paramIndex(key string) (int, bool) {
	if !strings.HasPrefix(key, paramPrefix) {
		return 0, false
	}
	digits := key[len(paramPrefix):]
	if digits == "" || digits[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// AmbiguousAttributeError marks a literal XML attribute whose name is also a
// reserved key of the flat view.
type AmbiguousAttributeError struct {
	Key   string
	Value string
}

func (e *AmbiguousAttributeError) Error() string {
	return fmt.Sprintf("attribute %q collides with a reserved flattened key", e.Key)
}
