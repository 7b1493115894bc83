// Package swt converts between mission-script XML (.swt files) and the
// editable tree in package core.
package swt

import (
	"io"
	"strings"

	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/xmltree"
)

// Element and attribute names of the mission dialect.
const (
	RootTag        = "Mission"
	DescriptionTag = "Description"
	NameTag        = "n"
	ParamTag       = "Param"
	VersionAttr    = "version"
	NameAttr       = "name"
)

var scriptTags = map[string]bool{
	"Event":     true,
	"Trigger":   true,
	"Action":    true,
	"Condition": true,
	"Timer":     true,
}

// IsScriptTag reports whether tag is promoted into the event tree. The match
// is exact and case-sensitive.
func IsScriptTag(tag string) bool {
	return scriptTags[tag]
}

// ScanMode selects which script elements become top-level events.
type ScanMode int

const (
	// ScanOutermost lifts only script elements that have no script ancestor.
	// Nested ones are reachable through their parent's Children.
	ScanOutermost ScanMode = iota
	// ScanAll lifts every script element in the document, so nested
	// subtrees appear both under their parent and again at the top level,
	// each copy with its own ids.
	ScanAll
)

// ParseScanMode maps a configuration value to a ScanMode.
func ParseScanMode(s string) (ScanMode, bool) {
	switch s {
	case "", "outermost":
		return ScanOutermost, true
	case "all":
		return ScanAll, true
	}
	return ScanOutermost, false
}

// Decoder converts mission XML into a core.Mission.
type Decoder struct {
	// IDs hands out event ids. It must not be nil.
	IDs  core.IDGenerator
	Scan ScanMode

	// Warnings holds the non-fatal issues found by the last Decode call,
	// such as literal attributes named like a reserved flattened key.
	Warnings []error
}

// NewDecoder returns a Decoder using ids and the default scan mode.
func NewDecoder(ids core.IDGenerator) *Decoder {
	return &Decoder{IDs: ids}
}

// Decode parses a mission document read from r.
func Decode(r io.Reader, ids core.IDGenerator) (core.Mission, error) {
	return NewDecoder(ids).Decode(r)
}

// DecodeString parses a mission document held in s.
func DecodeString(s string, ids core.IDGenerator) (core.Mission, error) {
	return Decode(strings.NewReader(s), ids)
}

// Decode parses a mission document read from r. On a syntax error it returns
// a *MalformedXMLError and no document.
func (d *Decoder) Decode(r io.Reader) (core.Mission, error) {
	d.Warnings = nil
	root, err := xmltree.Parse(r)
	if err != nil {
		return core.Mission{}, malformed(err)
	}
	return d.DecodeTree(root), nil
}

// DecodeTree converts an already parsed element tree.
func (d *Decoder) DecodeTree(root *xmltree.Element) core.Mission {
	m := core.Mission{Events: []core.ScriptEvent{}}
	d.scan(root, &m.Events)
	if v, ok := root.AttrValue(VersionAttr); ok {
		m.Metadata.Version = core.StrPtr(v)
	}
	if desc, ok := root.Child(DescriptionTag); ok {
		m.Metadata.Description = core.StrPtr(desc.TextContent())
	}
	return m
}

// scan walks el depth-first, parents before children, appending converted
// script elements to out.
func (d *Decoder) scan(el *xmltree.Element, out *[]core.ScriptEvent) {
	if IsScriptTag(el.Name) {
		*out = append(*out, d.convert(el))
		if d.Scan == ScanOutermost {
			return
		}
	}
	for _, child := range el.Elements() {
		d.scan(child, out)
	}
}

func (d *Decoder) convert(el *xmltree.Element) core.ScriptEvent {
	ev := core.ScriptEvent{
		ID:         d.IDs.NewID(),
		Name:       el.Name,
		Kind:       core.KindForTag(el.Name),
		Attributes: d.attributes(el),
		Children:   []core.ScriptEvent{},
		Content:    directText(el),
	}
	if v, _ := el.AttrValue(NameAttr); v != "" {
		ev.Name = v
	} else if v, _ := ev.Attributes.ActionName(); strings.TrimSpace(v) != "" {
		ev.Name = strings.TrimSpace(v)
	}
	for _, child := range el.Elements() {
		if IsScriptTag(child.Name) {
			ev.Children = append(ev.Children, d.convert(child))
		}
	}
	return ev
}

// attributes flattens literal attributes, the first <n> child and every
// <Param> child into one list. Name and param entries keep document order.
func (d *Decoder) attributes(el *xmltree.Element) core.Attributes {
	attrs := make(core.Attributes, 0, len(el.Attr))
	for _, a := range el.Attr {
		if core.IsReservedKey(a.Name) {
			d.Warnings = append(d.Warnings, &core.AmbiguousAttributeError{Key: a.Name, Value: a.Value})
		}
		attrs = append(attrs, core.Literal(a.Name, a.Value))
	}
	hasName, params := false, 0
	for _, child := range el.Elements() {
		switch child.Name {
		case NameTag:
			if !hasName {
				attrs = append(attrs, core.NameElement(child.TextContent()))
				hasName = true
			}
		case ParamTag:
			params++
			attrs = append(attrs, core.Param(params, child.TextContent()))
		}
	}
	return attrs
}

// directText joins the trimmed, non-empty direct text nodes with a space.
func directText(el *xmltree.Element) *string {
	var parts []string
	for _, t := range el.Texts() {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return core.StrPtr(strings.Join(parts, " "))
}
