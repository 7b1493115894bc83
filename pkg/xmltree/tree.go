// Package xmltree is a small generic XML element tree used by the mission
// codec. It keeps attribute order, mixed content order and qualified names
// exactly as written.
package xmltree

import "strings"

// Node is either an *Element or a Text.
type Node interface {
	isNode()
}

// Text is a run of character data. Adjacent character data and CDATA
// sections are merged into one Text.
type Text string

func (Text) isNode() {}

// Attr is an attribute of an element. Name is the qualified name as written,
// including any prefix.
type Attr struct {
	Name  string
	Value string
}

// Element is an XML element.
type Element struct {
	// Name is the qualified tag name as written.
	Name     string
	Attr     []Attr
	Children []Node
}

func (*Element) isNode() {}

// NewElement returns an element with the given name and attributes.
func NewElement(name string, attrs ...Attr) *Element {
	return &Element{Name: name, Attr: attrs}
}

// AttrValue returns the value of the first attribute of the given name, and
// whether or not it exists.
func (e *Element) AttrValue(name string) (value string, exists bool) {
	for _, a := range e.Attr {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets name to value, replacing an existing attribute of that name.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Attr {
		if a.Name == name {
			e.Attr[i].Value = value
			return
		}
	}
	e.Attr = append(e.Attr, Attr{Name: name, Value: value})
}

// Append adds child nodes in order.
func (e *Element) Append(nodes ...Node) *Element {
	e.Children = append(e.Children, nodes...)
	return e
}

// AppendText adds a text node.
func (e *Element) AppendText(s string) *Element {
	return e.Append(Text(s))
}

// Elements returns the direct child elements.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, n := range e.Children {
		if el, ok := n.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// Child returns the first direct child element called name.
func (e *Element) Child(name string) (*Element, bool) {
	for _, n := range e.Children {
		if el, ok := n.(*Element); ok && el.Name == name {
			return el, true
		}
	}
	return nil, false
}

// ChildrenNamed returns every direct child element called name.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, el := range e.Elements() {
		if el.Name == name {
			out = append(out, el)
		}
	}
	return out
}

// Texts returns the direct text children in order.
func (e *Element) Texts() []string {
	var out []string
	for _, n := range e.Children {
		if t, ok := n.(Text); ok {
			out = append(out, string(t))
		}
	}
	return out
}

// TextContent returns the concatenation of all descendant text.
func (e *Element) TextContent() string {
	var b strings.Builder
	e.textContent(&b)
	return b.String()
}

func (e *Element) textContent(b *strings.Builder) {
	for _, n := range e.Children {
		switch n := n.(type) {
		case Text:
			b.WriteString(string(n))
		case *Element:
			n.textContent(b)
		}
	}
}
