package swt

import (
	"io"
	"strings"

	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/xmltree"
)

// DefaultIndent is one level of indentation in encoded output.
const DefaultIndent = "  "

// Encoder converts a core.Mission into mission XML.
type Encoder struct {
	// Indent is one level of indentation. Empty writes a single line.
	Indent string
	// Header writes an XML declaration first.
	Header bool
}

// NewEncoder returns an Encoder with two-space indentation.
func NewEncoder() *Encoder {
	return &Encoder{Indent: DefaultIndent}
}

// Encode writes m to w with the default settings.
func Encode(w io.Writer, m core.Mission) error {
	return NewEncoder().Encode(w, m)
}

// EncodeString returns the default encoding of m.
func EncodeString(m core.Mission) (string, error) {
	var b strings.Builder
	if err := Encode(&b, m); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Encode writes m to w.
func (e *Encoder) Encode(w io.Writer, m core.Mission) error {
	_, err := xmltree.Write(w, Tree(m), xmltree.Options{Indent: e.Indent, Header: e.Header})
	return err
}

// EncodeString returns the encoding of m.
func (e *Encoder) EncodeString(m core.Mission) (string, error) {
	var b strings.Builder
	if err := e.Encode(&b, m); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Tree builds the element tree for m. The tag of each event comes from its
// kind, so Condition and Timer elements read from a file are written back as
// Trigger and Event.
func Tree(m core.Mission) *xmltree.Element {
	root := xmltree.NewElement(RootTag)
	if m.Metadata.Version != nil {
		root.SetAttr(VersionAttr, *m.Metadata.Version)
	}
	if m.Metadata.Description != nil && *m.Metadata.Description != "" {
		root.Append(xmltree.NewElement(DescriptionTag).AppendText(*m.Metadata.Description))
	}
	for _, ev := range m.Events {
		root.Append(eventElement(ev))
	}
	return root
}

func eventElement(ev core.ScriptEvent) *xmltree.Element {
	el := xmltree.NewElement(ev.Kind.Tag())
	for _, a := range ev.Attributes {
		switch a.Kind {
		case core.AttrName:
			el.Append(textElement(NameTag, a.Value))
		case core.AttrParam:
			el.Append(textElement(ParamTag, a.Value))
		default:
			el.SetAttr(a.Key, a.Value)
		}
	}
	// Whitespace-only content would decode back as no content.
	if ev.Content != nil && strings.TrimSpace(*ev.Content) != "" {
		el.AppendText(*ev.Content)
	}
	for _, child := range ev.Children {
		el.Append(eventElement(child))
	}
	return el
}

func textElement(name, text string) *xmltree.Element {
	el := xmltree.NewElement(name)
	if text != "" {
		el.AppendText(text)
	}
	return el
}
