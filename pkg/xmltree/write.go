package xmltree

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Header is the XML declaration written when Options.Header is set.
const Header = `<?xml version="1.0" encoding="UTF-8"?>`

// Options controls how a tree is written.
type Options struct {
	// Indent is one level of indentation. When empty the tree is written on
	// a single line.
	Indent string
	// Header writes the XML declaration before the root element.
	Header bool
}

type writer struct {
	*bufio.Writer
	opts Options
	n    int64
	err  error
}

// Write encodes root and its descendants to w. Elements without children
// are self-closed, elements holding only text are written on one line, and
// every other child starts on its own line indented by its depth. A name
// that is not an XML name or text with characters XML cannot carry stops
// the write with an error wrapping ErrInvalidName or ErrIllegalChar.
func Write(w io.Writer, root *Element, opts Options) (n int64, err error) {
	e := &writer{Writer: bufio.NewWriter(w), opts: opts}
	if opts.Header {
		e.writeString(Header)
		e.newline(0)
	}
	e.writeElement(root, 0)
	if opts.Indent != "" {
		e.writeString("\n")
	}
	if e.err == nil {
		e.err = e.Flush()
	}
	return e.n, e.err
}

// String returns the encoding of root as a string.
func String(root *Element, opts Options) (string, error) {
	var b strings.Builder
	if _, err := Write(&b, root, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *writer) writeElement(el *Element, depth int) {
	e.checkName(el.Name)
	e.writeString("<")
	e.writeString(el.Name)
	for _, a := range el.Attr {
		e.checkName(a.Name)
		e.writeString(" ")
		e.writeString(a.Name)
		e.writeString(`="`)
		e.escapeAttr(a.Value)
		e.writeString(`"`)
	}
	if len(el.Children) == 0 {
		e.writeString("/>")
		return
	}
	e.writeString(">")

	if textOnly(el) {
		for _, n := range el.Children {
			e.escapeText(string(n.(Text)))
		}
	} else {
		for _, n := range el.Children {
			e.newline(depth + 1)
			switch n := n.(type) {
			case *Element:
				e.writeElement(n, depth+1)
			case Text:
				e.escapeText(string(n))
			}
		}
		e.newline(depth)
	}

	e.writeString("</")
	e.writeString(el.Name)
	e.writeString(">")
}

func textOnly(el *Element) bool {
	for _, n := range el.Children {
		if _, ok := n.(Text); !ok {
			return false
		}
	}
	return true
}

func (e *writer) newline(depth int) {
	if e.opts.Indent == "" {
		return
	}
	e.writeString("\n")
	for i := 0; i < depth; i++ {
		e.writeString(e.opts.Indent)
	}
}

func (e *writer) checkName(name string) {
	if e.err == nil && !IsName(name) {
		e.err = fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
}

func (e *writer) checkText(s string) {
	if e.err == nil {
		e.err = CheckText(s)
	}
}

func (e *writer) writeString(s string) {
	if e.err != nil {
		return
	}
	n, err := e.WriteString(s)
	e.n += int64(n)
	e.err = err
}

// escapeAttr escapes quotes and whitespace control characters as well, so
// attribute values survive attribute-value normalization on the way back.
func (e *writer) escapeAttr(s string) {
	e.checkText(s)
	if e.err != nil {
		return
	}
	cw := &countingWriter{w: e.Writer}
	e.err = xml.EscapeText(cw, []byte(s))
	e.n += cw.n
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\r", "&#xD;",
)

// escapeText keeps newlines and tabs literal so multi-line text stays
// readable.
func (e *writer) escapeText(s string) {
	e.checkText(s)
	e.writeString(textEscaper.Replace(s))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
