package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// A SyntaxError represents a syntax error in the XML input stream.
type SyntaxError struct {
	Msg  string
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("XML syntax error on line %d: %s", e.Line, e.Msg)
}

type parser struct {
	dec   *xml.Decoder
	root  *Element
	stack []*Element
}

func (p *parser) syntaxError(msg string) error {
	line, _ := p.dec.InputPos()
	return &SyntaxError{Msg: msg, Line: line}
}

// Parse reads a complete document from r and returns its root element. The
// document must contain exactly one root element; anything else outside the
// root other than whitespace, comments, processing instructions and
// directives is an error.
func Parse(r io.Reader) (*Element, error) {
	p := &parser{dec: xml.NewDecoder(r)}
	p.dec.Strict = true
	for {
		tok, err := p.dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var serr *xml.SyntaxError
			if errors.As(err, &serr) {
				return nil, &SyntaxError{Msg: serr.Msg, Line: serr.Line}
			}
			return nil, err
		}
		if err := p.token(tok); err != nil {
			return nil, err
		}
	}
	if len(p.stack) > 0 {
		return nil, p.syntaxError(fmt.Sprintf("unexpected EOF: element <%s> not closed", p.stack[len(p.stack)-1].Name))
	}
	if p.root == nil {
		return nil, p.syntaxError("no root element")
	}
	return p.root, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Element, error) {
	return Parse(strings.NewReader(s))
}

func (p *parser) token(tok xml.Token) error {
	switch tok := tok.(type) {
	case xml.StartElement:
		el := &Element{Name: qualified(tok.Name)}
		for _, a := range tok.Attr {
			el.Attr = append(el.Attr, Attr{Name: qualified(a.Name), Value: a.Value})
		}
		if len(p.stack) == 0 {
			if p.root != nil {
				return p.syntaxError("multiple root elements")
			}
			p.root = el
		} else {
			p.top().Append(el)
		}
		p.stack = append(p.stack, el)
	case xml.EndElement:
		name := qualified(tok.Name)
		if len(p.stack) == 0 {
			return p.syntaxError(fmt.Sprintf("unexpected end element </%s>", name))
		}
		if top := p.top(); top.Name != name {
			return p.syntaxError(fmt.Sprintf("element <%s> closed by </%s>", top.Name, name))
		}
		p.stack = p.stack[:len(p.stack)-1]
	case xml.CharData:
		if len(p.stack) == 0 {
			if strings.TrimSpace(string(tok)) != "" {
				return p.syntaxError("text outside root element")
			}
			return nil
		}
		top := p.top()
		if n := len(top.Children); n > 0 {
			if prev, ok := top.Children[n-1].(Text); ok {
				top.Children[n-1] = prev + Text(tok)
				return nil
			}
		}
		top.Append(Text(string(tok)))
	}
	return nil
}

func (p *parser) top() *Element {
	return p.stack[len(p.stack)-1]
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
