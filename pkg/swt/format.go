package swt

import (
	"strings"

	"github.com/go-xmlfmt/xmlfmt"

	"github.com/rexliu/swtedit/pkg/xmltree"
)

// Reformat re-indents raw XML text without decoding it into the event tree,
// so elements the editor does not model are kept. The input must be
// well-formed; otherwise a *MalformedXMLError is returned.
func Reformat(raw, indent string) (string, error) {
	if _, err := xmltree.ParseString(raw); err != nil {
		return "", malformed(err)
	}
	if indent == "" {
		indent = DefaultIndent
	}
	formatted := xmlfmt.FormatXML(raw, "", indent)
	// xmlfmt starts every tag with a CRLF, the first one included
	formatted = strings.ReplaceAll(formatted, "\r\n", "\n")
	return strings.TrimSpace(formatted) + "\n", nil
}
