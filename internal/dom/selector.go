package dom

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

var errBadSelector = errors.New("dom: unsupported selector")

// compound is a single compound selector: an optional tag (or *) followed by
// any number of #id, .class, [attr] and [attr=value] tests, all of which must
// hold. Combinators (descendant, >, +, ~) are not supported.
type compound struct {
	tag     string
	ids     []string
	classes []string
	attrs   []attrTest
}

type attrTest struct {
	key    string
	val    string
	hasVal bool
}

// parseSelectorList splits a comma separated selector list and parses each
// member. Empty members are skipped.
func parseSelectorList(list string) ([]compound, error) {
	var out []compound
	for _, part := range splitList(list) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseCompound(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// splitList splits on commas outside brackets and quotes.
func splitList(s string) []string {
	var parts []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			if depth > 0 {
				depth--
			}
		case ch == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func parseCompound(sel string) (compound, error) {
	var c compound
	var i int

	if strings.HasPrefix(sel, "*") {
		i = 1
	} else {
		i = scanName(sel, 0)
		c.tag = strings.ToLower(sel[:i])
	}

	for i < len(sel) {
		switch sel[i] {
		case '#', '.':
			end := scanName(sel, i+1)
			if end == i+1 {
				return c, fmt.Errorf("%w: %q: empty name at %d", errBadSelector, sel, i)
			}
			if sel[i] == '#' {
				c.ids = append(c.ids, sel[i+1:end])
			} else {
				c.classes = append(c.classes, sel[i+1:end])
			}
			i = end
		case '[':
			test, end, err := parseAttr(sel, i+1)
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, test)
			i = end
		default:
			return c, fmt.Errorf("%w: %q: unexpected %q at %d", errBadSelector, sel, sel[i], i)
		}
	}

	return c, nil
}

// parseAttr parses the body of an attribute test starting just after '['
// and returns the index just after the closing ']'.
func parseAttr(sel string, i int) (attrTest, int, error) {
	var a attrTest

	i = skipSpace(sel, i)
	end := scanName(sel, i)
	if end == i {
		return a, 0, fmt.Errorf("%w: %q: missing attribute name", errBadSelector, sel)
	}
	a.key = strings.ToLower(sel[i:end])
	i = skipSpace(sel, end)

	if i < len(sel) && sel[i] == '=' {
		a.hasVal = true
		i = skipSpace(sel, i+1)
		if i < len(sel) && (sel[i] == '"' || sel[i] == '\'') {
			q := sel[i]
			closeAt := strings.IndexByte(sel[i+1:], q)
			if closeAt < 0 {
				return a, 0, fmt.Errorf("%w: %q: unterminated string", errBadSelector, sel)
			}
			a.val = sel[i+1 : i+1+closeAt]
			i += closeAt + 2
		} else {
			end = scanName(sel, i)
			a.val = sel[i:end]
			i = end
		}
		i = skipSpace(sel, i)
	}

	if i >= len(sel) || sel[i] != ']' {
		return a, 0, fmt.Errorf("%w: %q: missing ]", errBadSelector, sel)
	}
	return a, i + 1, nil
}

func scanName(s string, i int) int {
	for i < len(s) {
		ch := s[i]
		if ch == '-' || ch == '_' || ch >= 0x80 ||
			('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9') {
			i++
			continue
		}
		break
	}
	return i
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	return i
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}

	for _, id := range c.ids {
		if v, _ := attr(n, "id"); v != id {
			return false
		}
	}

	if len(c.classes) > 0 {
		v, _ := attr(n, "class")
		have := strings.Fields(v)
		for _, want := range c.classes {
			if !slices.Contains(have, want) {
				return false
			}
		}
	}

	for _, a := range c.attrs {
		v, ok := attr(n, a.key)
		if !ok || (a.hasVal && v != a.val) {
			return false
		}
	}

	return true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
