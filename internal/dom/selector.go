package dom

import (
	"fmt"
	"strings"
)

// selector is a parsed compound selector: optional tag plus any number of
// id/class/attribute conditions. This covers the subset the adapter's
// configurable selectors use; there is no combinator support because the
// adapter always queries from the document root or within one node.
type selector struct {
	tag   string
	id    string
	class []string
	attrs []attrCond
}

type attrCond struct {
	name     string
	value    string
	hasValue bool
}

func parseSelector(s string) (*selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("dom: empty selector")
	}
	sel := &selector{}
	i := 0
	// Leading tag name
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	sel.tag = strings.ToLower(s[:i])

	for i < len(s) {
		switch s[i] {
		case '#':
			start := i + 1
			i = start
			for i < len(s) && isNameChar(s[i]) {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("dom: bad selector %q", s)
			}
			sel.id = s[start:i]
		case '.':
			start := i + 1
			i = start
			for i < len(s) && isNameChar(s[i]) {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("dom: bad selector %q", s)
			}
			sel.class = append(sel.class, s[start:i])
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("dom: unterminated attribute in %q", s)
			}
			cond, err := parseAttrCond(s[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			sel.attrs = append(sel.attrs, cond)
			i += end + 1
		default:
			return nil, fmt.Errorf("dom: unsupported selector syntax in %q", s)
		}
	}
	return sel, nil
}

func parseAttrCond(body string) (attrCond, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return attrCond{}, fmt.Errorf("dom: empty attribute condition")
	}
	eq := strings.IndexByte(body, '=')
	if eq < 0 {
		return attrCond{name: strings.ToLower(body)}, nil
	}
	name := strings.ToLower(strings.TrimSpace(body[:eq]))
	value := strings.TrimSpace(body[eq+1:])
	value = strings.Trim(value, `"'`)
	return attrCond{name: name, value: value, hasValue: true}, nil
}

func (sel *selector) matches(n *fakeNode) bool {
	if sel.tag != "" && n.tag != sel.tag {
		return false
	}
	if sel.id != "" && n.attrs["id"] != sel.id {
		return false
	}
	for _, class := range sel.class {
		if !hasClass(n.attrs["class"], class) {
			return false
		}
	}
	for _, cond := range sel.attrs {
		v, ok := n.attrs[cond.name]
		if !ok {
			return false
		}
		if cond.hasValue && v != cond.value {
			return false
		}
	}
	return true
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}
