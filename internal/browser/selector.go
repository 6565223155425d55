// Package browser is the boundary between page objects and the browser
// automation driver. It defines locators, key sequences and the element and
// driver capabilities the page objects consume, with a chromedp-backed
// implementation for live runs and a goquery-backed one for static HTML.
package browser

import (
	"fmt"
	"regexp"
)

// Kind is the lookup strategy of a Selector.
type Kind int

const (
	ByCSS Kind = iota
	ByID
	ByClassName
)

func (k Kind) String() string {
	switch k {
	case ByCSS:
		return "css selector"
	case ByID:
		return "id"
	case ByClassName:
		return "class name"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Selector identifies an element by one strategy and its matching string.
type Selector struct {
	Kind  Kind
	Value string
}

// CSS selects by CSS selector.
func CSS(selector string) Selector {
	return Selector{Kind: ByCSS, Value: selector}
}

// ID selects by element id.
func ID(id string) Selector {
	return Selector{Kind: ByID, Value: id}
}

// ClassName selects by a single class name.
func ClassName(name string) Selector {
	return Selector{Kind: ByClassName, Value: name}
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// CSS renders the selector as a CSS query usable by any strategy.
func (s Selector) CSS() string {
	switch s.Kind {
	case ByID:
		if plainIdent.MatchString(s.Value) {
			return "#" + s.Value
		}
		return fmt.Sprintf(`[id=%q]`, s.Value)
	case ByClassName:
		if plainIdent.MatchString(s.Value) {
			return "." + s.Value
		}
		return fmt.Sprintf(`[class~=%q]`, s.Value)
	default:
		return s.Value
	}
}

func (s Selector) String() string {
	return s.Kind.String() + "=" + s.Value
}
