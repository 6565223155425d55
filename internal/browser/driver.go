package browser

import (
	"context"
	"errors"
)

// ErrNoSuchElement is returned by FindElement when nothing matches.
var ErrNoSuchElement = errors.New("no such element")

// Finder looks up elements, either page-wide or below a root element.
type Finder interface {
	// FindElement returns the first match or an error wrapping ErrNoSuchElement.
	FindElement(ctx context.Context, sel Selector) (Element, error)

	// FindElements returns every match without waiting; no match is not an error.
	FindElements(ctx context.Context, sel Selector) ([]Element, error)
}

// Element is a handle on one DOM element.
type Element interface {
	Finder

	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)

	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(ctx context.Context, name string) (string, error)

	// Value returns the current value of a form control.
	Value(ctx context.Context) (string, error)

	IsDisplayed(ctx context.Context) (bool, error)
	IsSelected(ctx context.Context) (bool, error)

	Click(ctx context.Context) error

	// ClickWith clicks while holding mods, e.g. Ctrl+click to pin a job.
	ClickWith(ctx context.Context, mods Modifier) error

	// SendKeys focuses the element and types each key sequence in order.
	SendKeys(ctx context.Context, keys ...Keys) error
}

// Driver is a browser session.
type Driver interface {
	Finder

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// SwitchToNewestWindow makes the most recently opened window current.
	SwitchToNewestWindow(ctx context.Context) error

	// Screenshot captures the current window as PNG or JPEG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// noSuchElement wraps ErrNoSuchElement with the selector that failed.
func noSuchElement(sel Selector) error {
	return &NoSuchElementError{Selector: sel}
}

// NoSuchElementError reports the selector that matched nothing.
type NoSuchElementError struct {
	Selector Selector
}

func (e *NoSuchElementError) Error() string {
	return "no such element: " + e.Selector.String()
}

func (e *NoSuchElementError) Unwrap() error {
	return ErrNoSuchElement
}
