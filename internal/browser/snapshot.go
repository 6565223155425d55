package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ErrStaleElement is returned when an element handle outlives the document it
// was found in.
var ErrStaleElement = errors.New("stale element reference")

// ActionKind names an interaction recorded by Snapshot.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionKeys     ActionKind = "keys"
)

// Action is one interaction with a Snapshot document.
type Action struct {
	Kind      ActionKind
	Target    *goquery.Selection // nil for navigate
	Modifiers Modifier
	Keys      Keys
	URL       string
}

// Reactor reacts to an interaction, typically by swapping in the document
// the real application would render next.
type Reactor func(s *Snapshot, a Action)

// Snapshot is a Driver over static HTML. It answers queries with goquery and
// records interactions instead of executing scripts.
type Snapshot struct {
	mu      sync.Mutex
	doc     *goquery.Document
	gen     int
	url     string
	pending []window
	actions []Action
	reactor Reactor
}

type window struct {
	url  string
	html string
}

// NewSnapshot parses html as the current document.
func NewSnapshot(html string) (*Snapshot, error) {
	s := &Snapshot{url: "about:blank"}
	if err := s.SetHTML(html); err != nil {
		return nil, err
	}
	return s, nil
}

// SetHTML replaces the current document. Elements found earlier go stale.
func (s *Snapshot) SetHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.gen++
	s.mu.Unlock()
	return nil
}

// OnAction installs the reactor called after every interaction.
func (s *Snapshot) OnAction(r Reactor) {
	s.mu.Lock()
	s.reactor = r
	s.mu.Unlock()
}

// OpenWindow queues a window that SwitchToNewestWindow will move to.
func (s *Snapshot) OpenWindow(url, html string) {
	s.mu.Lock()
	s.pending = append(s.pending, window{url: url, html: html})
	s.mu.Unlock()
}

// Actions returns the interactions recorded so far.
func (s *Snapshot) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

// Document exposes the current document for assertions.
func (s *Snapshot) Document() *goquery.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Snapshot) record(a Action) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	reactor := s.reactor
	s.mu.Unlock()

	if reactor != nil {
		reactor(s, a)
	}
}

func (s *Snapshot) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	s.record(Action{Kind: ActionNavigate, URL: url})
	return nil
}

func (s *Snapshot) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *Snapshot) SwitchToNewestWindow(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return ErrNoNewWindow
	}
	w := s.pending[len(s.pending)-1]
	s.pending = nil
	s.url = w.url
	s.mu.Unlock()

	return s.SetHTML(w.html)
}

// Screenshot returns the serialized document in place of an image.
func (s *Snapshot) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html, err := s.doc.Html()
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

func (s *Snapshot) FindElement(ctx context.Context, sel Selector) (Element, error) {
	return first(s.FindElements(ctx, sel))(sel)
}

func (s *Snapshot) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	root, gen := s.doc.Selection, s.gen
	s.mu.Unlock()
	return s.wrap(root.Find(sel.CSS()), gen), nil
}

func (s *Snapshot) wrap(found *goquery.Selection, gen int) []Element {
	elements := make([]Element, 0, found.Length())
	found.Each(func(_ int, node *goquery.Selection) {
		elements = append(elements, &snapshotElement{s: s, sel: node, gen: gen})
	})
	return elements
}

type snapshotElement struct {
	s   *Snapshot
	sel *goquery.Selection
	gen int
}

func (e *snapshotElement) live() error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.gen != e.s.gen {
		return ErrStaleElement
	}
	return nil
}

func (e *snapshotElement) FindElement(ctx context.Context, sel Selector) (Element, error) {
	return first(e.FindElements(ctx, sel))(sel)
}

func (e *snapshotElement) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.s.wrap(e.sel.Find(sel.CSS()), e.gen), nil
}

// Text returns the element text with whitespace collapsed.
func (e *snapshotElement) Text(ctx context.Context) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e *snapshotElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	return e.sel.AttrOr(name, ""), nil
}

func (e *snapshotElement) Value(ctx context.Context) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	if v, ok := e.sel.Attr("value"); ok {
		return v, nil
	}
	if goquery.NodeName(e.sel) == "textarea" {
		return e.sel.Text(), nil
	}
	return "", nil
}

// IsDisplayed reports false when the element or an ancestor is hidden by
// attribute, inline style or a hiding class.
func (e *snapshotElement) IsDisplayed(ctx context.Context) (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	for node := e.sel; node.Length() > 0; node = node.Parent() {
		if hidden(node) {
			return false, nil
		}
	}
	return true, nil
}

func hidden(node *goquery.Selection) bool {
	if _, ok := node.Attr("hidden"); ok {
		return true
	}
	if node.HasClass("ng-hide") || node.HasClass("hidden") {
		return true
	}
	style := strings.ReplaceAll(node.AttrOr("style", ""), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func (e *snapshotElement) IsSelected(ctx context.Context) (bool, error) {
	if err := e.live(); err != nil {
		return false, err
	}
	_, checked := e.sel.Attr("checked")
	_, selected := e.sel.Attr("selected")
	return checked || selected, nil
}

func (e *snapshotElement) Click(ctx context.Context) error {
	return e.ClickWith(ctx, 0)
}

func (e *snapshotElement) ClickWith(ctx context.Context, mods Modifier) error {
	if err := e.live(); err != nil {
		return err
	}
	e.s.record(Action{Kind: ActionClick, Target: e.sel, Modifiers: mods})
	return nil
}

// SendKeys records each key sequence. Plain printable text typed into a form
// control is appended to its value.
func (e *snapshotElement) SendKeys(ctx context.Context, keys ...Keys) error {
	for _, k := range keys {
		if err := e.live(); err != nil {
			return err
		}
		if k.Modifiers == 0 && printable(k.Text) {
			switch goquery.NodeName(e.sel) {
			case "input", "textarea":
				e.sel.SetAttr("value", e.sel.AttrOr("value", "")+k.Text)
			}
		}
		e.s.record(Action{Kind: ActionKeys, Target: e.sel, Keys: k})
	}
	return nil
}

func printable(text string) bool {
	switch text {
	case Escape, Enter, ArrowLeft, ArrowRight:
		return false
	}
	return text != ""
}

var _ Driver = (*Snapshot)(nil)
