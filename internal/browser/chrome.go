package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/treeherder-uitests/internal/common"
)

// DefaultActionTimeout bounds a single browser round trip.
const DefaultActionTimeout = 30 * time.Second

// ChromeOptions configures the headless Chrome session.
type ChromeOptions struct {
	Headless      bool
	WindowWidth   int
	WindowHeight  int
	ActionTimeout time.Duration
	ExecPath      string
}

// ChromeOptionsFromConfig maps the [browser] configuration section.
func ChromeOptionsFromConfig(cfg common.BrowserConfig) ChromeOptions {
	return ChromeOptions{
		Headless:      cfg.Headless,
		WindowWidth:   cfg.WindowWidth,
		WindowHeight:  cfg.WindowHeight,
		ActionTimeout: cfg.DefaultTimeout.Std(),
		ExecPath:      cfg.ExecPath,
	}
}

// Chrome drives a Chrome instance over the DevTools protocol.
type Chrome struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	timeout       time.Duration
	logger        arbor.ILogger

	mu      sync.Mutex
	tab     context.Context
	cancels []context.CancelFunc
	known   map[target.ID]bool
}

// NewChrome starts a browser and opens its first tab.
func NewChrome(opts ChromeOptions, logger arbor.ILogger) (*Chrome, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 1920, 1080
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// First Run starts the browser and attaches to the initial tab
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	c := &Chrome{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		timeout:       opts.ActionTimeout,
		logger:        logger,
		tab:           browserCtx,
		known:         map[target.ID]bool{},
	}
	if t := chromedp.FromContext(browserCtx).Target; t != nil {
		c.known[t.TargetID] = true
	}

	logger.Info().
		Bool("headless", opts.Headless).
		Int("width", opts.WindowWidth).
		Int("height", opts.WindowHeight).
		Msg("Browser started")

	return c, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	c.browserCancel()
	c.allocCancel()
	return nil
}

func (c *Chrome) current() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab
}

// run executes actions on the current tab, bounded by the action timeout and
// by the caller's context.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.current(), c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	err := c.run(ctx,
		chromedp.Navigate(url),
		chromedp.Poll(`document.readyState === "complete"`, nil, chromedp.WithPollingTimeout(c.timeout)),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	c.logger.Debug().Str("url", url).Msg("Navigated")
	return nil
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// ErrNoNewWindow is returned by SwitchToNewestWindow when no window has been
// opened since the last switch.
var ErrNoNewWindow = errors.New("no new window")

func (c *Chrome) SwitchToNewestWindow(ctx context.Context) error {
	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var newest *target.Info
	for _, t := range targets {
		if t.Type == "page" && !c.known[t.TargetID] {
			newest = t
		}
	}
	if newest == nil {
		return ErrNoNewWindow
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(newest.TargetID))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to attach to window %s: %w", newest.URL, err)
	}

	c.known[newest.TargetID] = true
	c.cancels = append(c.cancels, cancel)
	c.tab = tabCtx

	c.logger.Debug().Str("url", newest.URL).Msg("Switched to newest window")
	return nil
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (c *Chrome) FindElement(ctx context.Context, sel Selector) (Element, error) {
	return first(c.FindElements(ctx, sel))(sel)
}

func (c *Chrome) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	return c.query(ctx, sel)
}

func (c *Chrome) query(ctx context.Context, sel Selector, opts ...chromedp.QueryOption) ([]Element, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, opts...)
	if err := c.run(ctx, chromedp.Nodes(sel.CSS(), &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", sel, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{c: c, node: n})
	}
	return elements, nil
}

// first adapts a FindElements result to FindElement.
func first(elements []Element, err error) func(Selector) (Element, error) {
	return func(sel Selector) (Element, error) {
		if err != nil {
			return nil, err
		}
		if len(elements) == 0 {
			return nil, noSuchElement(sel)
		}
		return elements[0], nil
	}
}

type chromeElement struct {
	c    *Chrome
	node *cdp.Node
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromeElement) FindElement(ctx context.Context, sel Selector) (Element, error) {
	return first(e.FindElements(ctx, sel))(sel)
}

func (e *chromeElement) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	return e.c.query(ctx, sel, chromedp.FromNode(e.node))
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.c.run(ctx, chromedp.JavascriptAttribute(e.ids(), "innerText", &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, error) {
	var (
		value string
		ok    bool
	)
	if err := e.c.run(ctx, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return value, nil
}

func (e *chromeElement) Value(ctx context.Context) (string, error) {
	var value string
	if err := e.c.run(ctx, chromedp.Value(e.ids(), &value, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return value, nil
}

// IsDisplayed reports whether the element has a layout box of non-zero size.
func (e *chromeElement) IsDisplayed(ctx context.Context) (bool, error) {
	var (
		hasBox        bool
		width, height float64
	)
	err := e.c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return nil
		}
		hasBox = true
		return nil
	}))
	if err != nil || !hasBox {
		return false, err
	}

	err = e.c.run(ctx,
		chromedp.JavascriptAttribute(e.ids(), "offsetWidth", &width, chromedp.ByNodeID),
		chromedp.JavascriptAttribute(e.ids(), "offsetHeight", &height, chromedp.ByNodeID),
	)
	if err != nil {
		return false, err
	}
	return width > 0 || height > 0, nil
}

func (e *chromeElement) IsSelected(ctx context.Context) (bool, error) {
	var prop string
	switch e.node.NodeName {
	case "INPUT":
		prop = "checked"
	case "OPTION":
		prop = "selected"
	default:
		return false, nil
	}

	var selected bool
	if err := e.c.run(ctx, chromedp.JavascriptAttribute(e.ids(), prop, &selected, chromedp.ByNodeID)); err != nil {
		return false, err
	}
	return selected, nil
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.ClickWith(ctx, 0)
}

func (e *chromeElement) ClickWith(ctx context.Context, mods Modifier) error {
	return e.c.run(ctx,
		chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID),
		chromedp.MouseClickNode(e.node, chromedp.ButtonModifiers(inputModifiers(mods)...)),
	)
}

// SendKeys focuses the element when it can take focus and dispatches each key
// sequence to the page. Elements that cannot be focused, like body, still
// receive the events through the document.
func (e *chromeElement) SendKeys(ctx context.Context, keys ...Keys) error {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := dom.Focus().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
				e.c.logger.Debug().Err(err).Str("node", e.node.NodeName).Msg("Element not focusable, keys go to the document")
			}
			return nil
		}),
	}
	for _, k := range keys {
		actions = append(actions, chromedp.KeyEvent(k.Text, chromedp.KeyModifiers(inputModifiers(k.Modifiers)...)))
	}
	return e.c.run(ctx, actions...)
}

func inputModifiers(m Modifier) []input.Modifier {
	var mods []input.Modifier
	if m.Has(Ctrl) {
		mods = append(mods, input.ModifierCtrl)
	}
	if m.Has(Shift) {
		mods = append(mods, input.ModifierShift)
	}
	if m.Has(Alt) {
		mods = append(mods, input.ModifierAlt)
	}
	if m.Has(Meta) {
		mods = append(mods, input.ModifierMeta)
	}
	return mods
}

var _ Driver = (*Chrome)(nil)
