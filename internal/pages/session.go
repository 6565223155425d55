// Package pages holds page objects for the Treeherder dashboard. Every page
// and region carries an explicit *Session instead of reaching for global
// browser state.
package pages

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/common"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

// ErrNothingToChoose is returned when a random pick is made from an empty list.
var ErrNothingToChoose = errors.New("nothing to choose from")

// InputMethod selects how an action is performed.
type InputMethod int

const (
	Pointer InputMethod = iota
	Keyboard
)

func (m InputMethod) String() string {
	if m == Keyboard {
		return "keyboard"
	}
	return "pointer"
}

// InProgressOption is the desired visibility of pending and running jobs.
type InProgressOption int

const (
	Show InProgressOption = iota
	Hide
)

func (o InProgressOption) String() string {
	if o == Hide {
		return "hide"
	}
	return "show"
}

// Session is the browser, timing and randomness shared by page objects.
type Session struct {
	Driver  browser.Driver
	Wait    wait.Waiter
	Rand    *rand.Rand
	Seed    int64
	Logger  arbor.ILogger
	BaseURL string
}

// NewSession builds a session from configuration. A zero random seed is
// replaced with a time based one; the seed in use is logged so a run can be
// replayed.
func NewSession(driver browser.Driver, cfg *common.Config, logger arbor.ILogger) *Session {
	if logger == nil {
		logger = common.GetLogger()
	}

	seed := cfg.Random.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger.Info().
		Str("base_url", cfg.Dashboard.BaseURL).
		Int64("seed", seed).
		Msg("Page session created")

	return &Session{
		Driver:  driver,
		Wait:    wait.FromConfig(cfg.Wait, logger),
		Rand:    NewRand(uint64(seed)),
		Seed:    seed,
		Logger:  logger,
		BaseURL: cfg.Dashboard.BaseURL,
	}
}

// NewRand returns a deterministic source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (s *Session) waiter(msg string) wait.Waiter {
	return s.Wait.WithMessage(msg)
}

// pick returns a random element of items.
func pick[T any](s *Session, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, ErrNothingToChoose
	}
	return items[s.Rand.IntN(len(items))], nil
}

// Region scopes element lookups to a root, which is the whole page for
// page-level objects.
type Region struct {
	s    *Session
	root browser.Finder
}

func (r Region) find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	return r.root.FindElement(ctx, sel)
}

func (r Region) findAll(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	return r.root.FindElements(ctx, sel)
}

func (r Region) text(ctx context.Context, sel browser.Selector) (string, error) {
	el, err := r.find(ctx, sel)
	if err != nil {
		return "", err
	}
	return elementText(ctx, el)
}

func (r Region) click(ctx context.Context, sel browser.Selector) error {
	el, err := r.find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("failed to click %s: %w", sel, err)
	}
	return nil
}

func (r Region) sendKeys(ctx context.Context, sel browser.Selector, keys ...browser.Keys) error {
	el, err := r.find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.SendKeys(ctx, keys...); err != nil {
		return fmt.Errorf("failed to send keys to %s: %w", sel, err)
	}
	return nil
}

// displayed reports false for elements that are missing as well as hidden.
func (r Region) displayed(ctx context.Context, sel browser.Selector) (bool, error) {
	el, err := r.find(ctx, sel)
	if errors.Is(err, browser.ErrNoSuchElement) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return el.IsDisplayed(ctx)
}

func (r Region) selected(ctx context.Context, sel browser.Selector) (bool, error) {
	el, err := r.find(ctx, sel)
	if err != nil {
		return false, err
	}
	return el.IsSelected(ctx)
}

// waitDisplayed blocks until sel is visible.
func (r Region) waitDisplayed(ctx context.Context, sel browser.Selector) error {
	return wait.True(ctx, r.s.waiter(sel.String()+" is displayed"), func(ctx context.Context) (bool, error) {
		return r.displayed(ctx, sel)
	})
}

func elementText(ctx context.Context, el browser.Element) (string, error) {
	text, err := el.Text(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
