// uitest_context.go - Shared UI test context for the Treeherder suite
// NOTE: This is NOT a test file - it contains shared test infrastructure.

package ui

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/pages"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
	"github.com/ternarybob/treeherder-uitests/test/common"
)

// MaxTestTimeout bounds a single UI test, browser start included
const MaxTestTimeout = 5 * time.Minute

// UITestContext holds the browser, page session and results directory of one test
type UITestContext struct {
	T       *testing.T
	Env     *common.TestEnvironment
	Ctx     context.Context
	Browser *browser.Chrome
	Session *pages.Session
	BaseURL string

	// Internal cleanup functions
	cleanup []func()

	// Screenshot counter for sequential naming
	screenshotNum int
}

// NewUITestContext starts a browser against the configured dashboard.
// The test is skipped when no dashboard is configured or no browser can start.
func NewUITestContext(t *testing.T, timeout time.Duration) *UITestContext {
	config, err := common.LoadTestConfig()
	require.NoError(t, err, "failed to load test config")
	if !config.HasDashboard() {
		t.Skip("TEST_SERVER_URL not set - skipping live Treeherder test")
	}

	env, err := common.SetupTestEnvironment(t.Name())
	if err != nil {
		t.Fatalf("Failed to setup test environment: %v", err)
	}

	ctx, cancelTimeout := context.WithTimeout(context.Background(), timeout)

	chrome, err := browser.NewChrome(browser.ChromeOptionsFromConfig(env.Config.Browser), env.Logger)
	if err != nil {
		cancelTimeout()
		env.Cleanup()
		t.Skipf("browser unavailable: %v", err)
	}

	session := pages.NewSession(chrome, env.Config, env.Logger)

	utc := &UITestContext{
		T:       t,
		Env:     env,
		Ctx:     ctx,
		Browser: chrome,
		Session: session,
		BaseURL: env.GetBaseURL(),
		cleanup: make([]func(), 0),
	}

	// Cleanup runs in reverse order (LIFO)
	utc.cleanup = append(utc.cleanup, func() { env.Cleanup() })
	utc.cleanup = append(utc.cleanup, func() { cancelTimeout() })
	utc.cleanup = append(utc.cleanup, func() {
		if err := chrome.Close(); err != nil {
			t.Logf("Warning: browser close returned: %v", err)
		}
	})

	utc.Log("Dashboard: %s, random seed: %d (set TH_RANDOM_SEED to replay)", utc.BaseURL, session.Seed)

	return utc
}

// Cleanup releases all resources. Call this with defer.
func (utc *UITestContext) Cleanup() {
	if utc.T.Failed() {
		if err := utc.Screenshot("failure"); err != nil {
			utc.Log("Failed to capture failure screenshot: %v", err)
		}
		utc.Log("=== TEST RESULT: FAIL ===")
	} else {
		utc.Log("=== TEST RESULT: PASS ===")
		utc.Env.PruneScreenshots()
	}

	for i := len(utc.cleanup) - 1; i >= 0; i-- {
		utc.cleanup[i]()
	}
}

// Log writes a message to the test log
func (utc *UITestContext) Log(format string, args ...interface{}) {
	utc.Env.LogTest(utc.T, format, args...)
}

// Screenshot takes a full page screenshot with a sequential number prefix
func (utc *UITestContext) Screenshot(name string) error {
	utc.screenshotNum++
	fullName := fmt.Sprintf("%02d_%s", utc.screenshotNum, name)

	data, err := utc.Browser.Screenshot(utc.Ctx)
	if err != nil {
		return err
	}
	return utc.Env.SaveScreenshot(fullName, data)
}

// StepScreenshot captures a screenshot when per-step capture is enabled
func (utc *UITestContext) StepScreenshot(name string) {
	if !utc.Env.Config.Output.ScreenshotOnStep {
		return
	}
	if err := utc.Screenshot(name); err != nil {
		utc.Log("Screenshot %s failed: %v", name, err)
	}
}

// OpenTreeherder opens the dashboard and waits for it to load
func (utc *UITestContext) OpenTreeherder() *pages.TreeherderPage {
	utc.Log("Opening %s", utc.BaseURL)
	page, err := pages.NewTreeherderPage(utc.Session).Open(utc.Ctx)
	require.NoError(utc.T, err, "Treeherder did not load")
	utc.StepScreenshot("opened")
	return page
}

// RandomIndex returns an index in [lo, hi) from the session's seeded source
func (utc *UITestContext) RandomIndex(lo, hi int) int {
	require.Greater(utc.T, hi, lo, "not enough items to choose from")
	return lo + utc.Session.Rand.IntN(hi-lo)
}

// Eventually fails the test unless cond holds within the session wait timeout
func (utc *UITestContext) Eventually(what string, cond func(ctx context.Context) (bool, error)) {
	err := wait.True(utc.Ctx, utc.Session.Wait.WithMessage(what), cond)
	require.NoError(utc.T, err)
}
