package pages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/common"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

const dashboardHTML = `<html><body>
<div id="th-global-navbar-top">
  <span id="repoLabel">Repos</span>
  <ul class="dropdown-menu">
    <li><input class="dropdown-checkbox" type="checkbox" checked><a class="dropdown-link">mozilla-inbound</a></li>
    <li><input class="dropdown-checkbox" type="checkbox"><a class="dropdown-link">autoland</a></li>
    <li><input class="dropdown-checkbox" type="checkbox"><a class="dropdown-link" href="/#/jobs?repo=mozilla-central">mozilla-central</a></li>
  </ul>
  <span class="navbar-right">
    <span>a</span><span>b</span><span>c</span><span class="filters">Filters</span>
  </span>
  <input id="quick-filter" type="text">
  <span id="quick-filter-clear-button">x</span>
  <span id="unclassified-failure-count">3</span>
</div>
<div id="watched-repo-navbar"><button class="active">mozilla-inbound</button></div>
<div class="th-top-nav-options-panel ng-hide">
  <div class="pull-right"><input type="checkbox" checked><span>a</span><span>b</span><span>Reset</span></div>
  <input id="busted" type="checkbox" checked>
  <input id="exception" type="checkbox">
  <input id="testfailed" type="checkbox" checked>
</div>
<div id="onscreen-shortcuts" style="display: none">Shortcuts</div>

<div class="result-set">
  <div class="result-set-title-left">
    <span><a href="#">Mon Oct 12, 10:01:00</a></span>
    <th-author><span><a href="#">alice@example.com</a></span></th-author>
  </div>
  <table>
    <tr class="platform"><td><span>linux64</span><span>opt</span></td></tr>
    <tr class="platform"><td><span>windows10</span></td></tr>
  </table>
  <span class="job-btn btn-green filter-shown">B</span>
  <span class="job-btn btn-orange filter-shown">M1</span>
  <span class="job-btn btn-ltgray filter-shown">X2</span>
  <span class="job-btn btn-dkgray filter-shown">R3</span>
  <span class="job-btn btn-green">hidden</span>
</div>
<div class="result-set">
  <div class="result-set-title-left">
    <span><a href="#">Mon Oct 12, 09:00:00</a></span>
    <th-author><span><a href="#">bob@example.com</a></span></th-author>
  </div>
  <span class="job-btn btn-red filter-shown">Bd</span>
  <span class="job-btn btn-ltgray filter-shown">X5</span>
</div>
<div class="result-set row">header</div>

<div id="info-panel-content">
  <div id="job-details-panel">
    <div id="job-tabs-navbar"><nav><ul>
      <li><a>Job details</a></li>
      <li class="active"><a>Failure summary</a></li>
    </ul></nav></div>
    <div id="result-status-pane"><div><span>Result:</span><span>testfailed</span></div></div>
    <div id="job-details-pane"><ul><li><span>Job:</span><a>mochitest-1</a></li></ul></div>
  </div>
</div>

<div id="pinboard-panel">
  <div id="pinned-job-list"></div>
  <div class="pinboard-related-bugs-btn"><a><em>123456</em></a></div>
  <div id="pinboard-controls">
    <span class="save-btn-dropdown" aria-expanded="false">Save</span>
    <ul class="dropdown-menu"><li>a</li><li>b</li><li>c</li><li class="clear-all">Clear all</li></ul>
  </div>
</div>
</body></html>`

func newTestSession(t *testing.T, html string) (*Session, *browser.Snapshot) {
	t.Helper()

	snap, err := browser.NewSnapshot(html)
	require.NoError(t, err)

	return &Session{
		Driver:  snap,
		Wait:    wait.Waiter{Timeout: 300 * time.Millisecond, Interval: 10 * time.Millisecond},
		Rand:    NewRand(42),
		Seed:    42,
		Logger:  arbor.NewLogger(),
		BaseURL: "http://treeherder.local/",
	}, snap
}

// keysSent returns the key sequences recorded against elements matching sel.
func keysSent(snap *browser.Snapshot, sel string) []browser.Keys {
	var keys []browser.Keys
	for _, a := range snap.Actions() {
		if a.Kind == browser.ActionKeys && a.Target.Is(sel) {
			keys = append(keys, a.Keys)
		}
	}
	return keys
}

func TestOpenWaitsForPageToLoad(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)

	page, err := NewTreeherderPage(s).Open(ctx)
	require.NoError(t, err)

	url, err := snap.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.BaseURL, url)

	count, err := page.UnclassifiedFailureCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestOpenTimesOutWithoutFailures(t *testing.T) {
	s, _ := newTestSession(t, `<html><body><span id="unclassified-failure-count">0</span></body></html>`)

	_, err := NewTreeherderPage(s).Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, wait.ErrTimeout))
	assert.Contains(t, err.Error(), "unclassified failure count > 0")
}

func TestUnclassifiedFailureCountRejectsText(t *testing.T) {
	s, _ := newTestSession(t, `<html><body><span id="unclassified-failure-count">n/a</span></body></html>`)

	_, err := NewTreeherderPage(s).UnclassifiedFailureCount(context.Background())
	assert.Error(t, err)
}

func TestJobListings(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	sets, err := page.ResultSets(ctx)
	require.NoError(t, err)
	assert.Len(t, sets, 2, "header rows are not result sets")

	jobs, err := page.AllJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 6)

	pending, err := page.AllPendingJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	running, err := page.AllRunningJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, running, 1)

	emails, err := page.AllEmails(ctx)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	name, err := emails[1].Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", name)
}

func TestResultSetRegion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, dashboardHTML)

	sets, err := NewTreeherderPage(s).ResultSets(ctx)
	require.NoError(t, err)
	rs := sets[0]

	datestamp, err := rs.Datestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mon Oct 12, 10:01:00", datestamp)

	author, err := rs.EmailName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", author)

	builds, err := rs.Builds(ctx)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	platform, err := builds[0].PlatformName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "linux64", platform)

	expanded, err := rs.FindExpandedGroupContent(ctx)
	require.NoError(t, err)
	assert.False(t, expanded)
}

func TestPanelVisibility(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	filters, err := page.FilterPanelIsOpened(ctx)
	require.NoError(t, err)
	assert.False(t, filters)

	shortcuts, err := page.KeyboardShortcutsPanelIsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, shortcuts)

	details, err := page.JobDetailsPanelIsOpened(ctx)
	require.NoError(t, err)
	assert.True(t, details)

	busted, err := page.CheckboxBustedIsSelected(ctx)
	require.NoError(t, err)
	assert.True(t, busted)

	exception, err := page.CheckboxExceptionIsSelected(ctx)
	require.NoError(t, err)
	assert.False(t, exception)
}

func TestMissingPanelIsNotOpened(t *testing.T) {
	s, _ := newTestSession(t, `<html><body></body></html>`)

	opened, err := NewTreeherderPage(s).FilterPanelIsOpened(context.Background())
	require.NoError(t, err)
	assert.False(t, opened)
}

func TestShortcutsTargetResultSets(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	require.NoError(t, page.CloseAllPanels(ctx))
	require.NoError(t, page.DisplayKeyboardShortcuts(ctx))
	require.NoError(t, page.ClearFilter(ctx, Keyboard))
	require.NoError(t, page.SelectNextJob(ctx))
	require.NoError(t, page.SelectPreviousJob(ctx))
	require.NoError(t, page.SelectPreviousUnclassifiedFailure(ctx))
	require.NoError(t, page.ShowOnlyUnclassifiedFailures(ctx))

	assert.Equal(t, []browser.Keys{
		browser.Type(browser.Escape),
		browser.Chord(browser.Shift, "?"),
		browser.Chord(browser.Ctrl|browser.Shift, "f"),
		browser.Type(browser.ArrowRight),
		browser.Type(browser.ArrowLeft),
		browser.Type("p"),
		browser.Type("u"),
	}, keysSent(snap, ".result-set"))
}

func TestFilterByPointerTypesIntoQuickFilter(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	term, err := page.SearchTerm(ctx)
	require.NoError(t, err)
	assert.Empty(t, term)

	require.NoError(t, page.FilterBy(ctx, "mozilla", Pointer))

	term, err = page.SearchTerm(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mozilla", term)
}

func TestFilterByKeyboardUsesShortcut(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)

	require.NoError(t, NewTreeherderPage(s).FilterBy(ctx, "mozilla", Keyboard))

	assert.Equal(t, []browser.Keys{browser.Type("fmozilla"), browser.Type(browser.Enter)},
		keysSent(snap, ".result-set"))
	assert.Empty(t, keysSent(snap, "#quick-filter"))
}

func TestClearFilterPointerClicksClearButton(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)

	require.NoError(t, NewTreeherderPage(s).ClearFilter(ctx, Pointer))

	actions := snap.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, browser.ActionClick, actions[0].Kind)
	assert.Equal(t, "quick-filter-clear-button", actions[0].Target.AttrOr("id", ""))
}

func TestRandomChoicesAreReproducible(t *testing.T) {
	ctx := context.Background()

	symbols := make([]string, 0, 2)
	for range 2 {
		s, _ := newTestSession(t, dashboardHTML)
		job, err := NewTreeherderPage(s).SelectRandomJob(ctx)
		require.NoError(t, err)
		symbol, err := job.Symbol(ctx)
		require.NoError(t, err)
		symbols = append(symbols, symbol)
	}

	assert.Equal(t, symbols[0], symbols[1])
}

func TestPickFromEmptyList(t *testing.T) {
	s, _ := newTestSession(t, dashboardHTML)

	_, err := pick[int](s, nil)
	assert.True(t, errors.Is(err, ErrNothingToChoose))
}

func TestPinRandomJobAndClearPinboard(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	snap.OnAction(func(snap *browser.Snapshot, a browser.Action) {
		if a.Kind == browser.ActionClick && a.Modifiers.Has(browser.Ctrl) && a.Target.HasClass("job-btn") {
			snap.Document().Find("#pinned-job-list").
				AppendHtml(`<span class="pinned-job selected-job">` + a.Target.Text() + `</span>`)
		}
	})

	pinboard := page.Pinboard()
	jobs, err := pinboard.Jobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	pinned, err := page.PinRandomJob(ctx)
	require.NoError(t, err)

	jobs, err = pinboard.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	selected, err := pinboard.SelectedJob(ctx)
	require.NoError(t, err)
	want, err := pinned.Symbol(ctx)
	require.NoError(t, err)
	got, err := selected.Symbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, pinboard.Clear(ctx, Keyboard))
	assert.Equal(t, []browser.Keys{browser.Chord(browser.Ctrl|browser.Shift, "u")}, keysSent(snap, "#pinboard-panel"))
}

func TestPinboardClearWithPointerWaitsForMenu(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)

	var cleared bool
	snap.OnAction(func(snap *browser.Snapshot, a browser.Action) {
		switch {
		case a.Target.HasClass("save-btn-dropdown"):
			a.Target.SetAttr("aria-expanded", "true")
		case a.Target.HasClass("clear-all"):
			cleared = true
		}
	})

	require.NoError(t, NewTreeherderPage(s).Pinboard().Clear(ctx, Pointer))
	assert.True(t, cleared)
}

func TestPinboardRelatedBugs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, dashboardHTML)
	pinboard := NewTreeherderPage(s).Pinboard()

	bugs, err := pinboard.RelatedBugs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"123456"}, bugs)

	_, err = pinboard.SelectedJob(ctx)
	assert.True(t, errors.Is(err, ErrNoSelectedJob))

	open, err := pinboard.IsOpen(ctx)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestToggleJobsInProgressIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	snap.OnAction(func(snap *browser.Snapshot, a browser.Action) {
		if a.Kind == browser.ActionKeys && a.Keys == browser.Type("i") {
			snap.Document().Find(".btn-ltgray, .btn-dkgray").RemoveClass("filter-shown")
		}
	})

	require.NoError(t, page.ToggleJobsInProgress(ctx, Hide))

	pending, err := page.AllPendingJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	running, err := page.AllRunningJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, running)

	require.NoError(t, page.ToggleJobsInProgress(ctx, Hide))
	assert.Len(t, keysSent(snap, ".result-set"), 1, "already hidden, nothing more to send")
}

func TestToggleJobsInProgressTimesOut(t *testing.T) {
	s, _ := newTestSession(t, dashboardHTML)

	err := NewTreeherderPage(s).ToggleJobsInProgress(context.Background(), Hide)
	assert.True(t, errors.Is(err, wait.ErrTimeout))
}

func TestSelectRandomRepoWaitsForActiveRepo(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	snap.OnAction(func(snap *browser.Snapshot, a browser.Action) {
		if a.Kind == browser.ActionClick && a.Target.HasClass("dropdown-link") {
			snap.Document().Find("#watched-repo-navbar button.active").SetText(a.Target.Text())
		}
	})

	name, err := page.SelectRandomRepo(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"autoland", "mozilla-central"}, name)

	active, err := page.ActiveWatchedRepo(ctx)
	require.NoError(t, err)
	assert.Equal(t, name, active)
}

func TestJobDetailsRegion(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	details := NewTreeherderPage(s).JobDetails()

	require.NoError(t, details.WaitForRegionToLoad(ctx))

	tab, err := details.ActiveTabName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Failure summary", tab)

	keyword, err := details.JobKeywordName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mochitest-1", keyword)

	status, err := details.JobResultStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "testfailed", status)

	require.NoError(t, details.SelectNextPanelTab(ctx))
	assert.Equal(t, []browser.Keys{browser.Type("t")}, keysSent(snap, "#job-details-panel"))
}

func TestOpenLogviewerSwitchesWindow(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)

	snap.OnAction(func(snap *browser.Snapshot, a browser.Action) {
		if a.Kind == browser.ActionKeys && a.Keys == browser.Type("l") {
			snap.OpenWindow("http://treeherder.local/logviewer.html#/?job_id=1",
				`<html><body><div class="job-header">Job 1</div></body></html>`)
		}
	})

	logviewer, err := NewTreeherderPage(s).JobDetails().OpenLogviewer(ctx, Keyboard)
	require.NoError(t, err)

	visible, err := logviewer.IsJobStatusVisible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	url, err := snap.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Contains(t, url, "logviewer.html")
}

func TestGetNextTenResultsWaitsForCount(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, `<html><body><div class="btn">10</div><div class="result-set">1</div></body></html>`)

	snap.OnAction(func(snap *browser.Snapshot, a browser.Action) {
		for range 19 {
			snap.Document().Find("body").AppendHtml(`<div class="result-set">n</div>`)
		}
	})

	require.NoError(t, NewTreeherderPage(s).GetNextTenResults(ctx))
}

func TestNewSessionUsesConfiguredSeed(t *testing.T) {
	snap, err := browser.NewSnapshot(dashboardHTML)
	require.NoError(t, err)

	cfg := common.NewDefaultConfig()
	cfg.Random.Seed = 7
	cfg.Dashboard.BaseURL = "http://treeherder.local"

	a := NewSession(snap, cfg, arbor.NewLogger())
	b := NewSession(snap, cfg, arbor.NewLogger())

	assert.Equal(t, int64(7), a.Seed)
	assert.Equal(t, a.Rand.IntN(1000), b.Rand.IntN(1000))
	assert.Equal(t, cfg.Wait.Timeout.Std(), a.Wait.Timeout)
}


func TestSelectRandomJobOnTab(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	job, err := page.SelectRandomJobOnTab(ctx, "Failure summary", 3)
	require.NoError(t, err)
	assert.NotNil(t, job)

	clicks := 0
	for _, a := range snap.Actions() {
		if a.Kind == browser.ActionClick {
			clicks++
		}
	}
	assert.Equal(t, 1, clicks)
}

func TestSelectRandomJobOnTabGivesUp(t *testing.T) {
	ctx := context.Background()
	s, snap := newTestSession(t, dashboardHTML)
	page := NewTreeherderPage(s)

	_, err := page.SelectRandomJobOnTab(ctx, "Job details", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no job opened on the "Job details" tab after 3 selections`)
	assert.Contains(t, err.Error(), "Failure summary")

	clicks := 0
	for _, a := range snap.Actions() {
		if a.Kind == browser.ActionClick {
			clicks++
		}
	}
	assert.Equal(t, 3, clicks)
}
