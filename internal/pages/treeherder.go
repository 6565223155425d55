package pages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

var (
	activeWatchedRepoLocator         = browser.CSS("#watched-repo-navbar button.active")
	clearFilterLocator               = browser.ID("quick-filter-clear-button")
	closeTheJobPanelLocator          = browser.CSS(".info-panel-navbar-controls > li:nth-child(2)")
	filterPanelAllFailuresLocator    = browser.CSS(".pull-right input")
	filterPanelBodyLocator           = browser.CSS(".th-top-nav-options-panel")
	filterPanelBustedLocator         = browser.ID("busted")
	filterPanelExceptionLocator      = browser.ID("exception")
	filterPanelLocator               = browser.CSS("span.navbar-right > span:nth-child(4)")
	filterPanelResetLocator          = browser.CSS(".pull-right span:nth-child(3)")
	filterPanelTestfailedLocator     = browser.ID("testfailed")
	infoPanelContentLocator          = browser.ID("info-panel-content")
	keyboardShortcutsLocator         = browser.CSS("#onscreen-shortcuts")
	mozillaCentralRepoLocator        = browser.CSS(`#th-global-navbar-top a[href*="mozilla-central"]`)
	nextTenLocator                   = browser.CSS("div.btn:nth-child(1)")
	nextTwentyLocator                = browser.CSS("div.btn:nth-child(2)")
	nextFiftyLocator                 = browser.CSS("div.btn:nth-child(3)")
	quickFilterLocator               = browser.ID("quick-filter")
	relatedBugInputLocator           = browser.ID("related-bug-input")
	reposMenuLocator                 = browser.ID("repoLabel")
	resultSetsLocator                = browser.CSS(".result-set:not(.row)")
	uncheckedReposLinksLocator       = browser.CSS("#repoLabel + .dropdown-menu .dropdown-checkbox:not([checked]) + .dropdown-link")
	unclassifiedFailureCountLocator  = browser.ID("unclassified-failure-count")
	unclassifiedFailureFilterLocator = browser.CSS(".btn-unclassified-failures")
)

// TreeherderPage is the main job dashboard.
type TreeherderPage struct {
	Region
}

// NewTreeherderPage binds the dashboard to a session.
func NewTreeherderPage(s *Session) *TreeherderPage {
	return &TreeherderPage{Region: Region{s: s, root: s.Driver}}
}

// Open navigates to the dashboard and waits for it to load.
func (p *TreeherderPage) Open(ctx context.Context) (*TreeherderPage, error) {
	if err := p.s.Driver.Navigate(ctx, p.s.BaseURL); err != nil {
		return nil, err
	}
	if err := p.WaitForPageToLoad(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// WaitForPageToLoad waits until the unclassified failure counter is positive.
func (p *TreeherderPage) WaitForPageToLoad(ctx context.Context) error {
	return wait.True(ctx, p.s.waiter("unclassified failure count > 0"), func(ctx context.Context) (bool, error) {
		count, err := p.UnclassifiedFailureCount(ctx)
		return count > 0, err
	})
}

// ActiveWatchedRepo returns the name of the repo being viewed.
func (p *TreeherderPage) ActiveWatchedRepo(ctx context.Context) (string, error) {
	return p.text(ctx, activeWatchedRepoLocator)
}

// ResultSets returns the pushes currently listed.
func (p *TreeherderPage) ResultSets(ctx context.Context) ([]*ResultSet, error) {
	elements, err := p.findAll(ctx, resultSetsLocator)
	if err != nil {
		return nil, err
	}
	sets := make([]*ResultSet, 0, len(elements))
	for _, el := range elements {
		sets = append(sets, &ResultSet{Region: Region{s: p.s, root: el}, page: p})
	}
	return sets, nil
}

// collect flattens a per result set listing across every result set.
func collect[T any](ctx context.Context, p *TreeherderPage, list func(*ResultSet, context.Context) ([]T, error)) ([]T, error) {
	sets, err := p.ResultSets(ctx)
	if err != nil {
		return nil, err
	}
	var all []T
	for _, rs := range sets {
		items, err := list(rs, ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// AllEmails returns the author links of every listed push.
func (p *TreeherderPage) AllEmails(ctx context.Context) ([]*Email, error) {
	return collect(ctx, p, (*ResultSet).Emails)
}

// AllJobs returns the shown jobs of every listed push.
func (p *TreeherderPage) AllJobs(ctx context.Context) ([]*Job, error) {
	return collect(ctx, p, (*ResultSet).Jobs)
}

// AllPendingJobs returns the pending jobs of every listed push.
func (p *TreeherderPage) AllPendingJobs(ctx context.Context) ([]*Job, error) {
	return collect(ctx, p, (*ResultSet).PendingJobs)
}

// AllRunningJobs returns the running jobs of every listed push.
func (p *TreeherderPage) AllRunningJobs(ctx context.Context) ([]*Job, error) {
	return collect(ctx, p, (*ResultSet).RunningJobs)
}

// CheckboxBustedIsSelected reports whether busted results are shown.
func (p *TreeherderPage) CheckboxBustedIsSelected(ctx context.Context) (bool, error) {
	return p.selected(ctx, filterPanelBustedLocator)
}

// CheckboxExceptionIsSelected reports whether exception results are shown.
func (p *TreeherderPage) CheckboxExceptionIsSelected(ctx context.Context) (bool, error) {
	return p.selected(ctx, filterPanelExceptionLocator)
}

// CheckboxTestfailedIsSelected reports whether testfailed results are shown.
func (p *TreeherderPage) CheckboxTestfailedIsSelected(ctx context.Context) (bool, error) {
	return p.selected(ctx, filterPanelTestfailedLocator)
}

// FilterPanelIsOpened reports whether the filters panel is visible.
func (p *TreeherderPage) FilterPanelIsOpened(ctx context.Context) (bool, error) {
	return p.displayed(ctx, filterPanelBodyLocator)
}

// SearchTerm is the current content of the quick filter box.
func (p *TreeherderPage) SearchTerm(ctx context.Context) (string, error) {
	el, err := p.find(ctx, quickFilterLocator)
	if err != nil {
		return "", err
	}
	return el.Value(ctx)
}

// JobDetailsPanelIsOpened reports whether the job details panel is visible.
func (p *TreeherderPage) JobDetailsPanelIsOpened(ctx context.Context) (bool, error) {
	return p.displayed(ctx, infoPanelContentLocator)
}

// KeyboardShortcutsPanelIsDisplayed reports whether the shortcut help is visible.
func (p *TreeherderPage) KeyboardShortcutsPanelIsDisplayed(ctx context.Context) (bool, error) {
	return p.displayed(ctx, keyboardShortcutsLocator)
}

// JobDetails returns the job details panel.
func (p *TreeherderPage) JobDetails() *JobDetails {
	return &JobDetails{Region: Region{s: p.s, root: p.s.Driver}}
}

// Pinboard returns the pinboard panel.
func (p *TreeherderPage) Pinboard() *Pinboard {
	return &Pinboard{Region: Region{s: p.s, root: p.s.Driver}}
}

// RandomEmailName returns the author name of a random push.
func (p *TreeherderPage) RandomEmailName(ctx context.Context) (string, error) {
	emails, err := p.AllEmails(ctx)
	if err != nil {
		return "", err
	}
	email, err := pick(p.s, emails)
	if err != nil {
		return "", fmt.Errorf("no author emails on page: %w", err)
	}
	return email.Name(ctx)
}

// UncheckedRepos lists the repo menu links that are not yet watched.
func (p *TreeherderPage) UncheckedRepos(ctx context.Context) ([]browser.Element, error) {
	return p.findAll(ctx, uncheckedReposLinksLocator)
}

// UnclassifiedFailureCount returns the number shown on the unclassified failures button.
func (p *TreeherderPage) UnclassifiedFailureCount(ctx context.Context) (int, error) {
	text, err := p.text(ctx, unclassifiedFailureCountLocator)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("unclassified failure count %q is not a number: %w", text, err)
	}
	return count, nil
}

// shortcut sends a keyboard shortcut to the result set list.
func (p *TreeherderPage) shortcut(ctx context.Context, keys ...browser.Keys) error {
	p.s.Logger.Debug().Str("keys", fmt.Sprint(keys)).Msg("Sending shortcut")
	return p.sendKeys(ctx, resultSetsLocator, keys...)
}

// ClearFilter empties the quick filter by clicking its clear button or with
// Ctrl+Shift+f.
func (p *TreeherderPage) ClearFilter(ctx context.Context, method InputMethod) error {
	if method == Keyboard {
		return p.shortcut(ctx, browser.Chord(browser.Ctrl|browser.Shift, "f"))
	}
	return p.click(ctx, clearFilterLocator)
}

// ClickOnFiltersPanel toggles the filters panel.
func (p *TreeherderPage) ClickOnFiltersPanel(ctx context.Context) error {
	return p.click(ctx, filterPanelLocator)
}

// ClickOnActiveWatchedRepo clicks the repo being viewed.
func (p *TreeherderPage) ClickOnActiveWatchedRepo(ctx context.Context) error {
	return p.click(ctx, activeWatchedRepoLocator)
}

// CloseTheJobPanel closes the job details panel with its close button.
func (p *TreeherderPage) CloseTheJobPanel(ctx context.Context) error {
	return p.click(ctx, closeTheJobPanelLocator)
}

// CloseAllPanels presses Escape.
func (p *TreeherderPage) CloseAllPanels(ctx context.Context) error {
	return p.shortcut(ctx, browser.Type(browser.Escape))
}

// The failure checkbox toggles below require the filters panel to be open.

// DeselectAllFailures clears the "all failures" checkbox.
func (p *TreeherderPage) DeselectAllFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelAllFailuresLocator)
}

// SelectAllFailures ticks the "all failures" checkbox.
func (p *TreeherderPage) SelectAllFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelAllFailuresLocator)
}

// DeselectBustedFailures hides busted results.
func (p *TreeherderPage) DeselectBustedFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelBustedLocator)
}

// SelectBustedFailures shows busted results.
func (p *TreeherderPage) SelectBustedFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelBustedLocator)
}

// DeselectExceptionFailures hides exception results.
func (p *TreeherderPage) DeselectExceptionFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelExceptionLocator)
}

// SelectExceptionFailures shows exception results.
func (p *TreeherderPage) SelectExceptionFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelExceptionLocator)
}

// DeselectTestfailedFailures hides testfailed results.
func (p *TreeherderPage) DeselectTestfailedFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelTestfailedLocator)
}

// SelectTestfailedFailures shows testfailed results.
func (p *TreeherderPage) SelectTestfailedFailures(ctx context.Context) error {
	return p.click(ctx, filterPanelTestfailedLocator)
}

// ResetFilters restores the default result filters.
func (p *TreeherderPage) ResetFilters(ctx context.Context) error {
	return p.click(ctx, filterPanelResetLocator)
}

// DisplayKeyboardShortcuts presses Shift+?.
func (p *TreeherderPage) DisplayKeyboardShortcuts(ctx context.Context) error {
	return p.shortcut(ctx, browser.Chord(browser.Shift, "?"))
}

// FilterBy enters term in the quick filter, either by typing into the box or
// by focusing it with the f shortcut, and waits for result sets to render.
func (p *TreeherderPage) FilterBy(ctx context.Context, term string, method InputMethod) error {
	var err error
	if method == Keyboard {
		err = p.shortcut(ctx, browser.Type("f"+term), browser.Type(browser.Enter))
	} else {
		err = p.sendKeys(ctx, quickFilterLocator, browser.Type(term), browser.Type(browser.Enter))
	}
	if err != nil {
		return err
	}

	return wait.True(ctx, p.s.waiter("result sets after filtering by "+term), func(ctx context.Context) (bool, error) {
		sets, err := p.ResultSets(ctx)
		return len(sets) > 0, err
	})
}

// FilterUnclassifiedJobs toggles the unclassified failures filter button.
func (p *TreeherderPage) FilterUnclassifiedJobs(ctx context.Context) error {
	return p.click(ctx, unclassifiedFailureFilterLocator)
}

// getMoreResults clicks a paging button and waits for want result sets.
func (p *TreeherderPage) getMoreResults(ctx context.Context, button browser.Selector, want int) error {
	if err := p.click(ctx, button); err != nil {
		return err
	}
	return wait.True(ctx, p.s.waiter(fmt.Sprintf("%d result sets", want)), func(ctx context.Context) (bool, error) {
		sets, err := p.ResultSets(ctx)
		return len(sets) == want, err
	})
}

// GetNextTenResults loads ten more pushes and waits for 20 to be listed.
func (p *TreeherderPage) GetNextTenResults(ctx context.Context) error {
	return p.getMoreResults(ctx, nextTenLocator, 20)
}

// GetNextTwentyResults loads twenty more pushes and waits for 30 to be listed.
func (p *TreeherderPage) GetNextTwentyResults(ctx context.Context) error {
	return p.getMoreResults(ctx, nextTwentyLocator, 30)
}

// GetNextFiftyResults loads fifty more pushes and waits for 60 to be listed.
func (p *TreeherderPage) GetNextFiftyResults(ctx context.Context) error {
	return p.getMoreResults(ctx, nextFiftyLocator, 60)
}

// OpenNextUnclassifiedFailure presses n and waits for the job details panel
// to show a result status.
func (p *TreeherderPage) OpenNextUnclassifiedFailure(ctx context.Context) error {
	if err := p.waitDisplayed(ctx, resultSetsLocator); err != nil {
		return err
	}
	if err := p.shortcut(ctx, browser.Type("n")); err != nil {
		return err
	}
	return p.JobDetails().waitForResultStatus(ctx)
}

// OpenReposMenu opens the repository menu.
func (p *TreeherderPage) OpenReposMenu(ctx context.Context) error {
	return p.click(ctx, reposMenuLocator)
}

// PinJobAndEnterBugNumber pins the selected job with b and types a related
// bug number.
func (p *TreeherderPage) PinJobAndEnterBugNumber(ctx context.Context, bugNumber string) error {
	if err := p.shortcut(ctx, browser.Type("b")); err != nil {
		return err
	}
	return p.sendKeys(ctx, relatedBugInputLocator, browser.Type(bugNumber), browser.Type(browser.Enter))
}

// PinRandomJob Ctrl+clicks a random job and waits for the pinboard to grow.
func (p *TreeherderPage) PinRandomJob(ctx context.Context) (*Job, error) {
	jobs, err := p.AllJobs(ctx)
	if err != nil {
		return nil, err
	}
	job, err := pick(p.s, jobs)
	if err != nil {
		return nil, fmt.Errorf("no jobs to pin: %w", err)
	}

	pinboard := p.Pinboard()
	before, err := pinboard.Jobs(ctx)
	if err != nil {
		return nil, err
	}

	if err := job.el.ClickWith(ctx, browser.Ctrl); err != nil {
		return nil, fmt.Errorf("failed to pin job: %w", err)
	}

	err = wait.True(ctx, p.s.waiter("pinboard to grow"), func(ctx context.Context) (bool, error) {
		pinned, err := pinboard.Jobs(ctx)
		return len(pinned) > len(before), err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// PinUsingSpacebar pins the selected job and waits for the pinboard to open.
func (p *TreeherderPage) PinUsingSpacebar(ctx context.Context) error {
	if err := p.waitDisplayed(ctx, resultSetsLocator); err != nil {
		return err
	}
	if err := p.shortcut(ctx, browser.Type(browser.Space)); err != nil {
		return err
	}
	return wait.True(ctx, p.s.waiter("pinboard is open"), p.Pinboard().IsOpen)
}

// SelectMozillaCentralRepo switches to mozilla-central and waits for it to load.
func (p *TreeherderPage) SelectMozillaCentralRepo(ctx context.Context) error {
	if err := p.OpenReposMenu(ctx); err != nil {
		return err
	}
	if err := p.click(ctx, mozillaCentralRepoLocator); err != nil {
		return err
	}
	return p.WaitForPageToLoad(ctx)
}

// SelectNextJob moves the selection to the next job with the right arrow.
func (p *TreeherderPage) SelectNextJob(ctx context.Context) error {
	return p.shortcut(ctx, browser.Type(browser.ArrowRight))
}

// SelectPreviousJob moves the selection to the previous job with the left arrow.
func (p *TreeherderPage) SelectPreviousJob(ctx context.Context) error {
	return p.shortcut(ctx, browser.Type(browser.ArrowLeft))
}

// SelectPreviousUnclassifiedFailure selects the previous unclassified failure with p.
func (p *TreeherderPage) SelectPreviousUnclassifiedFailure(ctx context.Context) error {
	return p.shortcut(ctx, browser.Type("p"))
}

// SelectRandomEmail filters by the author of a random push.
func (p *TreeherderPage) SelectRandomEmail(ctx context.Context) error {
	emails, err := p.AllEmails(ctx)
	if err != nil {
		return err
	}
	email, err := pick(p.s, emails)
	if err != nil {
		return fmt.Errorf("no author emails on page: %w", err)
	}
	return email.Click(ctx)
}

// SelectRandomJob clicks a random job and returns it once its details load.
func (p *TreeherderPage) SelectRandomJob(ctx context.Context) (*Job, error) {
	jobs, err := p.AllJobs(ctx)
	if err != nil {
		return nil, err
	}
	job, err := pick(p.s, jobs)
	if err != nil {
		return nil, fmt.Errorf("no jobs on page: %w", err)
	}
	return job, job.Click(ctx)
}

// SelectRandomJobOnTab selects random jobs until the job details panel opens
// on tab, giving up after attempts selections.
func (p *TreeherderPage) SelectRandomJobOnTab(ctx context.Context, tab string, attempts int) (*Job, error) {
	details := p.JobDetails()
	seen := make([]string, 0, attempts)
	for i := 0; i < attempts; i++ {
		job, err := p.SelectRandomJob(ctx)
		if err != nil {
			return nil, err
		}
		active, err := details.ActiveTabName(ctx)
		if err != nil {
			return nil, err
		}
		if active == tab {
			return job, nil
		}
		seen = append(seen, active)
	}
	return nil, fmt.Errorf("no job opened on the %q tab after %d selections (saw %v)", tab, attempts, seen)
}

// SelectRandomRepo watches a random unwatched repo and waits until it is the
// active one. The chosen repo name is returned.
func (p *TreeherderPage) SelectRandomRepo(ctx context.Context) (string, error) {
	if err := p.OpenReposMenu(ctx); err != nil {
		return "", err
	}
	repos, err := p.UncheckedRepos(ctx)
	if err != nil {
		return "", err
	}
	repo, err := pick(p.s, repos)
	if err != nil {
		return "", fmt.Errorf("no unwatched repos: %w", err)
	}
	name, err := elementText(ctx, repo)
	if err != nil {
		return "", err
	}
	if err := repo.Click(ctx); err != nil {
		return "", fmt.Errorf("failed to select repo %s: %w", name, err)
	}

	err = wait.True(ctx, p.s.waiter("active watched repo "+name), func(ctx context.Context) (bool, error) {
		active, err := p.ActiveWatchedRepo(ctx)
		return active == name, err
	})
	return name, err
}

// ShowOnlyUnclassifiedFailures toggles the unclassified-only view with u.
func (p *TreeherderPage) ShowOnlyUnclassifiedFailures(ctx context.Context) error {
	return p.shortcut(ctx, browser.Type("u"))
}

// inProgressCount counts pending and running jobs currently shown.
func (p *TreeherderPage) inProgressCount(ctx context.Context) (int, error) {
	pending, err := p.AllPendingJobs(ctx)
	if err != nil {
		return 0, err
	}
	running, err := p.AllRunningJobs(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending) + len(running), nil
}

// ToggleJobsInProgress shows or hides pending and running jobs with the i
// shortcut. Nothing is sent when the page is already in the requested state.
func (p *TreeherderPage) ToggleJobsInProgress(ctx context.Context, option InProgressOption) error {
	reached := func(ctx context.Context) (bool, error) {
		n, err := p.inProgressCount(ctx)
		if option == Hide {
			return n == 0, err
		}
		return n > 0, err
	}

	done, err := reached(ctx)
	if err != nil || done {
		return err
	}
	if err := p.shortcut(ctx, browser.Type("i")); err != nil {
		return err
	}
	return wait.True(ctx, p.s.waiter("jobs in progress to "+option.String()), reached)
}
