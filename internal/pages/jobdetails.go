package pages

import (
	"context"
	"errors"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

var (
	activeTabHeaderLocator = browser.CSS("#job-tabs-navbar > nav > ul > li.active > a")
	jobDetailsPanelLocator = browser.ID("job-details-panel")
	jobKeywordLocator      = browser.CSS("#job-details-pane > ul > li > a:nth-last-child(1)")
	jobResultStatusLocator = browser.CSS("#result-status-pane > div:nth-child(1) > span:nth-child(2)")
	logviewerButtonLocator = browser.ID("logviewer-btn")
	pinJobLocator          = browser.ID("pin-job-btn")
)

// JobDetails is the panel describing the selected job.
type JobDetails struct {
	Region
}

// WaitForRegionToLoad waits for the result status to become visible.
func (d *JobDetails) WaitForRegionToLoad(ctx context.Context) error {
	return d.waitDisplayed(ctx, jobResultStatusLocator)
}

func (d *JobDetails) waitForResultStatus(ctx context.Context) error {
	_, err := wait.Until(ctx, d.s.waiter("job result status"), d.JobResultStatus)
	return err
}

// ActiveTabName returns the label of the selected details tab.
func (d *JobDetails) ActiveTabName(ctx context.Context) (string, error) {
	return d.text(ctx, activeTabHeaderLocator)
}

// JobKeywordName returns the job name link shown in the details pane.
func (d *JobDetails) JobKeywordName(ctx context.Context) (string, error) {
	return d.text(ctx, jobKeywordLocator)
}

// JobResultStatus returns the result of the selected job, such as "testfailed".
func (d *JobDetails) JobResultStatus(ctx context.Context) (string, error) {
	return d.text(ctx, jobResultStatusLocator)
}

// FilterByJobKeyword filters the dashboard by the selected job name.
func (d *JobDetails) FilterByJobKeyword(ctx context.Context) error {
	return d.click(ctx, jobKeywordLocator)
}

// OpenLogviewer opens the log of the selected job with l, or with the panel
// button when method is Pointer, and switches to the window it opens.
func (d *JobDetails) OpenLogviewer(ctx context.Context, method InputMethod) (*LogviewerPage, error) {
	var err error
	if method == Keyboard {
		err = d.sendKeys(ctx, jobDetailsPanelLocator, browser.Type("l"))
	} else {
		err = d.click(ctx, logviewerButtonLocator)
	}
	if err != nil {
		return nil, err
	}

	err = wait.True(ctx, d.s.waiter("log viewer window"), func(ctx context.Context) (bool, error) {
		err := d.s.Driver.SwitchToNewestWindow(ctx)
		if errors.Is(err, browser.ErrNoNewWindow) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return nil, err
	}

	logviewer := NewLogviewerPage(d.s)
	if err := logviewer.WaitForPageToLoad(ctx); err != nil {
		return nil, err
	}
	return logviewer, nil
}

// PinJob pins the selected job with the panel button.
func (d *JobDetails) PinJob(ctx context.Context) error {
	if err := d.waitDisplayed(ctx, pinJobLocator); err != nil {
		return err
	}
	return d.click(ctx, pinJobLocator)
}

// SelectNextPanelTab moves to the next details tab with t.
func (d *JobDetails) SelectNextPanelTab(ctx context.Context) error {
	return d.sendKeys(ctx, jobDetailsPanelLocator, browser.Type("t"))
}
