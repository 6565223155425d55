package pages

import (
	"context"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
)

var (
	datestampLocator            = browser.CSS(".result-set-title-left > span a")
	dropdownToggleLocator       = browser.ClassName("dropdown-toggle")
	emailLocator                = browser.CSS(".result-set-title-left > th-author > span > a")
	expandedGroupContentLocator = browser.CSS(`.group-job-list[style="display: inline;"]`)
	groupContentLocator         = browser.CSS("span.group-count-list .btn")
	jobsLocator                 = browser.CSS(".job-btn.filter-shown")
	jobsRunningLocator          = browser.CSS(".job-btn.btn-dkgray.filter-shown")
	jobsPendingLocator          = browser.CSS(".job-btn.btn-ltgray.filter-shown")
	pinAllJobsLocator           = browser.ClassName("pin-all-jobs-btn")
	platformLocator             = browser.ClassName("platform")
	setBottomOfRangeLocator     = browser.CSS(".open ul > li:nth-child(8) > a")
	setTopOfRangeLocator        = browser.CSS(".open ul > li:nth-child(7) > a")
	buildPlatformNameLocator    = browser.CSS("td:nth-child(1) > span:nth-child(1)")
)

// ResultSet is one push and the jobs it triggered.
type ResultSet struct {
	Region
	page *TreeherderPage
}

// Builds returns the platform rows of the result set.
func (rs *ResultSet) Builds(ctx context.Context) ([]*Build, error) {
	elements, err := rs.findAll(ctx, platformLocator)
	if err != nil {
		return nil, err
	}
	builds := make([]*Build, 0, len(elements))
	for _, el := range elements {
		builds = append(builds, &Build{Region: Region{s: rs.s, root: el}})
	}
	return builds, nil
}

// Datestamp returns the push date link text.
func (rs *ResultSet) Datestamp(ctx context.Context) (string, error) {
	return rs.text(ctx, datestampLocator)
}

// Emails returns the author links of the push.
func (rs *ResultSet) Emails(ctx context.Context) ([]*Email, error) {
	elements, err := rs.findAll(ctx, emailLocator)
	if err != nil {
		return nil, err
	}
	emails := make([]*Email, 0, len(elements))
	for _, el := range elements {
		emails = append(emails, &Email{el: el})
	}
	return emails, nil
}

// EmailName returns the first author name of the push.
func (rs *ResultSet) EmailName(ctx context.Context) (string, error) {
	return rs.text(ctx, emailLocator)
}

// FindExpandedGroupContent reports whether a job group is expanded.
func (rs *ResultSet) FindExpandedGroupContent(ctx context.Context) (bool, error) {
	return rs.displayed(ctx, expandedGroupContentLocator)
}

func (rs *ResultSet) jobs(ctx context.Context, sel browser.Selector) ([]*Job, error) {
	elements, err := rs.findAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(elements))
	for _, el := range elements {
		jobs = append(jobs, &Job{el: el, page: rs.page})
	}
	return jobs, nil
}

// Jobs returns the jobs shown by the current filters.
func (rs *ResultSet) Jobs(ctx context.Context) ([]*Job, error) {
	return rs.jobs(ctx, jobsLocator)
}

// PendingJobs returns the shown jobs that have not started.
func (rs *ResultSet) PendingJobs(ctx context.Context) ([]*Job, error) {
	return rs.jobs(ctx, jobsPendingLocator)
}

// RunningJobs returns the shown jobs that are still running.
func (rs *ResultSet) RunningJobs(ctx context.Context) ([]*Job, error) {
	return rs.jobs(ctx, jobsRunningLocator)
}

// ExpandGroupCount expands the first collapsed job group.
func (rs *ResultSet) ExpandGroupCount(ctx context.Context) error {
	if err := rs.click(ctx, groupContentLocator); err != nil {
		return err
	}
	return rs.waitDisplayed(ctx, expandedGroupContentLocator)
}

// PinAllJobs pins every job of the push.
func (rs *ResultSet) PinAllJobs(ctx context.Context) error {
	return rs.click(ctx, pinAllJobsLocator)
}

// SetAsBottomOfRange makes this push the oldest one displayed.
func (rs *ResultSet) SetAsBottomOfRange(ctx context.Context) error {
	if err := rs.click(ctx, dropdownToggleLocator); err != nil {
		return err
	}
	return rs.click(ctx, setBottomOfRangeLocator)
}

// SetAsTopOfRange makes this push the newest one displayed.
func (rs *ResultSet) SetAsTopOfRange(ctx context.Context) error {
	if err := rs.click(ctx, dropdownToggleLocator); err != nil {
		return err
	}
	return rs.click(ctx, setTopOfRangeLocator)
}

// View opens the push on its own.
func (rs *ResultSet) View(ctx context.Context) error {
	return rs.click(ctx, datestampLocator)
}

// Build is a platform row of a result set.
type Build struct {
	Region
}

// PlatformName returns the platform label of the row.
func (b *Build) PlatformName(ctx context.Context) (string, error) {
	return b.text(ctx, buildPlatformNameLocator)
}

// Email is the author link of a push.
type Email struct {
	el browser.Element
}

// Name returns the author name.
func (e *Email) Name(ctx context.Context) (string, error) {
	return elementText(ctx, e.el)
}

// Click filters the dashboard by the author.
func (e *Email) Click(ctx context.Context) error {
	return e.el.Click(ctx)
}

// Job is a job button.
type Job struct {
	el   browser.Element
	page *TreeherderPage
}

// Symbol returns the job symbol, e.g. "M(1)".
func (j *Job) Symbol(ctx context.Context) (string, error) {
	return elementText(ctx, j.el)
}

// Click selects the job and waits for its result status to show.
func (j *Job) Click(ctx context.Context) error {
	if err := j.el.Click(ctx); err != nil {
		return err
	}
	return j.page.JobDetails().waitForResultStatus(ctx)
}

