package pages

import (
	"context"
	"errors"
	"strings"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

var (
	pinboardRootLocator        = browser.ID("pinboard-panel")
	pinboardClearAllLocator    = browser.CSS("#pinboard-controls .dropdown-menu li:nth-child(4)")
	pinnedJobsLocator          = browser.ClassName("pinned-job")
	pinboardSaveMenuLocator    = browser.CSS("#pinboard-controls .save-btn-dropdown")
	pinboardRelatedBugsLocator = browser.CSS(".pinboard-related-bugs-btn a em")
)

// ErrNoSelectedJob is returned by SelectedJob when no pinned job is selected.
var ErrNoSelectedJob = errors.New("no pinned job is selected")

// Pinboard is the panel of pinned jobs.
type Pinboard struct {
	Region
}

func (pb *Pinboard) panel(ctx context.Context) (Region, error) {
	el, err := pb.find(ctx, pinboardRootLocator)
	if err != nil {
		return Region{}, err
	}
	return Region{s: pb.s, root: el}, nil
}

// IsOpen reports whether the pinboard panel is visible.
func (pb *Pinboard) IsOpen(ctx context.Context) (bool, error) {
	return pb.displayed(ctx, pinboardRootLocator)
}

// Jobs returns the pinned jobs in pinboard order.
func (pb *Pinboard) Jobs(ctx context.Context) ([]*PinnedJob, error) {
	panel, err := pb.panel(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := panel.findAll(ctx, pinnedJobsLocator)
	if err != nil {
		return nil, err
	}
	jobs := make([]*PinnedJob, 0, len(elements))
	for _, el := range elements {
		jobs = append(jobs, &PinnedJob{el: el})
	}
	return jobs, nil
}

// RelatedBugs returns the bug numbers attached to the pinned jobs.
func (pb *Pinboard) RelatedBugs(ctx context.Context) ([]string, error) {
	panel, err := pb.panel(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := panel.findAll(ctx, pinboardRelatedBugsLocator)
	if err != nil {
		return nil, err
	}
	bugs := make([]string, 0, len(elements))
	for _, el := range elements {
		text, err := elementText(ctx, el)
		if err != nil {
			return nil, err
		}
		bugs = append(bugs, text)
	}
	return bugs, nil
}

// SelectedJob returns the pinned job that is currently selected, or ErrNoSelectedJob.
func (pb *Pinboard) SelectedJob(ctx context.Context) (*PinnedJob, error) {
	jobs, err := pb.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		selected, err := job.IsSelected(ctx)
		if err != nil {
			return nil, err
		}
		if selected {
			return job, nil
		}
	}
	return nil, ErrNoSelectedJob
}

// Clear removes every pinned job, through the save menu or with Ctrl+Shift+u.
func (pb *Pinboard) Clear(ctx context.Context, method InputMethod) error {
	if method == Keyboard {
		return pb.sendKeys(ctx, pinboardRootLocator, browser.Chord(browser.Ctrl|browser.Shift, "u"))
	}

	panel, err := pb.panel(ctx)
	if err != nil {
		return err
	}

	menu, err := panel.find(ctx, pinboardSaveMenuLocator)
	if err != nil {
		return err
	}
	if err := menu.Click(ctx); err != nil {
		return err
	}
	err = wait.True(ctx, pb.s.waiter("pinboard save menu is expanded"), func(ctx context.Context) (bool, error) {
		expanded, err := menu.Attribute(ctx, "aria-expanded")
		return expanded == "true", err
	})
	if err != nil {
		return err
	}
	return panel.click(ctx, pinboardClearAllLocator)
}

// PinnedJob is a job on the pinboard.
type PinnedJob struct {
	el browser.Element
}

// IsSelected reports whether the pinned job carries the selected-job class.
func (j *PinnedJob) IsSelected(ctx context.Context) (bool, error) {
	class, err := j.el.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	return strings.Contains(class, "selected-job"), nil
}

// Symbol returns the job symbol shown on the pinboard.
func (j *PinnedJob) Symbol(ctx context.Context) (string, error) {
	return elementText(ctx, j.el)
}
