package pages

import (
	"context"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

var jobHeaderLocator = browser.CSS("div.job-header")

// LogviewerPage is the standalone log viewer opened from a job.
type LogviewerPage struct {
	Region
}

// NewLogviewerPage binds the log viewer to a session.
func NewLogviewerPage(s *Session) *LogviewerPage {
	return &LogviewerPage{Region: Region{s: s, root: s.Driver}}
}

// WaitForPageToLoad waits for the job header to render.
func (l *LogviewerPage) WaitForPageToLoad(ctx context.Context) error {
	return wait.True(ctx, l.s.waiter("log viewer job header"), l.IsJobStatusVisible)
}

// IsJobStatusVisible reports whether the job header is shown.
func (l *LogviewerPage) IsJobStatusVisible(ctx context.Context) (bool, error) {
	return l.displayed(ctx, jobHeaderLocator)
}
