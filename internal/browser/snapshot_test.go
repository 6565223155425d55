package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<html><body>
<div id="panel" class="panel">
  <span class="title">  Job
     details </span>
  <input id="filter" type="text" value="ab">
  <input id="in-progress" type="checkbox" checked>
  <div class="ng-hide"><a id="inner" class="link">Hidden link</a></div>
  <a id="styled" style="display: none">Styled</a>
  <a id="visible" class="link">Visible link</a>
</div>
</body></html>`

func newFixture(t *testing.T) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(fixture)
	require.NoError(t, err)
	return s
}

func TestSnapshotFindAndText(t *testing.T) {
	ctx := context.Background()
	s := newFixture(t)

	panel, err := s.FindElement(ctx, ID("panel"))
	require.NoError(t, err)

	title, err := panel.FindElement(ctx, ClassName("title"))
	require.NoError(t, err)
	text, err := title.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Job details", text)

	links, err := panel.FindElements(ctx, ClassName("link"))
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestSnapshotMissingElement(t *testing.T) {
	ctx := context.Background()
	s := newFixture(t)

	_, err := s.FindElement(ctx, ID("nope"))
	assert.True(t, errors.Is(err, ErrNoSuchElement))
	assert.Contains(t, err.Error(), "id=nope")

	none, err := s.FindElements(ctx, CSS(".nope"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSnapshotVisibility(t *testing.T) {
	ctx := context.Background()
	s := newFixture(t)

	for id, want := range map[string]bool{"inner": false, "styled": false, "visible": true} {
		el, err := s.FindElement(ctx, ID(id))
		require.NoError(t, err)
		shown, err := el.IsDisplayed(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, shown, id)
	}
}

func TestSnapshotSelectedAndValue(t *testing.T) {
	ctx := context.Background()
	s := newFixture(t)

	box, err := s.FindElement(ctx, ID("in-progress"))
	require.NoError(t, err)
	selected, err := box.IsSelected(ctx)
	require.NoError(t, err)
	assert.True(t, selected)

	input, err := s.FindElement(ctx, ID("filter"))
	require.NoError(t, err)
	require.NoError(t, input.SendKeys(ctx, Type("cd"), Type(Enter)))
	value, err := input.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcd", value)
}

func TestSnapshotRecordsActionsAndReacts(t *testing.T) {
	ctx := context.Background()
	s := newFixture(t)

	s.OnAction(func(s *Snapshot, a Action) {
		if a.Kind == ActionClick && a.Target.AttrOr("id", "") == "visible" {
			require.NoError(t, s.SetHTML(`<html><body><p id="after">Done</p></body></html>`))
		}
	})

	link, err := s.FindElement(ctx, ID("visible"))
	require.NoError(t, err)
	require.NoError(t, link.ClickWith(ctx, Ctrl))

	actions := s.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, ActionClick, actions[0].Kind)
	assert.Equal(t, Ctrl, actions[0].Modifiers)

	_, err = link.Text(ctx)
	assert.True(t, errors.Is(err, ErrStaleElement))

	_, err = s.FindElement(ctx, ID("after"))
	assert.NoError(t, err)
}

func TestSnapshotSwitchWindow(t *testing.T) {
	ctx := context.Background()
	s := newFixture(t)

	assert.True(t, errors.Is(s.SwitchToNewestWindow(ctx), ErrNoNewWindow))

	s.OpenWindow("http://localhost/logviewer.html#/?job_id=1", `<html><body><div class="run-data">log</div></body></html>`)
	require.NoError(t, s.SwitchToNewestWindow(ctx))

	url, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Contains(t, url, "logviewer.html")

	_, err = s.FindElement(ctx, ClassName("run-data"))
	assert.NoError(t, err)
}
