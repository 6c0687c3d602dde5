// internal/organism/tree.go
package organism

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/browser"
)

// ListFileGroups returns the labels of the top level file groups.
func (s *Session) ListFileGroups(ctx context.Context) ([]string, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if err := s.refresh(ctx); err != nil {
		return nil, s.fail(err)
	}
	if _, ok := s.loc.TreeRoot.First(s.page); !ok {
		s.logger.Warn("No file tree found in page.")
		return nil, &NoFileTreeError{Organism: s.code}
	}
	var groups []string
	for _, el := range s.loc.GroupLabels.In(s.page) {
		groups = append(groups, el.Text())
	}
	return groups, nil
}

// ListFiles opens group and returns the labels of its files.
func (s *Session) ListFiles(ctx context.Context, group string) ([]string, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	container, err := s.openGroup(ctx, group)
	if err != nil {
		return nil, s.fail(err)
	}
	var files []string
	for _, el := range s.loc.FileLabels.Within(container) {
		files = append(files, el.Text())
	}
	return files, nil
}

// groupContainer resolves the element holding group's files in the current page.
func (s *Session) groupContainer(group string) (browser.Element, error) {
	container, ok := s.loc.GroupContainer.First(s.page, group)
	if !ok {
		return browser.Element{}, &NoSuchGroupError{Organism: s.code, Group: group}
	}
	return container, nil
}

// openGroup makes group's file list visible and returns its container, resolved
// from the current page. An already open group costs no click.
func (s *Session) openGroup(ctx context.Context, group string) (browser.Element, error) {
	if err := s.refresh(ctx); err != nil {
		return browser.Element{}, err
	}
	container, err := s.groupContainer(group)
	if err != nil {
		s.logger.Debug("File group not found.", zap.String("group", group))
		return browser.Element{}, err
	}
	if container.Visible() {
		s.logger.Debug("File group already open.", zap.String("group", group))
		return container, nil
	}

	s.logger.Info("Opening file group.", zap.String("group", group))
	budget := s.opts.OpenRetryBudget
	for attempt := 1; ; attempt++ {
		container, err = s.openClosedGroup(ctx, group)
		if err == nil {
			s.logger.Info("Opened file group.", zap.String("group", group), zap.Int("attempt", attempt))
			return container, nil
		}
		var terr *TimeoutError
		if !errors.As(err, &terr) && !errors.Is(err, ErrNoSuchGroup) {
			return browser.Element{}, err
		}
		if attempt >= budget {
			return browser.Element{}, &openGroupError{Group: group, Attempts: attempt, Err: err}
		}
		s.logger.Warn("Failed to open file group within timeout, retrying.",
			zap.String("group", group),
			zap.Int("attempt", attempt+1),
			zap.Int("budget", budget))
	}
}

// openClosedGroup clicks the group toggle once and polls until the file list
// shows, re-resolving the group on every check since opening re-renders it.
func (s *Session) openClosedGroup(ctx context.Context, group string) (browser.Element, error) {
	if err := s.refresh(ctx); err != nil {
		return browser.Element{}, err
	}
	// A previous attempt's click may have landed late.
	if container, err := s.groupContainer(group); err == nil && container.Visible() {
		return container, nil
	}
	toggle, ok := s.loc.GroupToggle.First(s.page, group)
	if !ok {
		return browser.Element{}, &NoSuchGroupError{Organism: s.code, Group: group}
	}
	if err := s.click(ctx, toggle, "file group toggle"); err != nil {
		return browser.Element{}, err
	}

	var container browser.Element
	what := fmt.Sprintf("file group %s to open", group)
	err := s.poller.Until(ctx, what, s.opts.GroupOpenTimeout, func(ctx context.Context) (bool, error) {
		c, err := s.groupContainer(group)
		if err != nil {
			return false, err
		}
		if c.Visible() {
			container = c
			return true, nil
		}
		return false, s.refresh(ctx)
	}, func() string {
		if c, err := s.groupContainer(group); err == nil {
			return "contents:\n" + c.OuterHTML()
		}
		return s.pageState()
	})
	if err != nil {
		return browser.Element{}, err
	}
	return container, nil
}

// findFile returns the checkbox of a file inside its (opened) group.
func (s *Session) findFile(ctx context.Context, loc FileLocation) (browser.Element, error) {
	container, err := s.openGroup(ctx, loc.Group)
	if err != nil {
		return browser.Element{}, err
	}
	if _, ok := s.loc.FileLabel.FirstWithin(container, loc.File); !ok {
		return browser.Element{}, &NoSuchFileError{Organism: s.code, Group: loc.Group, File: loc.File}
	}
	box, ok := s.loc.FileCheckbox.FirstWithin(container, loc.File)
	if !ok {
		return browser.Element{}, fmt.Errorf("file %s in group %s has no checkbox", loc.File, loc.Group)
	}
	return box, nil
}
