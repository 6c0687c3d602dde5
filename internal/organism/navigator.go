// internal/organism/navigator.go
package organism

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/browser"
)

func (s *Session) signOn(ctx context.Context, creds Credentials) error {
	s.logger.Info("Signing on to JGI.", zap.String("url", s.opts.SignonURL), zap.String("user", creds.User))
	page, err := s.client.Fetch(ctx, s.opts.SignonURL)
	if err != nil {
		return &AuthError{Reason: "could not load sign-on page", Err: err}
	}
	s.page = page

	if page.Title() != signonTitle {
		return &AuthError{Reason: fmt.Sprintf("unexpected sign-on page title %q", page.Title())}
	}
	if _, ok := s.loc.SignedIn.First(page); ok {
		return &AuthError{Reason: "already signed in"}
	}
	if forms := s.loc.SignonForm.In(page); len(forms) != 1 {
		return &AuthError{Reason: fmt.Sprintf("expected 1 form on sign-on page, found %d", len(forms))}
	}

	steps := []struct {
		what  string
		value string
		field func() (browser.Element, bool)
	}{
		{"login", creds.User, func() (browser.Element, bool) { return s.loc.SignonUser.First(s.page) }},
		{"password", creds.Password, func() (browser.Element, bool) { return s.loc.SignonPassword.First(s.page) }},
	}
	for _, st := range steps {
		el, ok := st.field()
		if !ok {
			return &AuthError{Reason: "sign-on form has no " + st.what + " input"}
		}
		if err := s.fill(ctx, el, st.value, st.what); err != nil {
			return &AuthError{Reason: "could not fill sign-on form", Err: err}
		}
	}
	commit, ok := s.loc.SignonCommit.First(s.page)
	if !ok {
		return &AuthError{Reason: "sign-on form has no commit button"}
	}
	if err := s.click(ctx, commit, "sign-on commit"); err != nil {
		return &AuthError{Reason: "could not submit sign-on form", Err: err}
	}

	err = s.poller.Until(ctx, "signed-in marker", s.opts.SignonTimeout, func(ctx context.Context) (bool, error) {
		if _, ok := s.loc.SignedIn.First(s.page); ok {
			return true, nil
		}
		return false, s.refresh(ctx)
	}, s.pageState)
	if err != nil {
		return &AuthError{Reason: "signed-in marker never appeared", Err: err}
	}
	marker, _ := s.loc.SignedIn.First(s.page)
	if marker.Text() != signedInText {
		return &AuthError{Reason: fmt.Sprintf("unexpected sign-on result %q", marker.Text())}
	}
	s.logger.Info("Signed on to JGI.")
	return nil
}

// load opens the organism page and waits for it to become usable.
func (s *Session) load(ctx context.Context) error {
	url := OrganismURL(s.opts.PortalURL, s.code)
	s.logger.Info("Opening organism page.", zap.String("url", url))
	start := s.poller.Clock().Now()

	if err := s.fetchOrganismPage(ctx, url); err != nil {
		return err
	}
	if err := s.checkPermission(); err != nil {
		return err
	}
	if err := s.waitForPageToLoad(ctx); err != nil {
		return err
	}
	s.loadDuration = s.poller.Clock().Now().Sub(start)

	if err := s.drainBackgroundScripts(ctx); err != nil {
		return err
	}
	// The portal keeps wiring handlers for a few seconds after the tree shows.
	if err := s.poller.Sleep(ctx, s.opts.PostLoadWait); err != nil {
		return err
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	s.logger.Info("Organism page ready.",
		zap.Duration("load_duration", s.loadDuration),
		zap.Int("page_bytes", len(s.PageHTML())))

	if err := s.closeResultDialog(ctx, false); err != nil {
		s.logger.Warn("Could not close leftover result dialog.", zap.Error(err))
	}
	return nil
}

func (s *Session) fetchOrganismPage(ctx context.Context, url string) error {
	for attempt := 0; ; attempt++ {
		page, err := s.client.Fetch(ctx, url)
		if err == nil {
			s.page = page
			return nil
		}
		var se *browser.ScriptError
		if !errors.As(err, &se) || !s.benign(se.Message) {
			return fmt.Errorf("failed to load organism page %s: %w", url, err)
		}
		if attempt >= s.opts.MaxBenignScriptRetries {
			return fmt.Errorf("organism page %s kept throwing script errors after %d retries: %w", url, attempt, err)
		}
		s.logger.Info("Ignoring benign script error.", zap.String("message", se.Message), zap.Int("attempt", attempt+1))
	}
}

func (s *Session) benign(msg string) bool {
	for _, sub := range s.opts.BenignScriptErrors {
		if sub != "" && strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func (s *Session) checkPermission() error {
	if _, ok := s.loc.PermissionWarning.First(s.page); ok {
		s.logger.Info("No permission for organism.")
		return &PermissionError{Organism: s.code}
	}
	return nil
}

func (s *Session) waitForPageToLoad(ctx context.Context) error {
	markers := []struct {
		name  string
		ready func() bool
	}{
		{s.loc.GlobusButton.String(), func() bool { return visible(s.loc.GlobusButton.In(s.page)) }},
		{s.loc.SubmitButton.String(), func() bool { return visible(s.loc.SubmitButton.In(s.page)) }},
		{s.loc.FileTree.String(), func() bool { return visible(s.loc.FileTree.In(s.page)) }},
	}
	for _, m := range markers {
		ready := m.ready
		err := s.poller.Until(ctx, m.name, s.opts.ReadyTimeout, func(ctx context.Context) (bool, error) {
			if ready() {
				return true, nil
			}
			if err := s.refresh(ctx); err != nil {
				return false, err
			}
			return ready(), nil
		}, s.pageState)
		if err != nil {
			// A page that finished loading as a permission warning never shows the markers.
			if perr := s.checkPermission(); perr != nil {
				return perr
			}
			return err
		}
	}
	return nil
}

func (s *Session) drainBackgroundScripts(ctx context.Context) error {
	for i := 0; i < s.opts.MaxBackgroundDrains; i++ {
		pending, err := s.client.WaitForBackgroundScripts(ctx, s.opts.BackgroundScriptTimeout)
		if err != nil {
			return fmt.Errorf("failed waiting for background scripts: %w", err)
		}
		if pending == 0 {
			return nil
		}
		s.logger.Debug("Waiting for background scripts.", zap.Int("pending", pending))
	}
	s.logger.Warn("Background scripts still pending, continuing.", zap.Int("drains", s.opts.MaxBackgroundDrains))
	return nil
}

// closeResultDialog acknowledges the push result dialog. When mustBeOpen is
// false a closed dialog is fine.
func (s *Session) closeResultDialog(ctx context.Context, mustBeOpen bool) error {
	dialog, ok := s.loc.ResultDialog.First(s.page)
	if !ok {
		return &DialogCloseError{Organism: s.code, Reason: "result dialog is not in the page"}
	}
	if !dialog.Visible() {
		if mustBeOpen {
			return &DialogCloseError{Organism: s.code, Reason: "result dialog is not open"}
		}
		return nil
	}
	okButton, ok := s.loc.ResultDialogOK.First(s.page)
	if !ok {
		return &DialogCloseError{Organism: s.code, Reason: "result dialog has no OK button"}
	}
	if err := s.click(ctx, okButton, "result dialog OK"); err != nil {
		return err
	}
	if err := s.poller.Sleep(ctx, s.opts.DialogCloseWait); err != nil {
		return err
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	if dialog, ok := s.loc.ResultDialog.First(s.page); ok && dialog.Visible() {
		return &DialogCloseError{Organism: s.code, Reason: "still open after acknowledgement"}
	}
	s.logger.Debug("Result dialog closed.")
	return nil
}
