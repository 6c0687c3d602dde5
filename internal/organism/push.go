// internal/organism/push.go
package organism

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Push submits the selected files to KBase, checks the portal's accepted and
// rejected lists against the selection, closes the result dialog and unselects
// everything. kbase is used when the portal asks for a KBase login.
func (s *Session) Push(ctx context.Context, kbase *Credentials) (PushOutcome, error) {
	if err := s.usable(); err != nil {
		return PushOutcome{}, err
	}
	if len(s.selected) == 0 {
		s.logger.Warn("Push requested with nothing selected.")
		return PushOutcome{}, ErrNothingSelected
	}
	out, err := s.push(ctx, kbase)
	return out, s.fail(err)
}

func (s *Session) push(ctx context.Context, kbase *Credentials) (PushOutcome, error) {
	selection := s.Selected()
	s.logger.Info("Pushing files to KBase.", zap.Int("files", len(selection)))

	if err := s.refresh(ctx); err != nil {
		return PushOutcome{}, err
	}
	submits := s.loc.SubmitButton.In(s.page)
	if len(submits) != 1 {
		return PushOutcome{}, &AmbiguousSubmitError{Count: len(submits)}
	}
	if err := s.click(ctx, submits[0], "push button"); err != nil {
		return PushOutcome{}, err
	}

	if err := s.kbaseLogin(ctx, kbase); err != nil {
		return PushOutcome{}, err
	}
	if err := s.waitForResult(ctx); err != nil {
		return PushOutcome{}, err
	}

	observed := s.scrapeOutcome()
	if err := Verify(s.code, selection, observed); err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) {
			if body, found := s.loc.ResultBody.First(s.page); found {
				verr.Dialog = body.OuterHTML()
			}
		}
		return observed, err
	}
	s.logger.Info("Push result matches selection.",
		zap.Strings("accepted", observed.Accepted.Sorted()),
		zap.Strings("rejected", observed.Rejected.Sorted()))

	if err := s.closeResultDialog(ctx, true); err != nil {
		return observed, err
	}
	for _, loc := range selection {
		if err := s.selectFile(ctx, loc, false); err != nil {
			return observed, fmt.Errorf("failed to reset selection after push: %w", err)
		}
	}
	clear(s.selected)
	s.logger.Info("Finished push to KBase.")
	return observed, nil
}

// kbaseLogin fills the KBase login modal when the portal shows one. The wait
// also ends as soon as a result or an error is visible.
func (s *Session) kbaseLogin(ctx context.Context, kbase *Credentials) error {
	err := s.poller.Until(ctx, "KBase login form", s.opts.PushFormTimeout,
		s.anyVisible(s.loc.KBaseLoginForm, s.loc.ResultBody, s.loc.PushErrorIndicator), s.pageState)
	if err != nil {
		// No form and no result yet; the result wait decides.
		s.logger.Debug("No KBase login form appeared.", zap.Error(err))
		return nil
	}
	if !visible(s.loc.KBaseLoginForm.In(s.page)) {
		return nil
	}
	if kbase == nil {
		return &AuthError{Reason: "portal asked for a KBase login but no KBase credentials were given"}
	}
	s.logger.Info("Logging in to KBase for push.", zap.String("user", kbase.User))

	user, ok := s.loc.KBaseUser.First(s.page)
	if !ok {
		return fmt.Errorf("KBase login form has no user input")
	}
	if err := s.fill(ctx, user, kbase.User, "KBase user"); err != nil {
		return err
	}
	pwd, ok := s.loc.KBasePassword.First(s.page)
	if !ok {
		return fmt.Errorf("KBase login form has no password input")
	}
	if err := s.fill(ctx, pwd, kbase.Password, "KBase password"); err != nil {
		return err
	}
	login, ok := s.loc.KBaseLoginButton.First(s.page)
	if !ok {
		return fmt.Errorf("KBase login form has no login button")
	}
	return s.click(ctx, login, "KBase login")
}

func (s *Session) waitForResult(ctx context.Context) error {
	err := s.poller.Until(ctx, "push result", s.opts.ResultTimeout,
		s.anyVisible(s.loc.ResultBody, s.loc.PushErrorIndicator), s.pageState)
	if msg, failed := s.pushErrorMessage(); failed {
		return &PushError{Message: msg}
	}
	return err
}

func (s *Session) pushErrorMessage() (string, bool) {
	for _, el := range s.loc.PushErrorIndicator.In(s.page) {
		if el.Visible() {
			return el.Text(), true
		}
	}
	return "", false
}

func (s *Session) scrapeOutcome() PushOutcome {
	read := func(lines []string) NameSet {
		set := NameSet{}
		for _, l := range lines {
			if l = strings.TrimSpace(l); l != "" {
				set.Add(l)
			}
		}
		return set
	}
	out := PushOutcome{Accepted: NameSet{}, Rejected: NameSet{}}
	if el, ok := s.loc.AcceptedFiles.First(s.page); ok {
		out.Accepted = read(el.Lines())
	}
	if el, ok := s.loc.RejectedFiles.First(s.page); ok {
		out.Rejected = read(el.Lines())
	}
	return out
}

// WorkspaceName returns the KBase workspace the portal pushes this organism to
// for user: the organism name with spaces turned into underscores and "-", "."
// and "/" removed, then "_" and the user name.
func (s *Session) WorkspaceName(user string) (string, error) {
	if err := s.usable(); err != nil {
		return "", err
	}
	names := s.loc.OrganismName.In(s.page)
	if len(names) != 1 {
		return "", fmt.Errorf("expected 1 organism name in page, found %d", len(names))
	}
	return WorkspaceName(names[0].Text(), user), nil
}

// WorkspaceName derives a workspace name from an organism display name.
func WorkspaceName(organismName, user string) string {
	r := strings.NewReplacer(" ", "_", "-", "", ".", "", "/", "")
	return r.Replace(organismName) + "_" + user
}
