// internal/organism/session.go
package organism

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/browser"
	"github.com/kbase/jgipush/internal/locator"
	"github.com/kbase/jgipush/internal/poll"
)

// Session drives one organism page in one browser client. It holds the only
// reference to the current page snapshot; elements are always re-resolved from
// it and never kept across an action. A Session is not safe for concurrent use.
type Session struct {
	id     string
	code   string
	client browser.Client
	opts   Options
	loc    locator.Set
	poller *poll.Poller
	logger *zap.Logger

	page     *browser.Page
	selected map[FileLocation]struct{}

	loadDuration time.Duration
	// failure is set once an operation fails fatally.
	failure error
}

// Open signs on (when creds is non-nil), loads the organism page and waits
// until it is ready to use.
func Open(ctx context.Context, client browser.Client, code string, creds *Credentials, opts Options, poller *poll.Poller, logger *zap.Logger) (*Session, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if poller == nil {
		poller = poll.New(logger)
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		code:     code,
		client:   client,
		opts:     opts,
		loc:      opts.Locators,
		poller:   poller,
		logger:   logger.Named("organism").With(zap.String("session_id", id), zap.String("organism", code)),
		selected: make(map[FileLocation]struct{}),
	}

	if creds != nil {
		if err := s.signOn(ctx, *creds); err != nil {
			return nil, err
		}
	} else {
		s.logger.Debug("Skipping JGI sign-on, no credentials.")
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session's unique id, used to correlate log lines.
func (s *Session) ID() string { return s.id }

// OrganismCode returns the organism this session drives.
func (s *Session) OrganismCode() string { return s.code }

// LoadDuration is the time from the first page request to the page being ready.
func (s *Session) LoadDuration() time.Duration { return s.loadDuration }

// PageHTML returns the markup of the current snapshot, for diagnostics.
func (s *Session) PageHTML() string {
	if s.page == nil {
		return ""
	}
	return s.page.HTML()
}

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error { return s.failure }

// Selected returns the selection set in a stable order.
func (s *Session) Selected() []FileLocation {
	out := make([]FileLocation, 0, len(s.selected))
	for l := range s.selected {
		out = append(out, l)
	}
	sortLocations(out)
	return out
}

// usable guards every public operation.
func (s *Session) usable() error {
	if s.failure != nil {
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.failure)
	}
	return nil
}

// fail records err as fatal unless it only concerns the call that produced it.
func (s *Session) fail(err error) error {
	if err == nil || recoverable(err) {
		return err
	}
	if s.failure == nil {
		s.failure = err
		s.logger.Error("Session failed.", zap.Error(err))
	}
	return err
}

// refresh replaces the current page with a fresh snapshot.
func (s *Session) refresh(ctx context.Context) error {
	page, err := s.client.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	s.page = page
	return nil
}

// click acts on el and installs the resulting page.
func (s *Session) click(ctx context.Context, el browser.Element, what string) error {
	page, err := s.client.Click(ctx, el)
	if err != nil {
		return fmt.Errorf("failed to click %s: %w", what, err)
	}
	s.page = page
	return nil
}

func (s *Session) fill(ctx context.Context, el browser.Element, value, what string) error {
	page, err := s.client.Fill(ctx, el, value)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", what, err)
	}
	s.page = page
	return nil
}

// anyVisible is a poll condition that takes a fresh snapshot and looks for a
// visible match of any of the locators.
func (s *Session) anyVisible(locs ...locator.Locator) poll.Condition {
	return func(ctx context.Context) (bool, error) {
		if err := s.refresh(ctx); err != nil {
			return false, err
		}
		for _, l := range locs {
			if visible(l.In(s.page)) {
				return true, nil
			}
		}
		return false, nil
	}
}

func visible(els []browser.Element) bool {
	for _, el := range els {
		if el.Visible() {
			return true
		}
	}
	return false
}

// pageState renders the current page for timeout diagnostics.
func (s *Session) pageState() string {
	h := s.PageHTML()
	if len(h) > stateMaxBytes {
		h = h[:stateMaxBytes] + "\n...[truncated]"
	}
	return "Page contents\n" + h
}
