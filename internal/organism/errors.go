// internal/organism/errors.go
package organism

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kbase/jgipush/internal/poll"
)

// Sentinels matched with errors.Is. Each typed error below unwraps to one.
var (
	ErrAuth            = errors.New("authentication failed")
	ErrPermission      = errors.New("no permission for organism")
	ErrNoFileTree      = errors.New("no file tree in page")
	ErrNoSuchGroup     = errors.New("no such file group")
	ErrNoSuchFile      = errors.New("no such file")
	ErrAmbiguousSubmit = errors.New("push control is not unique")
	ErrPush            = errors.New("push reported an error")
	ErrVerification    = errors.New("push outcome does not match selection")
	ErrDialogClose     = errors.New("result dialog did not close")
	// ErrNothingSelected is returned by Push when no file is selected.
	ErrNothingSelected = errors.New("no files selected for push")
	// ErrSessionFailed wraps every error returned after a fatal failure.
	ErrSessionFailed = errors.New("session failed earlier and cannot be reused")
)

// TimeoutError is returned when a readiness condition never became true.
type TimeoutError = poll.TimeoutError

// AuthError reports a sign-on that did not reach the signed-in marker.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("JGI sign-on failed: %s: %v", e.Reason, e.Err)
	}
	return "JGI sign-on failed: " + e.Reason
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuth, e.Err}
	}
	return []error{ErrAuth}
}

// PermissionError reports an organism page showing the no-permission warning.
type PermissionError struct {
	Organism string
}

func (e *PermissionError) Error() string {
	return "no permission for organism " + e.Organism
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// NoFileTreeError reports a loaded page without a file tree region.
type NoFileTreeError struct {
	Organism string
}

func (e *NoFileTreeError) Error() string {
	return "no file tree found in page for organism " + e.Organism
}

func (e *NoFileTreeError) Unwrap() error { return ErrNoFileTree }

// NoSuchGroupError reports a file group label missing from the tree.
type NoSuchGroupError struct {
	Organism string
	Group    string
}

func (e *NoSuchGroupError) Error() string {
	return fmt.Sprintf("there is no file group %s for the organism %s", e.Group, e.Organism)
}

func (e *NoSuchGroupError) Unwrap() error { return ErrNoSuchGroup }

// NoSuchFileError reports a file missing from an open group.
type NoSuchFileError struct {
	Organism string
	Group    string
	File     string
}

func (e *NoSuchFileError) Error() string {
	return fmt.Sprintf("there is no file %s in file group %s for the organism %s", e.File, e.Group, e.Organism)
}

func (e *NoSuchFileError) Unwrap() error { return ErrNoSuchFile }

// AmbiguousSubmitError reports a push control count other than one.
type AmbiguousSubmitError struct {
	Count int
}

func (e *AmbiguousSubmitError) Error() string {
	return fmt.Sprintf("expected exactly 1 push control, found %d", e.Count)
}

func (e *AmbiguousSubmitError) Unwrap() error { return ErrAmbiguousSubmit }

// PushError carries the content of the portal's error region.
type PushError struct {
	Message string
}

func (e *PushError) Error() string {
	return "push to KBase failed: " + e.Message
}

func (e *PushError) Unwrap() error { return ErrPush }

// SetMismatch describes one result set that differs from expectation.
type SetMismatch struct {
	Set      string
	Expected []string
	Observed []string
	Missing  []string
	Extra    []string
}

// VerificationError reports every mismatching result set at once, plus any
// observed names that were never selected.
type VerificationError struct {
	Organism   string
	Mismatches []SetMismatch
	Unexpected []string
	Dialog     string
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "push result for %s did not match selection", e.Organism)
	for _, m := range e.Mismatches {
		fmt.Fprintf(&b, "; %s files: expected %v, got %v (missing %v, extra %v)", m.Set, m.Expected, m.Observed, m.Missing, m.Extra)
	}
	if len(e.Unexpected) > 0 {
		fmt.Fprintf(&b, "; names not selected: %v", e.Unexpected)
	}
	return b.String()
}

func (e *VerificationError) Unwrap() error { return ErrVerification }

// DialogCloseError reports a result dialog still visible after acknowledgement.
type DialogCloseError struct {
	Organism string
	Reason   string
}

func (e *DialogCloseError) Error() string {
	return fmt.Sprintf("push result dialog for %s: %s", e.Organism, e.Reason)
}

func (e *DialogCloseError) Unwrap() error { return ErrDialogClose }

// openGroupError ends a group open whose retry budget ran out. It is fatal
// whatever the last attempt failed with.
type openGroupError struct {
	Group    string
	Attempts int
	Err      error
}

func (e *openGroupError) Error() string {
	return fmt.Sprintf("file group %s did not open after %d attempts: %v", e.Group, e.Attempts, e.Err)
}

func (e *openGroupError) Unwrap() error { return e.Err }

// recoverable reports whether err leaves the session usable.
func recoverable(err error) bool {
	var oge *openGroupError
	if errors.As(err, &oge) {
		return false
	}
	return errors.Is(err, ErrNoSuchGroup) ||
		errors.Is(err, ErrNoSuchFile) ||
		errors.Is(err, ErrNoFileTree) ||
		errors.Is(err, ErrAmbiguousSubmit) ||
		errors.Is(err, ErrNothingSelected)
}
