// internal/organism/options.go
package organism

import (
	"errors"
	"time"

	"github.com/kbase/jgipush/internal/locator"
)

// Defaults for the portal.
const (
	DefaultPortalURL = "https://genome.jgi.doe.gov"
	DefaultSignonURL = "https://signon.jgi.doe.gov/signon"

	// DefaultBenignScriptError is thrown by the portal's issue collector beacon
	// and has no effect on the page.
	DefaultBenignScriptError = "https://issues.jgi-psf.org/rest/collectors/1.0/configuration/trigger/4c7588ab"

	signonTitle   = "JGI Single Sign On"
	signedInText  = "You have signed in successfully."
	stateMaxBytes = 16 << 10
)

// Credentials for JGI sign-on or the KBase push login.
type Credentials struct {
	User     string
	Password string
}

// Options tunes a Session. Zero timeouts and counts fall back to defaults; the
// fixed waits (settle, post-load, dialog close) are used as given.
type Options struct {
	PortalURL string
	SignonURL string

	ReadyTimeout     time.Duration
	SignonTimeout    time.Duration
	GroupOpenTimeout time.Duration
	// OpenRetryBudget is the number of times a group open is attempted. The
	// portal sometimes registers the toggle click but never fills the group.
	OpenRetryBudget int
	SettleTime      time.Duration
	PostLoadWait    time.Duration
	PushFormTimeout time.Duration
	ResultTimeout   time.Duration
	DialogCloseWait time.Duration

	BackgroundScriptTimeout time.Duration
	MaxBackgroundDrains     int

	// BenignScriptErrors are substrings of script errors that are retried while
	// the organism page loads, up to MaxBenignScriptRetries times.
	BenignScriptErrors     []string
	MaxBenignScriptRetries int

	Locators locator.Set
}

// DefaultOptions returns the settings used against the production portal.
func DefaultOptions() Options {
	return Options{
		PortalURL:               DefaultPortalURL,
		SignonURL:               DefaultSignonURL,
		ReadyTimeout:            60 * time.Second,
		SignonTimeout:           30 * time.Second,
		GroupOpenTimeout:        60 * time.Second,
		OpenRetryBudget:         5,
		SettleTime:              time.Second,
		PostLoadWait:            5 * time.Second,
		PushFormTimeout:         10 * time.Second,
		ResultTimeout:           60 * time.Second,
		DialogCloseWait:         2 * time.Second,
		BackgroundScriptTimeout: 5 * time.Minute,
		MaxBackgroundDrains:     20,
		BenignScriptErrors:      []string{DefaultBenignScriptError},
		MaxBenignScriptRetries:  10,
		Locators:                locator.Defaults(),
	}
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PortalURL == "" {
		o.PortalURL = d.PortalURL
	}
	if o.SignonURL == "" {
		o.SignonURL = d.SignonURL
	}
	durations := []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&o.ReadyTimeout, d.ReadyTimeout},
		{&o.SignonTimeout, d.SignonTimeout},
		{&o.GroupOpenTimeout, d.GroupOpenTimeout},
		{&o.PushFormTimeout, d.PushFormTimeout},
		{&o.ResultTimeout, d.ResultTimeout},
		{&o.BackgroundScriptTimeout, d.BackgroundScriptTimeout},
	}
	for _, f := range durations {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	if o.OpenRetryBudget <= 0 {
		o.OpenRetryBudget = d.OpenRetryBudget
	}
	if o.MaxBackgroundDrains <= 0 {
		o.MaxBackgroundDrains = d.MaxBackgroundDrains
	}
	if o.MaxBenignScriptRetries <= 0 {
		o.MaxBenignScriptRetries = d.MaxBenignScriptRetries
	}
	if o.BenignScriptErrors == nil {
		o.BenignScriptErrors = d.BenignScriptErrors
	}
	if o.Locators == (locator.Set{}) {
		o.Locators = d.Locators
	}
	return o
}

// Validate rejects settings that would make the session wait forever or never.
func (o Options) Validate() error {
	var errs []error
	if o.OpenRetryBudget < 0 {
		errs = append(errs, errors.New("open retry budget must not be negative"))
	}
	if o.SettleTime < 0 || o.PostLoadWait < 0 || o.DialogCloseWait < 0 {
		errs = append(errs, errors.New("fixed waits must not be negative"))
	}
	if err := o.Locators.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
