// internal/browser/fakeportal/portal.go

// Package fakeportal is an in-memory rendition of the genome portal's organism
// download page. It implements browser.Client so the session can be exercised
// without a browser, and exposes knobs that reproduce the portal's timing quirks.
package fakeportal

import (
	"sort"
	"sync"
)

// Default locations served by the fake.
const (
	DefaultPortalURL = "https://genome.example.org"
	DefaultSignonURL = "https://signon.example.org/signon"
	OrganismSuffix   = "/pages/dynamicOrganismDownload.jsf?organism="

	// BenignScriptMessage is the analytics beacon failure the real portal throws
	// on a good fraction of page loads.
	BenignScriptMessage = "TypeError: https://issues.jgi-psf.org/rest/collectors/1.0/configuration/trigger/4c7588ab?os_authType=none&callback=trigger_4c7588ab is not a function"
)

// File is one downloadable file in a group. Reject marks files the portal
// refuses to push (unsupported type).
type File struct {
	Name   string
	Reject bool
}

// Group is a top level node of the organism's file tree.
type Group struct {
	Name  string
	Files []File
}

// Organism is one organism page.
type Organism struct {
	Code   string
	Name   string
	Groups []Group
	// Restricted pages show a permission warning instead of a file tree.
	Restricted bool
	// RequiresLogin pages are restricted unless the client signed on first.
	RequiresLogin bool
}

// Options injects the portal misbehaviour seen in the wild. Durations are
// expressed in page renders, since every poll takes a fresh snapshot.
type Options struct {
	PortalURL string
	SignonURL string

	// JGIUser/JGIPassword are the accepted sign-on credentials. Empty accepts any.
	JGIUser     string
	JGIPassword string
	// KBaseUser/KBasePassword are the accepted push credentials. Empty accepts any non-empty pair.
	KBaseUser     string
	KBasePassword string
	// RequireKBaseLogin shows the KBase login modal after the push button.
	RequireKBaseLogin bool

	// ScriptErrorFetches makes the first N organism page loads of each client
	// throw ScriptErrorMessage (BenignScriptMessage when empty).
	ScriptErrorFetches int
	ScriptErrorMessage string

	// ReadyAfter is the number of renders after load before the readiness
	// markers appear. NeverReady keeps them hidden forever.
	ReadyAfter int
	NeverReady bool
	// NoFileTree renders groups without the rich-tree root.
	NoFileTree bool
	// ExtraSubmit renders a second push button.
	ExtraSubmit bool
	// LeftoverDialog opens the page with the previous push's result dialog showing.
	LeftoverDialog bool

	// OpenDelay is the number of renders between a toggle click and the group's
	// files becoming visible.
	OpenDelay int
	// LostToggleClicks swallows the first k toggle clicks of each client: the
	// click registers but the group never fills.
	LostToggleClicks int

	// ResultDelay is the number of renders before the result dialog appears.
	ResultDelay int
	// NeverResult keeps the result dialog from ever appearing.
	NeverResult bool
	// PushError makes the push fail with this message in the error region.
	PushError string
	// UnexpectedAccepted names are added to every accepted list.
	UnexpectedAccepted []string
	// MisclassifyRejected reports files marked Reject as accepted.
	MisclassifyRejected bool
	// StickyDialog ignores the result dialog's OK button.
	StickyDialog bool

	// PendingScripts is how many WaitForBackgroundScripts calls report
	// outstanding work before the page goes quiet.
	PendingScripts int
}

// PushRecord is one push the portal accepted.
type PushRecord struct {
	Organism  string
	KBaseUser string
	Accepted  []string
	Rejected  []string
}

// Portal holds the organisms and the push log shared by every client.
type Portal struct {
	opts Options

	mu        sync.Mutex
	organisms map[string]*Organism
	pushes    []PushRecord
}

// New creates a portal serving organisms.
func New(opts Options, organisms ...Organism) *Portal {
	if opts.PortalURL == "" {
		opts.PortalURL = DefaultPortalURL
	}
	if opts.SignonURL == "" {
		opts.SignonURL = DefaultSignonURL
	}
	if opts.ScriptErrorMessage == "" {
		opts.ScriptErrorMessage = BenignScriptMessage
	}
	p := &Portal{opts: opts, organisms: make(map[string]*Organism)}
	for i := range organisms {
		o := organisms[i]
		p.organisms[o.Code] = &o
	}
	return p
}

// PortalURL returns the portal base URL.
func (p *Portal) PortalURL() string { return p.opts.PortalURL }

// SignonURL returns the sign-on page URL.
func (p *Portal) SignonURL() string { return p.opts.SignonURL }

// OrganismCodes returns every organism code, sorted.
func (p *Portal) OrganismCodes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.organisms))
	for code := range p.organisms {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Pushes returns a copy of the push log.
func (p *Portal) Pushes() []PushRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PushRecord, len(p.pushes))
	copy(out, p.pushes)
	return out
}

func (p *Portal) organism(code string) (*Organism, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.organisms[code]
	return o, ok
}

func (p *Portal) recordPush(r PushRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, r)
}

// NewClient returns a fresh browser on the portal with its own cookies.
func (p *Portal) NewClient() *Client {
	return newClient(p)
}
