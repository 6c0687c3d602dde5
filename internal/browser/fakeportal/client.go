// internal/browser/fakeportal/client.go
package fakeportal

import (
	"context"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kbase/jgipush/internal/browser"
)

// Click kinds counted by the client.
const (
	KindToggle     = "toggle"
	KindCheckbox   = "checkbox"
	KindSubmit     = "submit"
	KindKBaseLogin = "kbase-login"
	KindDialogOK   = "dialog-ok"
	KindSignon     = "signon"
	KindGlobus     = "globus"
)

type view int

const (
	viewBlank view = iota
	viewSignon
	viewSignedIn
	viewOrganism
	viewNotFound
)

type dialog int

const (
	dialogNone dialog = iota
	dialogKBaseLogin
	dialogResult
	dialogError
)

type groupState struct {
	opening bool
	openAt  uint64
}

type orgState struct {
	org       *Organism
	loadedAt  uint64
	groups    map[string]*groupState
	checked   map[string]bool
	dialog    dialog
	dialogAt  uint64
	kbUser    string
	kbPass    string
	errorText string
	accepted  []string
	rejected  []string
}

// Client is one browser tab on the fake portal. It implements browser.Client.
type Client struct {
	portal *Portal

	mu         sync.Mutex
	closed     bool
	generation uint64
	url        string
	view       view
	signedIn   bool
	signonUser string
	signonPass string
	signonErr  bool
	org        *orgState

	actions map[string]func()
	fields  map[string]func(string)

	clicks        map[string]int
	fills         int
	orgFetches    int
	lostRemaining int
	pendingCalls  int
}

var _ browser.Client = (*Client)(nil)

func newClient(p *Portal) *Client {
	return &Client{
		portal:        p,
		clicks:        make(map[string]int),
		lostRemaining: p.opts.LostToggleClicks,
	}
}

func fileKey(group, file string) string { return group + "\x00" + file }

func (c *Client) Fetch(ctx context.Context, rawURL string) (*browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, browser.ErrClosed
	}
	opts := c.portal.opts
	c.url = rawURL
	c.org = nil

	switch {
	case rawURL == opts.SignonURL:
		c.view = viewSignon
		c.signonUser, c.signonPass, c.signonErr = "", "", false
	case strings.HasPrefix(rawURL, opts.PortalURL+"/pages/"):
		code := organismParam(rawURL)
		o, ok := c.portal.organism(code)
		if !ok {
			c.view = viewNotFound
			break
		}
		c.orgFetches++
		if c.orgFetches <= opts.ScriptErrorFetches {
			c.view = viewBlank
			c.render()
			return nil, &browser.ScriptError{URL: rawURL, Message: opts.ScriptErrorMessage}
		}
		c.view = viewOrganism
		c.org = &orgState{
			org:      o,
			loadedAt: c.generation + 1,
			groups:   make(map[string]*groupState),
			checked:  make(map[string]bool),
		}
		if opts.LeftoverDialog {
			c.org.dialog = dialogResult
			c.org.dialogAt = c.org.loadedAt
		}
	default:
		c.view = viewNotFound
	}
	c.pendingCalls = 0
	return c.render()
}

func organismParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("organism")
}

func (c *Client) Snapshot(ctx context.Context) (*browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, browser.ErrClosed
	}
	return c.render()
}

func (c *Client) current(el browser.Element) (string, error) {
	if c.closed {
		return "", browser.ErrClosed
	}
	if el.IsZero() || el.Page() == nil || el.Page().Generation() != c.generation {
		return "", browser.ErrStaleElement
	}
	return el.Ref(), nil
}

func (c *Client) Click(ctx context.Context, el browser.Element) (*browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, err := c.current(el)
	if err != nil {
		return nil, err
	}
	if action, ok := c.actions[ref]; ok {
		action()
	}
	return c.render()
}

func (c *Client) Fill(ctx context.Context, el browser.Element, value string) (*browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, err := c.current(el)
	if err != nil {
		return nil, err
	}
	set, ok := c.fields[ref]
	if !ok {
		return nil, browser.ErrStaleElement
	}
	c.fills++
	set(value)
	return c.render()
}

func (c *Client) WaitForBackgroundScripts(ctx context.Context, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, browser.ErrClosed
	}
	pending := c.portal.opts.PendingScripts - c.pendingCalls
	c.pendingCalls++
	if pending < 0 {
		pending = 0
	}
	return pending, nil
}

func (c *Client) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Clicks returns how many clicks of kind landed on a live control.
func (c *Client) Clicks(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks[kind]
}

// TotalClicks returns every click that hit a live control.
func (c *Client) TotalClicks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.clicks {
		total += n
	}
	return total
}

// Fills returns the number of Fill calls that hit a field.
func (c *Client) Fills() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fills
}

// OrganismFetches returns the number of organism page loads attempted.
func (c *Client) OrganismFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orgFetches
}

// Checked reports the live checkbox state of a file.
func (c *Client) Checked(group, file string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.org != nil && c.org.checked[fileKey(group, file)]
}

// CheckedCount returns how many boxes are ticked on the organism page.
func (c *Client) CheckedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.org == nil {
		return 0
	}
	n := 0
	for _, on := range c.org.checked {
		if on {
			n++
		}
	}
	return n
}

// SignedIn reports whether the client holds a sign-on cookie.
func (c *Client) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signedIn
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) click(kind string) { c.clicks[kind]++ }

func (c *Client) signon() {
	c.click(KindSignon)
	opts := c.portal.opts
	userOK := opts.JGIUser == "" || c.signonUser == opts.JGIUser
	passOK := opts.JGIPassword == "" || c.signonPass == opts.JGIPassword
	if c.signonUser == "" || !userOK || !passOK {
		c.signonErr = true
		return
	}
	c.signedIn = true
	c.view = viewSignedIn
}

func (c *Client) toggleGroup(name string) {
	c.click(KindToggle)
	gs := c.org.groups[name]
	if gs == nil {
		gs = &groupState{}
		c.org.groups[name] = gs
	}
	if gs.opening {
		gs.opening = false
		return
	}
	if c.lostRemaining > 0 {
		c.lostRemaining--
		return
	}
	gs.opening = true
	gs.openAt = c.generation + 1 + uint64(c.portal.opts.OpenDelay)
}

func (c *Client) toggleFile(group, file string) {
	c.click(KindCheckbox)
	k := fileKey(group, file)
	c.org.checked[k] = !c.org.checked[k]
}

func (c *Client) submit() {
	c.click(KindSubmit)
	if c.org.dialog != dialogNone {
		return
	}
	if c.portal.opts.RequireKBaseLogin {
		c.org.dialog = dialogKBaseLogin
		c.org.kbUser, c.org.kbPass = "", ""
		return
	}
	c.finishPush("")
}

func (c *Client) kbaseLogin() {
	c.click(KindKBaseLogin)
	opts := c.portal.opts
	okUser := c.org.kbUser != "" && (opts.KBaseUser == "" || c.org.kbUser == opts.KBaseUser)
	okPass := c.org.kbPass != "" && (opts.KBasePassword == "" || c.org.kbPass == opts.KBasePassword)
	if !okUser || !okPass {
		c.org.dialog = dialogError
		c.org.errorText = "Login to KBase failed: invalid user name or password."
		return
	}
	c.finishPush(c.org.kbUser)
}

func (c *Client) finishPush(kbUser string) {
	opts := c.portal.opts
	if opts.PushError != "" {
		c.org.dialog = dialogError
		c.org.errorText = opts.PushError
		return
	}
	var accepted, rejected []string
	for _, g := range c.org.org.Groups {
		for _, f := range g.Files {
			if !c.org.checked[fileKey(g.Name, f.Name)] {
				continue
			}
			if f.Reject && !opts.MisclassifyRejected {
				rejected = append(rejected, f.Name)
			} else {
				accepted = append(accepted, f.Name)
			}
		}
	}
	accepted = append(accepted, opts.UnexpectedAccepted...)
	c.org.accepted, c.org.rejected = accepted, rejected
	c.org.dialog = dialogResult
	c.org.dialogAt = c.generation + 1 + uint64(opts.ResultDelay)
	if opts.NeverResult {
		c.org.dialogAt = math.MaxUint64
	}
	c.portal.recordPush(PushRecord{
		Organism:  c.org.org.Code,
		KBaseUser: kbUser,
		Accepted:  append([]string(nil), accepted...),
		Rejected:  append([]string(nil), rejected...),
	})
}

func (c *Client) dismissDialog() {
	c.click(KindDialogOK)
	if c.portal.opts.StickyDialog {
		return
	}
	c.org.dialog = dialogNone
	c.org.accepted, c.org.rejected = nil, nil
}
