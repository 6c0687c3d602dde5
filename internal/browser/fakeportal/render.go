// internal/browser/fakeportal/render.go
package fakeportal

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/kbase/jgipush/internal/browser"
)

type markup struct {
	b       strings.Builder
	c       *Client
	next    int
	actions map[string]func()
	fields  map[string]func(string)
}

func (m *markup) w(format string, args ...any) {
	fmt.Fprintf(&m.b, format, args...)
}

func (m *markup) ref() string {
	m.next++
	return strconv.Itoa(m.next)
}

// act returns an attribute fragment binding a click on the element to fn.
func (m *markup) act(fn func()) string {
	r := m.ref()
	m.actions[r] = fn
	return fmt.Sprintf(` %s="%s"`, browser.RefAttr, r)
}

// field returns an attribute fragment binding a fill on the element to set.
func (m *markup) field(set func(string)) string {
	r := m.ref()
	m.fields[r] = set
	return fmt.Sprintf(` %s="%s"`, browser.RefAttr, r)
}

func hide(hidden bool) string {
	if hidden {
		return ` style="display: none"`
	}
	return ""
}

var esc = html.EscapeString

// render builds the next snapshot. Callers hold c.mu.
func (c *Client) render() (*browser.Page, error) {
	c.generation++
	m := &markup{c: c, actions: make(map[string]func()), fields: make(map[string]func(string))}

	switch c.view {
	case viewSignon:
		c.renderSignon(m)
	case viewSignedIn:
		m.w(`<html><head><title>JGI Single Sign On</title></head><body>`)
		m.w(`<div id="highlight-me">You have signed in successfully.</div>`)
		m.w(`</body></html>`)
	case viewOrganism:
		c.renderOrganism(m)
	case viewNotFound:
		m.w(`<html><head><title>Not Found</title></head><body><h1>404</h1></body></html>`)
	default:
		m.w(`<html><head></head><body></body></html>`)
	}

	c.actions, c.fields = m.actions, m.fields
	return browser.NewPage(c.url, c.generation, m.b.String())
}

func (c *Client) renderSignon(m *markup) {
	m.w(`<html><head><title>JGI Single Sign On</title></head><body>`)
	if c.signedIn {
		m.w(`<div id="highlight-me">You are already signed in.</div>`)
	}
	if c.signonErr {
		m.w(`<div class="flash-error">Invalid login or password.</div>`)
	}
	m.w(`<form action="/signon/create" method="post">`)
	m.w(`<input type="text" name="login" value="%s"%s>`, esc(c.signonUser), m.field(func(v string) { c.signonUser = v }))
	m.w(`<input type="password" name="password"%s>`, m.field(func(v string) { c.signonPass = v }))
	m.w(`<input type="submit" name="commit" value="Sign In"%s>`, m.act(c.signon))
	m.w(`</form></body></html>`)
}

func (c *Client) renderOrganism(m *markup) {
	st := c.org
	opts := c.portal.opts
	ready := !opts.NeverReady && c.generation >= st.loadedAt+uint64(opts.ReadyAfter)
	restricted := st.org.Restricted || (st.org.RequiresLogin && !c.signedIn)

	m.w(`<html><head><title>JGI Genome Portal - %s</title></head><body>`, esc(st.org.Name))
	m.w(`<div class="organismName">%s</div>`, esc(st.org.Name))
	if restricted {
		m.w(`<div class="warning">Sorry, you do not have permission to view files for this organism.</div>`)
		m.w(`</body></html>`)
		return
	}

	m.w(`<form id="downloadForm" name="downloadForm">`)
	m.w(`<div id="downloadForm:fileTreePanel">`)
	if ready {
		m.w(`<div class="rich-panel no_frame"><div class="rich-panel-body"><span class="together">`)
		m.w(`<input type="button" value="Download via Globus"%s>`, m.act(func() { c.click(KindGlobus) }))
		m.w(`</span></div></div>`)
		m.w(`<input type="button" class="button pushToKbaseClass" value="Push to KBase"%s>`, m.act(c.submit))
		if opts.ExtraSubmit {
			m.w(`<input type="button" class="pushToKbaseClass" value="Push to KBase"%s>`, m.act(c.submit))
		}
		c.renderTree(m)
	}
	m.w(`</div></form>`)
	c.renderDialogs(m)
	m.w(`</body></html>`)
}

func (c *Client) renderTree(m *markup) {
	st := c.org
	rootClass := "rich-tree"
	if c.portal.opts.NoFileTree {
		rootClass = "rich-tree-placeholder"
	}
	m.w(`<div class="%s"><div class="rich-tree-node-children">`, rootClass)
	for _, g := range st.org.Groups {
		group := g
		gs := st.groups[group.Name]
		open := gs != nil && gs.opening && c.generation >= gs.openAt

		m.w(`<table class="rich-tree-node"><tbody><tr>`)
		m.w(`<td class="rich-tree-node-handle"><div><a href="#"%s>&nbsp;</a></div></td>`, m.act(func() { c.toggleGroup(group.Name) }))
		m.w(`<td class="rich-tree-node-icon"></td>`)
		m.w(`<td class="rich-tree-node-text"><span><b>%s</b></span></td>`, esc(group.Name))
		m.w(`</tr></tbody></table>`)

		m.w(`<div class="rich-tree-node-children"%s>`, hide(!open))
		if open {
			for _, f := range group.Files {
				file := f
				checked := ""
				if st.checked[fileKey(group.Name, file.Name)] {
					checked = " checked"
				}
				m.w(`<table class="rich-tree-node"><tbody><tr><td class="rich-tree-node-text">`)
				m.w(`<input type="checkbox"%s%s>`, checked, m.act(func() { c.toggleFile(group.Name, file.Name) }))
				m.w(`<span><a href="#"><i><b>%s</b></i></a></span>`, esc(file.Name))
				m.w(`</td></tr></tbody></table>`)
			}
		}
		m.w(`</div>`)
	}
	m.w(`</div></div>`)
}

func (c *Client) renderDialogs(m *markup) {
	st := c.org

	loginOpen := st.dialog == dialogKBaseLogin
	m.w(`<div class="modal kbase-login"%s><div class="modal-dialog"><div class="modal-content">`, hide(!loginOpen))
	m.w(`<div class="modal-body"><div><form name="form">`)
	if loginOpen {
		m.w(`<input type="text" name="user_id" value="%s"%s>`, esc(st.kbUser), m.field(func(v string) { st.kbUser = v }))
		m.w(`<input type="password" name="password"%s>`, m.field(func(v string) { st.kbPass = v }))
	}
	m.w(`</form></div></div>`)
	m.w(`<div class="modal-footer"><div><div></div><div><span></span>`)
	if loginOpen {
		m.w(`<a href="#" class="btn btn-primary"%s>Sign in</a>`, m.act(c.kbaseLogin))
	}
	m.w(`</div></div></div></div></div></div>`)

	errOpen := st.dialog == dialogError
	m.w(`<div class="kbasePushError"%s>%s</div>`, hide(!errOpen), esc(st.errorText))

	resultOpen := st.dialog == dialogResult && c.generation >= st.dialogAt
	m.w(`<table id="downloadForm:showFilesPushedToKbaseContentTable"%s><tbody><tr><td><div>`, hide(!resultOpen))
	m.w(`<div class="header">Push to KBase</div>`)
	m.w(`<div class="modal"><div class="modal-body">`)
	m.w(`<div id="supportedFileTypes">Supported file types: fastq, fasta, gff</div>`)
	m.w(`<div id="acceptedFiles">%s</div>`, esc(strings.Join(st.accepted, "\n")))
	m.w(`<div id="rejectedFiles">%s</div>`, esc(strings.Join(st.rejected, "\n")))
	m.w(`</div></div>`)
	m.w(`<div><input type="button" value="OK"%s></div>`, m.act(c.dismissDialog))
	m.w(`</div></td></tr></tbody></table>`)
}
