// internal/browser/element.go
package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element is a node inside a Page snapshot. It is a value type and holds no live
// browser handle; acting on it goes through a Client, which checks it still
// belongs to the current snapshot.
type Element struct {
	sel  *goquery.Selection
	page *Page
}

// IsZero reports whether the element is the zero value (nothing resolved).
func (e Element) IsZero() bool { return e.sel == nil || e.sel.Length() == 0 }

// Page returns the snapshot the element was resolved from.
func (e Element) Page() *Page { return e.page }

// Ref returns the snapshot reference used by clients to find the live node.
func (e Element) Ref() string {
	if e.IsZero() {
		return ""
	}
	v, _ := e.sel.Attr(RefAttr)
	return v
}

// Tag returns the lower-case tag name.
func (e Element) Tag() string {
	if e.IsZero() {
		return ""
	}
	return goquery.NodeName(e.sel)
}

// Text returns the trimmed text content of the element and its descendants.
func (e Element) Text() string {
	if e.IsZero() {
		return ""
	}
	return strings.TrimSpace(e.sel.Text())
}

// Lines returns the non-empty trimmed lines of the element's text content. Block
// children each contribute their own line even when the markup has no newlines
// between them.
func (e Element) Lines() []string {
	if e.IsZero() {
		return nil
	}
	var out []string
	children := e.sel.Children()
	if children.Length() > 0 {
		children.Each(func(_ int, s *goquery.Selection) {
			out = append(out, splitLines(s.Text())...)
		})
		return out
	}
	return splitLines(e.sel.Text())
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Attr returns an attribute value.
func (e Element) Attr(name string) (string, bool) {
	if e.IsZero() {
		return "", false
	}
	return e.sel.Attr(name)
}

// Checked reports the checked state of a checkbox or radio input.
func (e Element) Checked() bool {
	_, ok := e.Attr("checked")
	return ok
}

// Visible reports whether the element would be rendered. An element is hidden
// when it or any ancestor is display:none, visibility:hidden, carries the
// hidden attribute, or was flagged hidden by the snapshot script.
func (e Element) Visible() bool {
	if e.IsZero() {
		return false
	}
	for s := e.sel; s.Length() > 0; s = s.Parent() {
		if s.Nodes[0].Type != html.ElementNode {
			continue
		}
		if hiddenNode(s) {
			return false
		}
	}
	return true
}

func hiddenNode(s *goquery.Selection) bool {
	if v, ok := s.Attr(HiddenAttr); ok && v == "1" {
		return true
	}
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style, ok := s.Attr("style")
	if !ok {
		return false
	}
	for _, decl := range strings.Split(style, ";") {
		k, v, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if (k == "display" && v == "none") || (k == "visibility" && v == "hidden") {
			return true
		}
	}
	return false
}

// Find returns descendants matching selector.
func (e Element) Find(selector string) []Element {
	if e.IsZero() {
		return nil
	}
	return wrap(e.page, e.sel.Find(selector))
}

// Children returns direct children matching selector ("" for all).
func (e Element) Children(selector string) []Element {
	if e.IsZero() {
		return nil
	}
	if selector == "" {
		return wrap(e.page, e.sel.Children())
	}
	return wrap(e.page, e.sel.ChildrenFiltered(selector))
}

// Parent returns the parent element.
func (e Element) Parent() Element {
	if e.IsZero() {
		return Element{}
	}
	return Element{sel: e.sel.Parent(), page: e.page}
}

// Closest returns the nearest ancestor-or-self matching selector.
func (e Element) Closest(selector string) Element {
	if e.IsZero() {
		return Element{}
	}
	return Element{sel: e.sel.Closest(selector), page: e.page}
}

// NextSibling returns the first following sibling matching selector ("" for any).
func (e Element) NextSibling(selector string) Element {
	if e.IsZero() {
		return Element{}
	}
	if selector == "" {
		return Element{sel: e.sel.Next(), page: e.page}
	}
	return Element{sel: e.sel.NextAllFiltered(selector).First(), page: e.page}
}

// Is reports whether the element matches selector.
func (e Element) Is(selector string) bool {
	return !e.IsZero() && e.sel.Is(selector)
}

// OuterHTML renders the element, for diagnostics.
func (e Element) OuterHTML() string {
	if e.IsZero() {
		return ""
	}
	out, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return out
}
