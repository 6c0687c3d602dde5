// internal/locator/locator.go

// Package locator maps domain concepts on the organism page (a group label, a
// file's checkbox, the push button) to elements, so the page structure is
// described in one declarative place instead of in traversal code.
package locator

import (
	"fmt"
	"strings"

	"github.com/kbase/jgipush/internal/browser"
)

// Locator resolves elements in a scope. Resolution runs in this order:
// Selector (or ID) within the scope, Text filter, Closest ancestor, Next
// sibling, Then descendant, Visible filter.
type Locator struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Selector is a CSS selector evaluated within the scope.
	Selector string `mapstructure:"selector" yaml:"selector"`
	// ID matches the id attribute literally, for ids containing ':'.
	ID string `mapstructure:"id" yaml:"id"`
	// Text keeps only elements whose trimmed text equals it exactly. When the
	// locator is resolved with an argument, "%s" in Text is replaced by it.
	Text string `mapstructure:"text" yaml:"text"`
	// Contains keeps only elements whose text contains it.
	Contains string `mapstructure:"contains" yaml:"contains"`
	// Closest walks up to the nearest ancestor-or-self matching the selector.
	Closest string `mapstructure:"closest" yaml:"closest"`
	// Next moves to the first following sibling matching the selector.
	Next string `mapstructure:"next" yaml:"next"`
	// Then searches descendants with the selector.
	Then string `mapstructure:"then" yaml:"then"`
	// VisibleOnly drops hidden elements.
	VisibleOnly bool `mapstructure:"visible_only" yaml:"visible_only"`
}

// String describes the locator for error messages.
func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	var parts []string
	if l.ID != "" {
		parts = append(parts, "#"+l.ID)
	}
	if l.Selector != "" {
		parts = append(parts, l.Selector)
	}
	if l.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", l.Text))
	}
	return strings.Join(parts, " ")
}

// Validate checks the locator can select anything at all.
func (l Locator) Validate() error {
	if l.Selector == "" && l.ID == "" {
		return fmt.Errorf("locator %s: selector or id is required", l)
	}
	return nil
}

// In resolves the locator against the whole page.
func (l Locator) In(page *browser.Page, arg ...string) []browser.Element {
	if page == nil {
		return nil
	}
	return l.Within(page.Root(), arg...)
}

// Within resolves the locator inside scope. An optional argument fills the
// "%s" placeholder of Text.
func (l Locator) Within(scope browser.Element, arg ...string) []browser.Element {
	if scope.IsZero() {
		return nil
	}
	var found []browser.Element
	switch {
	case l.ID != "":
		if el, ok := scope.Page().ByID(l.ID); ok {
			found = []browser.Element{el}
		}
	default:
		found = scope.Find(l.Selector)
	}

	text := l.Text
	if len(arg) > 0 && strings.Contains(text, "%s") {
		text = strings.ReplaceAll(text, "%s", arg[0])
	}

	out := found[:0:0]
	for _, el := range found {
		if text != "" && el.Text() != text {
			continue
		}
		if l.Contains != "" && !strings.Contains(el.Text(), l.Contains) {
			continue
		}
		if l.Closest != "" {
			if el = el.Closest(l.Closest); el.IsZero() {
				continue
			}
		}
		if l.Next != "" {
			if el = el.NextSibling(l.Next); el.IsZero() {
				continue
			}
		}
		targets := []browser.Element{el}
		if l.Then != "" {
			targets = el.Find(l.Then)
		}
		for _, t := range targets {
			if l.VisibleOnly && !t.Visible() {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// First resolves the locator against the page and returns the first match.
func (l Locator) First(page *browser.Page, arg ...string) (browser.Element, bool) {
	found := l.In(page, arg...)
	if len(found) == 0 {
		return browser.Element{}, false
	}
	return found[0], true
}

// FirstWithin is First scoped to an element.
func (l Locator) FirstWithin(scope browser.Element, arg ...string) (browser.Element, bool) {
	found := l.Within(scope, arg...)
	if len(found) == 0 {
		return browser.Element{}, false
	}
	return found[0], true
}
