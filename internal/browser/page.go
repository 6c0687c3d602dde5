// internal/browser/page.go
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Attributes written into the live DOM by the snapshot script (or by any other
// Client implementation) so a parsed snapshot can be mapped back onto live nodes.
const (
	// RefAttr carries a per-snapshot element reference used to act on the element.
	RefAttr = "data-snap-ref"
	// HiddenAttr is set to "1" on elements whose computed style makes them invisible.
	HiddenAttr = "data-snap-hidden"
)

// Page is an immutable snapshot of the rendered document. Every mutating action
// on a Client yields a new Page; elements resolved from an older Page must not be
// acted upon (see ErrStaleElement).
type Page struct {
	url        string
	title      string
	generation uint64
	doc        *goquery.Document
	raw        string
}

// NewPage parses markup into a Page snapshot.
func NewPage(url string, generation uint64, markup string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot of %s: %w", url, err)
	}
	doc := goquery.NewDocumentFromNode(root)
	return &Page{
		url:        url,
		title:      strings.TrimSpace(doc.Find("title").First().Text()),
		generation: generation,
		doc:        doc,
		raw:        markup,
	}, nil
}

// URL returns the address the snapshot was taken from.
func (p *Page) URL() string { return p.url }

// Title returns the document title.
func (p *Page) Title() string { return p.title }

// Generation identifies the snapshot; it increases with every Client action.
func (p *Page) Generation() uint64 { return p.generation }

// HTML returns the markup the snapshot was built from, for diagnostics.
func (p *Page) HTML() string { return p.raw }

// Query returns every element matching a CSS selector, in document order.
func (p *Page) Query(selector string) []Element {
	return wrap(p, p.doc.Find(selector))
}

// First returns the first element matching selector.
func (p *Page) First(selector string) (Element, bool) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return Element{}, false
	}
	return Element{sel: sel, page: p}, true
}

// ByID finds an element by its id attribute. Ids containing characters that are
// special in CSS (the portal uses "downloadForm:..." ids) are matched literally.
func (p *Page) ByID(id string) (Element, bool) {
	sel := p.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
	if sel.Length() == 0 {
		return Element{}, false
	}
	return Element{sel: sel, page: p}, true
}

// Root returns the document element, useful as a search scope.
func (p *Page) Root() Element {
	return Element{sel: p.doc.Selection, page: p}
}

func wrap(p *Page, sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element{sel: s, page: p})
	})
	return out
}
