package fakeportal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/jgipush/internal/browser"
)

func testOrganism() Organism {
	return Organism{
		Code: "BlaspoFA",
		Name: "Blastococcus sp. FA-1",
		Groups: []Group{
			{Name: "Raw Data", Files: []File{{Name: "reads.fastq"}, {Name: "notes.pdf", Reject: true}}},
			{Name: "Assembly", Files: []File{{Name: "contigs.fasta"}}},
		},
	}
}

func orgURL(p *Portal, code string) string { return p.PortalURL() + OrganismSuffix + code }

func mustFirst(t *testing.T, p *browser.Page, selector string) browser.Element {
	t.Helper()
	el, ok := p.First(selector)
	require.True(t, ok, "missing %s", selector)
	return el
}

func labelNamed(t *testing.T, p *browser.Page, text string) browser.Element {
	t.Helper()
	for _, b := range p.Query("b") {
		if b.Text() == text {
			return b
		}
	}
	t.Fatalf("no label %q", text)
	return browser.Element{}
}

func TestOrganismPageRendering(t *testing.T) {
	ctx := context.Background()
	portal := New(Options{}, testOrganism())
	c := portal.NewClient()

	page, err := c.Fetch(ctx, orgURL(portal, "BlaspoFA"))
	require.NoError(t, err)
	assert.Equal(t, "Blastococcus sp. FA-1", mustFirst(t, page, "div.organismName").Text())
	assert.True(t, mustFirst(t, page, "input.pushToKbaseClass").Visible())

	groups := page.Query("div.rich-tree > div.rich-tree-node-children > table.rich-tree-node b")
	require.Len(t, groups, 2)
	assert.Equal(t, "Raw Data", groups[0].Text())

	dialog, ok := page.ByID("downloadForm:showFilesPushedToKbaseContentTable")
	require.True(t, ok)
	assert.False(t, dialog.Visible())
}

func TestGroupOpeningAndSelection(t *testing.T) {
	ctx := context.Background()
	portal := New(Options{OpenDelay: 2}, testOrganism())
	c := portal.NewClient()

	page, err := c.Fetch(ctx, orgURL(portal, "BlaspoFA"))
	require.NoError(t, err)

	container := labelNamed(t, page, "Raw Data").Closest("table").NextSibling("div.rich-tree-node-children")
	assert.False(t, container.Visible())

	toggle := labelNamed(t, page, "Raw Data").Closest("table").Find("td.rich-tree-node-handle a")
	require.Len(t, toggle, 1)
	page, err = c.Click(ctx, toggle[0])
	require.NoError(t, err)
	assert.Equal(t, 1, c.Clicks(KindToggle))

	container = labelNamed(t, page, "Raw Data").Closest("table").NextSibling("div.rich-tree-node-children")
	assert.False(t, container.Visible(), "group fills asynchronously")

	page, err = c.Snapshot(ctx)
	require.NoError(t, err)
	page, err = c.Snapshot(ctx)
	require.NoError(t, err)
	container = labelNamed(t, page, "Raw Data").Closest("table").NextSibling("div.rich-tree-node-children")
	require.True(t, container.Visible())

	box := labelNamed(t, page, "reads.fastq").Closest("td").Find("input[type=checkbox]")
	require.Len(t, box, 1)
	assert.False(t, box[0].Checked())

	t.Run("stale element is rejected", func(t *testing.T) {
		_, err := c.Snapshot(ctx)
		require.NoError(t, err)
		_, err = c.Click(ctx, box[0])
		assert.ErrorIs(t, err, browser.ErrStaleElement)
		assert.False(t, c.Checked("Raw Data", "reads.fastq"))
	})

	page, err = c.Snapshot(ctx)
	require.NoError(t, err)
	box = labelNamed(t, page, "reads.fastq").Closest("td").Find("input[type=checkbox]")
	page, err = c.Click(ctx, box[0])
	require.NoError(t, err)
	assert.True(t, c.Checked("Raw Data", "reads.fastq"))
	box = labelNamed(t, page, "reads.fastq").Closest("td").Find("input[type=checkbox]")
	assert.True(t, box[0].Checked())
}

func TestLostToggleClicks(t *testing.T) {
	ctx := context.Background()
	portal := New(Options{LostToggleClicks: 1}, testOrganism())
	c := portal.NewClient()
	page, err := c.Fetch(ctx, orgURL(portal, "BlaspoFA"))
	require.NoError(t, err)

	toggle := labelNamed(t, page, "Assembly").Closest("table").Find("td.rich-tree-node-handle a")
	page, err = c.Click(ctx, toggle[0])
	require.NoError(t, err)
	assert.False(t, labelNamed(t, page, "Assembly").Closest("table").NextSibling("div").Visible())

	// The group is neither open nor opening, so the retry click starts the fill.
	toggle = labelNamed(t, page, "Assembly").Closest("table").Find("td.rich-tree-node-handle a")
	page, err = c.Click(ctx, toggle[0])
	require.NoError(t, err)
	assert.True(t, labelNamed(t, page, "Assembly").Closest("table").NextSibling("div").Visible())
}

func TestPushFlow(t *testing.T) {
	ctx := context.Background()
	portal := New(Options{RequireKBaseLogin: true, KBaseUser: "kbuser", KBasePassword: "pw"}, testOrganism())
	c := portal.NewClient()
	page, err := c.Fetch(ctx, orgURL(portal, "BlaspoFA"))
	require.NoError(t, err)

	toggle := labelNamed(t, page, "Raw Data").Closest("table").Find("td.rich-tree-node-handle a")
	page, err = c.Click(ctx, toggle[0])
	require.NoError(t, err)
	for _, name := range []string{"reads.fastq", "notes.pdf"} {
		box := labelNamed(t, page, name).Closest("td").Find("input[type=checkbox]")
		page, err = c.Click(ctx, box[0])
		require.NoError(t, err)
	}

	page, err = c.Click(ctx, mustFirst(t, page, "input.pushToKbaseClass"))
	require.NoError(t, err)

	page, err = c.Fill(ctx, mustFirst(t, page, "form[name=form] input[name=user_id]"), "kbuser")
	require.NoError(t, err)
	page, err = c.Fill(ctx, mustFirst(t, page, "form[name=form] input[name=password]"), "pw")
	require.NoError(t, err)
	login := mustFirst(t, page, "form[name=form]").Closest(".modal").Find(".modal-footer a")
	require.Len(t, login, 1)
	page, err = c.Click(ctx, login[0])
	require.NoError(t, err)

	accepted, ok := page.ByID("acceptedFiles")
	require.True(t, ok)
	assert.True(t, accepted.Visible())
	assert.Equal(t, []string{"reads.fastq"}, accepted.Lines())
	rejected, _ := page.ByID("rejectedFiles")
	assert.Equal(t, []string{"notes.pdf"}, rejected.Lines())

	pushes := portal.Pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, "kbuser", pushes[0].KBaseUser)

	dialog, _ := page.ByID("downloadForm:showFilesPushedToKbaseContentTable")
	ok2 := dialog.Find("input[type=button]")
	require.Len(t, ok2, 1)
	page, err = c.Click(ctx, ok2[0])
	require.NoError(t, err)
	dialog, _ = page.ByID("downloadForm:showFilesPushedToKbaseContentTable")
	assert.False(t, dialog.Visible())
}

func TestSignon(t *testing.T) {
	ctx := context.Background()
	portal := New(Options{JGIUser: "u", JGIPassword: "p"}, Organism{Code: "X", Name: "X", RequiresLogin: true})
	c := portal.NewClient()

	page, err := c.Fetch(ctx, orgURL(portal, "X"))
	require.NoError(t, err)
	assert.Contains(t, mustFirst(t, page, "div.warning").Text(), "you do not have permission")

	page, err = c.Fetch(ctx, portal.SignonURL())
	require.NoError(t, err)
	assert.Equal(t, "JGI Single Sign On", page.Title())
	assert.Len(t, page.Query("form"), 1)
	_, signed := page.ByID("highlight-me")
	assert.False(t, signed)

	page, err = c.Fill(ctx, mustFirst(t, page, "input[name=login]"), "u")
	require.NoError(t, err)
	page, err = c.Fill(ctx, mustFirst(t, page, "input[name=password]"), "p")
	require.NoError(t, err)
	page, err = c.Click(ctx, mustFirst(t, page, "input[name=commit]"))
	require.NoError(t, err)
	marker, ok := page.ByID("highlight-me")
	require.True(t, ok)
	assert.Equal(t, "You have signed in successfully.", marker.Text())
	assert.True(t, c.SignedIn())

	page, err = c.Fetch(ctx, orgURL(portal, "X"))
	require.NoError(t, err)
	assert.Empty(t, page.Query("div.warning"))
}

func TestScriptErrorsAndBackgroundWork(t *testing.T) {
	ctx := context.Background()
	portal := New(Options{ScriptErrorFetches: 2, PendingScripts: 2}, testOrganism())
	c := portal.NewClient()

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(ctx, orgURL(portal, "BlaspoFA"))
		var se *browser.ScriptError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, BenignScriptMessage, se.Message)
	}
	_, err := c.Fetch(ctx, orgURL(portal, "BlaspoFA"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.OrganismFetches())

	counts := []int{}
	for i := 0; i < 3; i++ {
		n, err := c.WaitForBackgroundScripts(ctx, 0)
		require.NoError(t, err)
		counts = append(counts, n)
	}
	assert.Equal(t, []int{2, 1, 0}, counts)

	require.NoError(t, c.Close(ctx))
	_, err = c.Snapshot(ctx)
	assert.ErrorIs(t, err, browser.ErrClosed)
}
