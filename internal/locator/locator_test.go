package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/jgipush/internal/browser"
)

const page = `<html><body>
<div class="organismName">Blastococcus sp. FA-1</div>
<div class="warning">Note: you do not have permission to push restricted files.</div>
<form id="downloadForm">
<div id="downloadForm:fileTreePanel"><div><div><span class="together"><input type="button" value="Globus"></span></div></div>
<input type="button" class="pushToKbaseClass">
<div class="rich-tree"><div class="rich-tree-node-children">
  <table class="rich-tree-node"><tr>
    <td class="rich-tree-node-handle"><div><a href="#" id="t1">+</a></div></td>
    <td class="rich-tree-node-icon"></td>
    <td class="rich-tree-node-text"><span><b>Raw Data</b></span></td></tr></table>
  <div class="rich-tree-node-children">
    <table class="rich-tree-node"><tr><td class="rich-tree-node-text"><input type="checkbox" id="c1"><span><a><i><b>reads.fastq</b></i></a></span></td></tr></table>
    <table class="rich-tree-node"><tr><td class="rich-tree-node-text"><input type="checkbox" id="c2" checked><span><a><i><b>reads2.fastq</b></i></a></span></td></tr></table>
  </div>
  <table class="rich-tree-node"><tr>
    <td class="rich-tree-node-handle"><div><a href="#" id="t2">+</a></div></td>
    <td class="rich-tree-node-icon"></td>
    <td class="rich-tree-node-text"><span><b>QC Filtered Raw Data</b></span></td></tr></table>
  <div class="rich-tree-node-children" style="display:none"></div>
</div></div>
</div>
</form>
<div class="modal"><div class="modal-body"><div><form name="form"><input name="user_id"><input name="password"></form></div></div>
<div class="modal-footer"><div><div></div><div><span></span><a href="#" id="login">Sign in</a></div></div></div></div>
</body></html>`

func load(t *testing.T) *browser.Page {
	t.Helper()
	p, err := browser.NewPage("http://portal", 1, page)
	require.NoError(t, err)
	return p
}

func texts(els []browser.Element) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.Text())
	}
	return out
}

func ids(els []browser.Element) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		v, _ := e.Attr("id")
		out = append(out, v)
	}
	return out
}

func TestDefaultLocators(t *testing.T) {
	p := load(t)
	set := Defaults()
	require.NoError(t, set.Validate())

	t.Run("readiness markers", func(t *testing.T) {
		assert.Len(t, set.GlobusButton.In(p), 1)
		assert.Len(t, set.SubmitButton.In(p), 1)
		assert.NotEmpty(t, set.FileTree.In(p))
	})

	t.Run("group labels", func(t *testing.T) {
		assert.Equal(t, []string{"Raw Data", "QC Filtered Raw Data"}, texts(set.GroupLabels.In(p)))
	})

	t.Run("group container and toggle", func(t *testing.T) {
		c, ok := set.GroupContainer.First(p, "Raw Data")
		require.True(t, ok)
		assert.True(t, c.Visible())

		c, ok = set.GroupContainer.First(p, "QC Filtered Raw Data")
		require.True(t, ok)
		assert.False(t, c.Visible())

		assert.Equal(t, []string{"t2"}, ids(set.GroupToggle.In(p, "QC Filtered Raw Data")))
		assert.Empty(t, set.GroupToggle.In(p, "Assembly"))
	})

	t.Run("file checkbox within group", func(t *testing.T) {
		c, ok := set.GroupContainer.First(p, "Raw Data")
		require.True(t, ok)
		assert.Equal(t, []string{"reads.fastq", "reads2.fastq"}, texts(set.FileLabels.Within(c)))

		box, ok := set.FileCheckbox.FirstWithin(c, "reads2.fastq")
		require.True(t, ok)
		assert.Equal(t, "c2", ids([]browser.Element{box})[0])
		assert.True(t, box.Checked())

		_, ok = set.FileCheckbox.FirstWithin(c, "reads")
		assert.False(t, ok, "file names match exactly")
	})

	t.Run("permission warning matches substring", func(t *testing.T) {
		assert.Len(t, set.PermissionWarning.In(p), 1)
	})

	t.Run("kbase login button from the form", func(t *testing.T) {
		assert.Equal(t, []string{"login"}, ids(set.KBaseLoginButton.In(p)))
	})
}

func TestLocatorEdges(t *testing.T) {
	p := load(t)

	assert.Nil(t, Locator{Selector: "b"}.In(nil))
	assert.Nil(t, Locator{Selector: "b"}.Within(browser.Element{}))

	hidden := Locator{Selector: "div.rich-tree-node-children", VisibleOnly: true}
	assert.Len(t, hidden.In(p), 2, "the closed group container is dropped")

	noID := Locator{ID: "nope"}
	_, ok := noID.First(p)
	assert.False(t, ok)

	assert.Error(t, Locator{Name: "empty"}.Validate())
	assert.Equal(t, "empty", Locator{Name: "empty"}.String())
	assert.Equal(t, `b text="x"`, Locator{Selector: "b", Text: "x"}.String())

	broken := Defaults()
	broken.FileTree = Locator{}
	assert.ErrorContains(t, broken.Validate(), "FileTree")
}
