package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const treeMarkup = `<html><head><title> Organism </title></head><body>
<div id="downloadForm:fileTreePanel"><span class="together"><input type="button" value="Globus"></span></div>
<div class="rich-tree">
  <div class="rich-tree-node-children">
    <table class="rich-tree-node" data-snap-ref="1"><tr>
      <td class="rich-tree-node-handle"><div><a href="#" data-snap-ref="2">+</a></div></td>
      <td class="rich-tree-node-text"><span><b>Raw Data</b></span></td>
    </tr></table>
    <div class="rich-tree-node-children" style="display: none">
      <table><tr><td><input type="checkbox" data-snap-ref="3"><a><i><b>reads.fastq</b></i></a></td></tr></table>
    </div>
    <table class="rich-tree-node"><tr>
      <td class="rich-tree-node-text"><span><b>Assembly</b></span></td>
    </tr></table>
    <div class="rich-tree-node-children">
      <table><tr><td><input type="checkbox" checked><a><i><b>contigs.fasta</b></i></a></td></tr></table>
    </div>
  </div>
</div>
<div hidden><p id="deep">buried</p></div>
<div style="visibility:hidden"><span id="invisible">x</span></div>
<div data-snap-hidden="1"><span id="computed">y</span></div>
<pre id="lines">a.txt
  b.txt

c.txt</pre>
<div id="blocks"><div>one</div><div>two</div></div>
</body></html>`

func mustPage(t *testing.T, gen uint64, markup string) *Page {
	t.Helper()
	p, err := NewPage("http://portal/test", gen, markup)
	require.NoError(t, err)
	return p
}

func TestPageBasics(t *testing.T) {
	p := mustPage(t, 7, treeMarkup)
	assert.Equal(t, "http://portal/test", p.URL())
	assert.Equal(t, "Organism", p.Title())
	assert.Equal(t, uint64(7), p.Generation())
	assert.Equal(t, treeMarkup, p.HTML())

	labels := p.Query("div.rich-tree > div.rich-tree-node-children > table.rich-tree-node b")
	require.Len(t, labels, 2)
	assert.Equal(t, "Raw Data", labels[0].Text())
	assert.Equal(t, "Assembly", labels[1].Text())

	_, ok := p.First("div.missing")
	assert.False(t, ok)
}

func TestPageByIDWithColon(t *testing.T) {
	p := mustPage(t, 1, treeMarkup)
	el, ok := p.ByID("downloadForm:fileTreePanel")
	require.True(t, ok)
	assert.Len(t, el.Find(".together input"), 1)

	_, ok = p.ByID("downloadForm:nothing")
	assert.False(t, ok)
}

func TestElementVisibility(t *testing.T) {
	p := mustPage(t, 1, treeMarkup)

	tests := []struct {
		name     string
		selector string
		visible  bool
	}{
		{"plain element", "div.rich-tree", true},
		{"display none ancestor", "input[data-snap-ref='3']", false},
		{"hidden attribute ancestor", "#deep", false},
		{"visibility hidden ancestor", "#invisible", false},
		{"computed hidden marker", "#computed", false},
		{"expanded group content", "input[checked]", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, ok := p.First(tt.selector)
			require.True(t, ok)
			assert.Equal(t, tt.visible, el.Visible())
		})
	}

	assert.False(t, Element{}.Visible(), "zero element is never visible")
}

func TestElementTraversal(t *testing.T) {
	p := mustPage(t, 1, treeMarkup)
	label, ok := p.First("b")
	require.True(t, ok)

	table := label.Closest("table.rich-tree-node")
	require.False(t, table.IsZero())
	assert.Equal(t, "1", table.Ref())

	container := table.NextSibling("div.rich-tree-node-children")
	require.False(t, container.IsZero())
	assert.False(t, container.Visible())

	toggle := table.Find("td.rich-tree-node-handle a")
	require.Len(t, toggle, 1)
	assert.Equal(t, "a", toggle[0].Tag())
	assert.Equal(t, "2", toggle[0].Ref())

	file := container.Find("a i b")
	require.Len(t, file, 1)
	box := file[0].Closest("td").Find("input[type=checkbox]")
	require.Len(t, box, 1)
	assert.False(t, box[0].Checked())
	assert.True(t, box[0].Is("input"))
	assert.Contains(t, box[0].OuterHTML(), "checkbox")

	assert.True(t, Element{}.Closest("div").IsZero())
	assert.Nil(t, Element{}.Find("div"))
	assert.Equal(t, "", Element{}.Ref())
}

func TestElementLines(t *testing.T) {
	p := mustPage(t, 1, treeMarkup)
	pre, ok := p.ByID("lines")
	require.True(t, ok)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, pre.Lines())

	blocks, ok := p.ByID("blocks")
	require.True(t, ok)
	assert.Equal(t, []string{"one", "two"}, blocks.Lines())
}

func TestScriptError(t *testing.T) {
	err := &ScriptError{URL: "http://x", Message: "TypeError: boom"}
	assert.Contains(t, err.Error(), "http://x")
	assert.Contains(t, err.Error(), "TypeError: boom")
}

func TestExecAllocatorOptions(t *testing.T) {
	base := len(ExecAllocatorOptions(CDPOptions{Headless: true}))
	withArgs := ExecAllocatorOptions(CDPOptions{
		Headless:   false,
		DisableGPU: true,
		ExecPath:   "/usr/bin/chromium",
		UserAgent:  "jgipush",
		Args:       []string{"--no-zygote", "window-size=1280,1024"},
	})
	assert.Equal(t, base+6, len(withArgs))
}

func TestCombineContext(t *testing.T) {
	t.Run("canceled by secondary", func(t *testing.T) {
		type key struct{}
		primary := context.WithValue(context.Background(), key{}, "cdp")
		secondary, cancel2 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "cdp", combined.Value(key{}))
		cancel2()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled by secondary")
		}
	})

	t.Run("canceled by primary", func(t *testing.T) {
		primary, cancel1 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()
		cancel1()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled by primary")
		}
	})
}

func TestDetach(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, 42))
	cancel()
	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, has := detached.Deadline()
	assert.False(t, has)
	assert.Equal(t, 42, detached.Value(key{}))
}
