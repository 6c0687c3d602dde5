package pushable

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []File{
	{Workspace: "Blastococcus_sp_FA1_", Organism: "BlaspoFA", Group: "Raw Data", Name: "reads.fastq"},
	{Workspace: "Blastococcus_sp_FA1_", Organism: "BlaspoFA", Group: "QC Filtered Raw Data", Name: "filtered.fastq.gz"},
	{Workspace: "Escherichia_coli_", Organism: "EscCol", Group: "Raw Data", Name: "ecoli.fastq"},
}

func TestLoadAndWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample))

	path := filepath.Join(t.TempDir(), "pushable.tsv")
	content := "# workspace\torganism\tgroup\tfile\n\n" + strings.ReplaceAll(buf.String(), "\n", "\r\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(sample, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"too few fields":  "ws\tBlaspoFA\tRaw Data\n",
		"too many fields": "ws\tBlaspoFA\tRaw Data\treads.fastq\textra\n",
		"empty organism":  "ws\t\tRaw Data\treads.fastq\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformed)
			assert.ErrorContains(t, err, "line 1")
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.tsv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteRejectsTabs(t *testing.T) {
	err := Write(&bytes.Buffer{}, []File{{Workspace: "w", Organism: "o", Group: "a\tb", Name: "f"}})
	assert.Error(t, err)
}

func TestPartition(t *testing.T) {
	files := append(append([]File{}, sample...), File{Organism: "D", Group: "g", Name: "d"}, File{Organism: "E", Group: "g", Name: "e"})
	parts := Partition(files, 3)
	require.Len(t, parts, 3)
	assert.Equal(t, []File{files[0], files[3]}, parts[0])
	assert.Equal(t, []File{files[1], files[4]}, parts[1])
	assert.Equal(t, []File{files[2]}, parts[2])

	assert.Len(t, Partition(files, 0), 1)
	assert.Len(t, Partition(nil, 4)[3], 0)
}

func FuzzParseLine(f *testing.F) {
	f.Add([]byte("ws\tBlaspoFA\tRaw Data\treads.fastq"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		var in File
		if err := c.GenerateStruct(&in); err != nil {
			return
		}
		line := strings.Join([]string{in.Workspace, in.Organism, in.Group, in.Name}, "\t")
		got, err := ParseLine(line)
		if err != nil {
			return
		}
		var buf bytes.Buffer
		if err := Write(&buf, []File{got}); err != nil {
			return
		}
		again, err := ParseLine(strings.TrimSuffix(buf.String(), "\n"))
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})
}
