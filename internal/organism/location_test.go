package organism

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    FileLocation
		wantErr bool
	}{
		{in: "Raw Data/reads.fastq", want: FileLocation{Group: "Raw Data", File: "reads.fastq"}},
		{in: "Raw Data/notes.pdf!", want: FileLocation{Group: "Raw Data", File: "notes.pdf", ExpectRejection: true}},
		{in: "QC and Genome Assembly/Filtered/x.fasta", want: FileLocation{Group: "QC and Genome Assembly/Filtered", File: "x.fasta"}},
		{in: "reads.fastq", wantErr: true},
		{in: "/reads.fastq", wantErr: true},
		{in: "Raw Data/", wantErr: true},
		{in: "!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestOrganismURL(t *testing.T) {
	assert.Equal(t,
		"https://genome.jgi.doe.gov/pages/dynamicOrganismDownload.jsf?organism=BlaspoFA",
		OrganismURL("https://genome.jgi.doe.gov/", "BlaspoFA"))
}

func TestVerify(t *testing.T) {
	selected := []FileLocation{readsFastq, notesPDF, contigs}

	t.Run("match", func(t *testing.T) {
		observed := PushOutcome{
			Accepted: NewNameSet("reads.fastq", "contigs.fasta"),
			Rejected: NewNameSet("notes.pdf"),
		}
		assert.NoError(t, Verify(testCode, selected, observed))
	})

	t.Run("both sets reported", func(t *testing.T) {
		observed := PushOutcome{
			Accepted: NewNameSet("reads.fastq"),
			Rejected: NewNameSet("notes.pdf", "contigs.fasta"),
		}
		err := Verify(testCode, selected, observed)
		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
		assert.ErrorIs(t, err, ErrVerification)
		require.Len(t, verr.Mismatches, 2)
		assert.Equal(t, SetMismatch{
			Set:      "accepted",
			Expected: []string{"contigs.fasta", "reads.fastq"},
			Observed: []string{"reads.fastq"},
			Missing:  []string{"contigs.fasta"},
		}, verr.Mismatches[0])
		assert.Equal(t, []string{"contigs.fasta"}, verr.Mismatches[1].Extra)
		assert.Empty(t, verr.Unexpected)
		assert.Contains(t, err.Error(), "accepted files")
		assert.Contains(t, err.Error(), "rejected files")
	})

	t.Run("names never selected", func(t *testing.T) {
		observed := PushOutcome{Accepted: NewNameSet("reads.fastq", "other.fastq"), Rejected: NameSet{}}
		err := Verify(testCode, []FileLocation{readsFastq}, observed)
		var verr *VerificationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"other.fastq"}, verr.Unexpected)
	})
}

func TestExpectedOutcome(t *testing.T) {
	out := ExpectedOutcome([]FileLocation{readsFastq, notesPDF})
	assert.True(t, out.Accepted.Equal(NewNameSet("reads.fastq")))
	assert.True(t, out.Rejected.Equal(NewNameSet("notes.pdf")))
}
