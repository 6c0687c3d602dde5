package organism

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/kbase/jgipush/internal/browser/fakeportal"
	"github.com/kbase/jgipush/internal/poll"
)

const testCode = "BlaspoFA"

var (
	readsFastq = FileLocation{Group: "Raw Data", File: "reads.fastq"}
	notesPDF   = FileLocation{Group: "Raw Data", File: "notes.pdf", ExpectRejection: true}
	contigs    = FileLocation{Group: "Assembly", File: "contigs.fasta"}
)

func testOrganism() fakeportal.Organism {
	return fakeportal.Organism{
		Code: testCode,
		Name: "Blastococcus sp. FA-1",
		Groups: []fakeportal.Group{
			{Name: "Raw Data", Files: []fakeportal.File{{Name: "reads.fastq"}, {Name: "notes.pdf", Reject: true}}},
			{Name: "Assembly", Files: []fakeportal.File{{Name: "contigs.fasta"}}},
			{Name: "QC Filtered Raw Data", Files: []fakeportal.File{{Name: "filtered.fastq.gz"}}},
		},
	}
}

// harness bundles a fake portal, a client on it and a deterministic poller.
type harness struct {
	portal *fakeportal.Portal
	client *fakeportal.Client
	clock  *poll.FakeClock
	poller *poll.Poller
	opts   Options
	logger *zap.Logger
}

func newHarness(t *testing.T, popts fakeportal.Options, orgs ...fakeportal.Organism) *harness {
	t.Helper()
	if len(orgs) == 0 {
		orgs = []fakeportal.Organism{testOrganism()}
	}
	portal := fakeportal.New(popts, orgs...)
	clock := poll.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := zaptest.NewLogger(t)

	opts := DefaultOptions()
	opts.PortalURL = portal.PortalURL()
	opts.SignonURL = portal.SignonURL()
	opts.BenignScriptErrors = []string{"issues.jgi-psf.org/rest/collectors"}

	return &harness{
		portal: portal,
		client: portal.NewClient(),
		clock:  clock,
		poller: poll.New(logger, poll.WithClock(clock)),
		opts:   opts,
		logger: logger,
	}
}

func (h *harness) open(ctx context.Context, creds *Credentials) (*Session, error) {
	return Open(ctx, h.client, testCode, creds, h.opts, h.poller, h.logger)
}

func (h *harness) mustOpen(t *testing.T) *Session {
	t.Helper()
	s, err := h.open(context.Background(), nil)
	require.NoError(t, err)
	return s
}

// waitsSince returns the clock waits recorded after the first n.
func (h *harness) waitsSince(n int) []time.Duration {
	return h.clock.Waits()[n:]
}
