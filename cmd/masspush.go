// cmd/masspush.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kbase/jgipush/internal/pushable"
	"github.com/kbase/jgipush/internal/reporting"
	"github.com/kbase/jgipush/internal/runner"
	"github.com/kbase/jgipush/internal/store"
)

type massPushFlags struct {
	files   string
	junit   string
	json    string
	workers int
}

func newMassPushCmd(a *app) *cobra.Command {
	var f massPushFlags
	cmd := &cobra.Command{
		Use:   "masspush",
		Short: "Push every file of a pushable list with parallel browsers",
		Long: `Deals the files of a discover list round-robin to workers. Each worker drives
its own browser, signs on through the seed organism (runner.seed) and pushes its
files one at a time. Results go to the optional reports and, when database.url
is set, to the run ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMassPush(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.files, "files", "", "pushable file list written by discover")
	cmd.Flags().StringVar(&f.junit, "junit", "", "write a JUnit XML report to this file")
	cmd.Flags().StringVar(&f.json, "json", "", "write JSON lines results to this file")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "number of parallel browsers (default runner.workers)")
	_ = cmd.MarkFlagRequired("files")
	return cmd
}

func (a *app) runMassPush(ctx context.Context, out io.Writer, f massPushFlags) (err error) {
	files, err := pushable.Load(f.files)
	if err != nil {
		return err
	}
	workers := a.cfg.Runner.Workers
	if f.workers > 0 {
		workers = f.workers
	}
	opts, err := a.cfg.SessionOptions()
	if err != nil {
		return err
	}

	var recs multiRecorder
	var reporters reporting.Recorder
	defer func() {
		for _, r := range reporters {
			if cerr := r.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to write report: %w", cerr)
			}
		}
	}()
	for _, rp := range []struct{ format, path string }{{"junit", f.junit}, {"json", f.json}} {
		if rp.path == "" {
			continue
		}
		rep, rerr := reporting.New(rp.format, rp.path, "masspush")
		if rerr != nil {
			return rerr
		}
		reporters = append(reporters, rep)
	}
	if len(reporters) > 0 {
		recs = append(recs, reporters)
	}

	var ledger *store.Store
	var ledgerRec *store.Recorder
	var runID uuid.UUID
	if a.cfg.Database.URL != "" {
		s, closeStore, serr := a.openStore(ctx, a.cfg, a.logger)
		if serr != nil {
			return serr
		}
		defer closeStore()
		runID, serr = s.StartRun(ctx, workers, len(files))
		if serr != nil {
			return serr
		}
		ledger = s
		ledgerRec = s.NewRecorder(runID, store.DefaultBatchSize)
		recs = append(recs, ledgerRec)
	}

	sum, runErr := runner.MassPush(ctx, a.browserFactory(a.cfg, a.logger), files, runner.Options{
		Workers:      workers,
		MaxPerWorker: a.cfg.Runner.MaxPerWorker,
		PageRate:     rate.Limit(a.cfg.Runner.RatePerSecond),
		Seed:         a.cfg.Runner.Seed,
		JGI:          a.cfg.JGICredentials(),
		KBase:        a.cfg.KBaseCredentials(),
		Session:      opts,
	}, a.poller(), recs, a.logger)

	if ledger != nil {
		// The run is stamped even when the context is gone.
		lctx := context.WithoutCancel(ctx)
		if ferr := ledgerRec.Flush(lctx); ferr != nil {
			a.logger.Error("Failed to flush results to the ledger.", zap.Error(ferr))
		}
		if ferr := ledger.FinishRun(lctx, runID, sum.Passed, sum.Failed); ferr != nil {
			a.logger.Error("Failed to finish run.", zap.Stringer("run_id", runID), zap.Error(ferr))
		}
	}

	printSummary(out, sum)
	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d pushes failed", sum.Failed, sum.Passed+sum.Failed)
	}
	return nil
}

// multiRecorder fans a result out to several recorders and reports the first
// error after trying them all.
type multiRecorder []runner.Recorder

func (m multiRecorder) Record(ctx context.Context, r runner.Result) error {
	var first error
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func printSummary(out io.Writer, sum runner.Summary) {
	for _, r := range sum.Results {
		if !r.Passed() {
			fmt.Fprintf(out, "FAIL %s: %v\n", r, r.Err)
		}
	}
	fmt.Fprintf(out, "passed: %d, failed: %d\n", sum.Passed, sum.Failed)
	if len(sum.LoadTimes) == 0 {
		return
	}
	times := append([]time.Duration(nil), sum.LoadTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	var total time.Duration
	for _, d := range times {
		total += d
	}
	fmt.Fprintf(out, "page load: min %s, median %s, mean %s, max %s\n",
		times[0], times[len(times)/2], total/time.Duration(len(times)), times[len(times)-1])
}
