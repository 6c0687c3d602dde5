// internal/runner/masspush.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kbase/jgipush/internal/browser"
	"github.com/kbase/jgipush/internal/organism"
	"github.com/kbase/jgipush/internal/poll"
	"github.com/kbase/jgipush/internal/pushable"
)

// Options controls MassPush.
type Options struct {
	Workers      int
	MaxPerWorker int
	// PageRate caps organism page opens per second across all workers. Zero
	// means no limit.
	PageRate rate.Limit
	Seed     string
	JGI      *organism.Credentials
	KBase    *organism.Credentials
	Session  organism.Options
}

// Result is the outcome of one file push. File is nil for a worker that
// could not get going at all.
type Result struct {
	Worker       int
	File         *pushable.File
	Err          error
	LoadDuration time.Duration
	Timestamp    time.Time
}

// Passed reports whether the push went through and verified.
func (r Result) Passed() bool { return r.Err == nil }

func (r Result) String() string {
	if r.File == nil {
		return fmt.Sprintf("worker %d", r.Worker)
	}
	return r.File.String()
}

// Recorder receives results as they happen. Calls are serialized.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Summary collects the results of every worker, in worker order.
type Summary struct {
	Results   []Result
	Passed    int
	Failed    int
	LoadTimes []time.Duration
}

// MassPush deals files round-robin to opts.Workers workers. Each worker gets
// its own browser from factory, signs on through the seed organism, then
// pushes up to opts.MaxPerWorker of its files one at a time. Failures are
// recorded per file and never stop other workers; only cancellation ends the
// run early.
func MassPush(ctx context.Context, factory browser.Factory, files []pushable.File, opts Options, poller *poll.Poller, rec Recorder, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("masspush")
	if opts.Workers < 1 {
		return Summary{}, errors.New("at least one worker is required")
	}
	limit := opts.PageRate
	if limit <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, 1)

	var recMu sync.Mutex
	record := func(ctx context.Context, r Result) {
		if rec == nil {
			return
		}
		recMu.Lock()
		defer recMu.Unlock()
		if err := rec.Record(ctx, r); err != nil {
			logger.Error("Failed to record result.", zap.Stringer("file", r), zap.Error(err))
		}
	}

	parts := pushable.Partition(files, opts.Workers)
	results := make([][]Result, opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		w := &worker{
			id:      i + 1,
			files:   parts[i],
			opts:    opts,
			factory: factory,
			limiter: limiter,
			poller:  poller,
			record:  record,
			logger:  logger.With(zap.Int("worker", i+1)),
		}
		g.Go(func() error {
			results[i] = w.run(gctx)
			return gctx.Err()
		})
	}
	err := g.Wait()

	var sum Summary
	for _, rs := range results {
		for _, r := range rs {
			sum.Results = append(sum.Results, r)
			if r.Passed() {
				sum.Passed++
			} else {
				sum.Failed++
			}
			if r.File != nil && r.LoadDuration > 0 {
				sum.LoadTimes = append(sum.LoadTimes, r.LoadDuration)
			}
		}
	}
	logger.Info("Mass push finished.", zap.Int("passed", sum.Passed), zap.Int("failed", sum.Failed))
	return sum, err
}

type worker struct {
	id      int
	files   []pushable.File
	opts    Options
	factory browser.Factory
	limiter *rate.Limiter
	poller  *poll.Poller
	record  func(context.Context, Result)
	logger  *zap.Logger
}

func (w *worker) run(ctx context.Context) []Result {
	var results []Result
	add := func(r Result) {
		r.Worker = w.id
		r.Timestamp = w.poller.Clock().Now()
		results = append(results, r)
		w.record(ctx, r)
	}

	client, err := w.factory(ctx)
	if err != nil {
		add(Result{Err: fmt.Errorf("failed to start browser: %w", err)})
		return results
	}
	defer func() {
		if err := client.Close(browser.Detach(ctx)); err != nil {
			w.logger.Warn("Failed to close browser.", zap.Error(err))
		}
	}()

	if w.opts.Seed != "" {
		if err := w.limiter.Wait(ctx); err != nil {
			add(Result{Err: err})
			return results
		}
		if _, err := organism.Open(ctx, client, w.opts.Seed, w.opts.JGI, w.opts.Session, w.poller, w.logger); err != nil {
			w.logger.Error("Known good sign-on failed.", zap.String("seed", w.opts.Seed), zap.Error(err))
			add(Result{Err: fmt.Errorf("sign-on via seed organism %s failed: %w", w.opts.Seed, err)})
			return results
		}
	}

	for n, f := range w.files {
		if w.opts.MaxPerWorker > 0 && n >= w.opts.MaxPerWorker {
			break
		}
		if ctx.Err() != nil {
			break
		}
		load, err := w.push(ctx, client, f)
		if err != nil {
			w.logger.Warn("Push failed.", zap.Stringer("file", f), zap.Error(err))
		} else {
			w.logger.Info("Pushed file.", zap.Stringer("file", f), zap.Duration("load", load))
		}
		add(Result{File: &f, Err: err, LoadDuration: load})
	}
	return results
}

func (w *worker) push(ctx context.Context, client browser.Client, f pushable.File) (time.Duration, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	s, err := organism.Open(ctx, client, f.Organism, nil, w.opts.Session, w.poller, w.logger)
	if err != nil {
		return 0, err
	}
	if err := s.SelectFile(ctx, organism.FileLocation{Group: f.Group, File: f.Name}, true); err != nil {
		return s.LoadDuration(), err
	}
	_, err = s.Push(ctx, w.opts.KBase)
	return s.LoadDuration(), err
}
