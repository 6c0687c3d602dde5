// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/observability"
	"github.com/kbase/jgipush/internal/runner"
)

// JUnitReporter renders a run as one JUnit test suite with a test case per
// pushed file. Worker level failures become test cases of their own. It is
// thread safe and writes nothing until Close.
type JUnitReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	suite  string

	mu      sync.Mutex
	results []runner.Result
}

// NewJUnitReporter creates a reporter that writes JUnit XML to writer on Close.
func NewJUnitReporter(writer io.WriteCloser, suite string) *JUnitReporter {
	if suite == "" {
		suite = "masspush"
	}
	return &JUnitReporter{
		writer: writer,
		logger: observability.GetLogger().Named("junit_reporter"),
		suite:  suite,
	}
}

// Write buffers result.
func (r *JUnitReporter) Write(result runner.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

// Document builds the report from the results written so far.
func (r *JUnitReporter) Document() *etree.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", "jgipush")
	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", r.suite)

	var failures int
	var total time.Duration
	var started time.Time
	for _, res := range r.results {
		if started.IsZero() || (!res.Timestamp.IsZero() && res.Timestamp.Before(started)) {
			started = res.Timestamp
		}
		total += res.LoadDuration

		tc := suite.CreateElement("testcase")
		if res.File != nil {
			tc.CreateAttr("classname", res.File.Organism)
			tc.CreateAttr("name", res.File.Group+"/"+res.File.Name)
		} else {
			tc.CreateAttr("classname", "worker")
			tc.CreateAttr("name", fmt.Sprintf("worker %d sign-on", res.Worker))
		}
		tc.CreateAttr("time", seconds(res.LoadDuration))
		if res.Err != nil {
			failures++
			f := tc.CreateElement("failure")
			f.CreateAttr("message", res.Err.Error())
			f.CreateAttr("type", fmt.Sprintf("%T", res.Err))
			f.SetText(res.Err.Error())
		}
		out := tc.CreateElement("system-out")
		out.SetText(fmt.Sprintf("worker %d", res.Worker))
	}

	for _, el := range []*etree.Element{suites, suite} {
		el.CreateAttr("tests", strconv.Itoa(len(r.results)))
		el.CreateAttr("failures", strconv.Itoa(failures))
		el.CreateAttr("time", seconds(total))
	}
	if !started.IsZero() {
		suite.CreateAttr("timestamp", started.UTC().Format(time.RFC3339))
	}
	doc.Indent(2)
	return doc
}

// Close writes the report and closes the writer.
func (r *JUnitReporter) Close() error {
	doc := r.Document()
	_, writeErr := doc.WriteTo(r.writer)
	// Always attempt to close the writer, regardless of write success.
	closeErr := r.writer.Close()
	if writeErr != nil {
		r.logger.Error("Failed to write JUnit report.", zap.Error(writeErr))
		return fmt.Errorf("failed to write JUnit report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Info("Wrote JUnit report.", zap.Int("tests", len(r.results)))
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
