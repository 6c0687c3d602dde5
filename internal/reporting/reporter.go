// internal/reporting/reporter.go

// Package reporting writes push results for humans and CI systems.
package reporting

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kbase/jgipush/internal/runner"
)

// Reporter defines the interface for writing push results to an output.
type Reporter interface {
	// Write processes a single result.
	Write(result runner.Result) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath, suiteName string) (Reporter, error) {
	switch format {
	case "junit", "json":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "junit" {
		return NewJUnitReporter(writer, suiteName), nil
	}
	return NewJSONReporter(writer), nil
}

// Recorder adapts reporters to runner.Recorder.
type Recorder []Reporter

// Record writes r to every reporter.
func (rs Recorder) Record(_ context.Context, r runner.Result) error {
	for _, rep := range rs {
		if err := rep.Write(r); err != nil {
			return err
		}
	}
	return nil
}
