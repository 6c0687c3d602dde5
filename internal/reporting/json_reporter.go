// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/kbase/jgipush/internal/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// record is one line of the JSON report.
type record struct {
	Worker    int       `json:"worker"`
	Workspace string    `json:"workspace,omitempty"`
	Organism  string    `json:"organism,omitempty"`
	Group     string    `json:"group,omitempty"`
	File      string    `json:"file,omitempty"`
	Passed    bool      `json:"passed"`
	Error     string    `json:"error,omitempty"`
	LoadMS    int64     `json:"load_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// JSONReporter streams one JSON object per result.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	enc    *jsoniter.Encoder
}

// NewJSONReporter creates a reporter writing JSON lines to writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer, enc: json.NewEncoder(writer)}
}

func (r *JSONReporter) Write(result runner.Result) error {
	rec := record{
		Worker:    result.Worker,
		Passed:    result.Passed(),
		LoadMS:    result.LoadDuration.Milliseconds(),
		Timestamp: result.Timestamp.UTC(),
	}
	if f := result.File; f != nil {
		rec.Workspace, rec.Organism, rec.Group, rec.File = f.Workspace, f.Organism, f.Group, f.Name
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", result, err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
