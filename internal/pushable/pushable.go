// internal/pushable/pushable.go

// Package pushable reads and writes lists of files known to be pushable, one
// per line as workspace, organism, group and file name separated by tabs.
package pushable

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// File is one pushable file.
type File struct {
	Workspace string
	Organism  string
	Group     string
	Name      string
}

func (f File) String() string {
	return f.Organism + "/" + f.Group + "/" + f.Name
}

// ErrMalformed is wrapped by every line parse error.
var ErrMalformed = errors.New("malformed pushable file line")

// Parse reads lines from r. Blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader) ([]File, error) {
	var files []File
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		files = append(files, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pushable files: %w", err)
	}
	return files, nil
}

// ParseLine parses a single tab separated line.
func ParseLine(line string) (File, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 4 {
		return File{}, fmt.Errorf("%w: want 4 tab separated fields, got %d", ErrMalformed, len(parts))
	}
	f := File{Workspace: parts[0], Organism: parts[1], Group: parts[2], Name: parts[3]}
	if f.Organism == "" || f.Group == "" || f.Name == "" {
		return File{}, fmt.Errorf("%w: organism, group and file must be set", ErrMalformed)
	}
	return f, nil
}

// Load reads the list at path.
func Load(path string) ([]File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	files, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return files, nil
}

// Write writes files in the format Parse reads.
func Write(w io.Writer, files []File) error {
	bw := bufio.NewWriter(w)
	for _, f := range files {
		for _, field := range []string{f.Workspace, f.Organism, f.Group, f.Name} {
			if strings.ContainsAny(field, "\t\n") {
				return fmt.Errorf("cannot write %s: field %q contains a tab or newline", f, field)
			}
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\n", f.Workspace, f.Organism, f.Group, f.Name); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Partition deals files round-robin into n lists, preserving order within each.
func Partition(files []File, n int) [][]File {
	if n < 1 {
		n = 1
	}
	out := make([][]File, n)
	for i, f := range files {
		out[i%n] = append(out[i%n], f)
	}
	return out
}
