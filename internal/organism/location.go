// internal/organism/location.go
package organism

import (
	"fmt"
	"sort"
	"strings"
)

// OrganismPageSuffix is appended to the portal URL, followed by the organism code.
const OrganismPageSuffix = "/pages/dynamicOrganismDownload.jsf?organism="

// OrganismURL returns the download page address of an organism.
func OrganismURL(portalURL, code string) string {
	return strings.TrimRight(portalURL, "/") + OrganismPageSuffix + code
}

// FileLocation identifies a file on an organism page, and whether the portal
// is expected to reject it when pushed. It is comparable and used as a set key.
type FileLocation struct {
	Group           string
	File            string
	ExpectRejection bool
}

func (l FileLocation) String() string {
	s := l.Group + "/" + l.File
	if l.ExpectRejection {
		s += "!"
	}
	return s
}

// ParseLocation parses "group/file", with a trailing "!" marking an expected
// rejection. The file is everything after the last slash.
func ParseLocation(s string) (FileLocation, error) {
	var loc FileLocation
	if strings.HasSuffix(s, "!") {
		loc.ExpectRejection = true
		s = strings.TrimSuffix(s, "!")
	}
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return FileLocation{}, fmt.Errorf("invalid file location %q: want group/file", s)
	}
	loc.Group, loc.File = s[:i], s[i+1:]
	return loc, nil
}

func sortLocations(locs []FileLocation) {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Group != locs[j].Group {
			return locs[i].Group < locs[j].Group
		}
		if locs[i].File != locs[j].File {
			return locs[i].File < locs[j].File
		}
		return !locs[i].ExpectRejection && locs[j].ExpectRejection
	})
}

// NameSet is a set of file names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s NameSet) Add(name string) { s[name] = struct{}{} }

func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Equal reports set equality.
func (s NameSet) Equal(o NameSet) bool {
	if len(s) != len(o) {
		return false
	}
	for n := range s {
		if !o.Has(n) {
			return false
		}
	}
	return true
}

// Minus returns the sorted names in s that are not in o.
func (s NameSet) Minus(o NameSet) []string {
	var out []string
	for n := range s {
		if !o.Has(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// PushOutcome is the portal's classification of a push.
type PushOutcome struct {
	Accepted NameSet
	Rejected NameSet
}

// ExpectedOutcome partitions selected locations by their rejection flag.
func ExpectedOutcome(selected []FileLocation) PushOutcome {
	out := PushOutcome{Accepted: NameSet{}, Rejected: NameSet{}}
	for _, l := range selected {
		if l.ExpectRejection {
			out.Rejected.Add(l.File)
		} else {
			out.Accepted.Add(l.File)
		}
	}
	return out
}

// Verify compares an observed outcome against expectation. Names observed but
// not selected at all are reported separately.
func Verify(organism string, selected []FileLocation, observed PushOutcome) error {
	expected := ExpectedOutcome(selected)
	verr := &VerificationError{Organism: organism}

	check := func(set string, want, got NameSet) {
		if want.Equal(got) {
			return
		}
		verr.Mismatches = append(verr.Mismatches, SetMismatch{
			Set:      set,
			Expected: want.Sorted(),
			Observed: got.Sorted(),
			Missing:  want.Minus(got),
			Extra:    got.Minus(want),
		})
	}
	check("accepted", expected.Accepted, observed.Accepted)
	check("rejected", expected.Rejected, observed.Rejected)

	names := NameSet{}
	for _, l := range selected {
		names.Add(l.File)
	}
	seen := NameSet{}
	for n := range observed.Accepted {
		seen.Add(n)
	}
	for n := range observed.Rejected {
		seen.Add(n)
	}
	verr.Unexpected = seen.Minus(names)

	if len(verr.Mismatches) == 0 && len(verr.Unexpected) == 0 {
		return nil
	}
	return verr
}
