// Package diff renders the change between an original unit and a candidate
// as a unified diff with line statistics.
package diff

import (
	"fmt"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	godiff "github.com/sourcegraph/go-diff/diff"
)

// Stats counts changed lines. A line replaced in place counts as one
// insertion and one deletion.
type Stats struct {
	Insertions int
	Deletions  int
}

func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d", s.Insertions, s.Deletions)
}

// Diff is a unified diff between two versions of one unit
type Diff struct {
	Name    string
	Unified string // Empty when the versions are identical
	Stats   Stats
}

// Empty reports whether the versions are identical
func (d *Diff) Empty() bool {
	return d.Unified == ""
}

// Compute diffs before against after. name labels both sides as a/name and
// b/name.
func Compute(name, before, after string) (*Diff, error) {
	d := &Diff{Name: name}
	if before == after {
		return d, nil
	}

	edits := myers.ComputeEdits(span.URIFromPath(name), before, after)
	d.Unified = fmt.Sprint(gotextdiff.ToUnified("a/"+name, "b/"+name, before, edits))
	if d.Unified == "" {
		return d, nil
	}

	stats, err := CountLines(d.Unified)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff for %s: %w", name, err)
	}
	d.Stats = stats
	return d, nil
}

// CountLines parses a single-file unified diff and counts its changes
func CountLines(unified string) (Stats, error) {
	fd, err := godiff.ParseFileDiff([]byte(unified))
	if err != nil {
		return Stats{}, err
	}
	st := fd.Stat()
	return Stats{
		Insertions: int(st.Added + st.Changed),
		Deletions:  int(st.Deleted + st.Changed),
	}, nil
}
