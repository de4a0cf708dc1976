package comparator

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/CosmoTheDev/procwatch/internal/objdef"
)

// DiffResult is a line-level diff between two object definitions.
type DiffResult struct {
	Diffs        []diffmatchpatch.Diff
	LinesAdded   int
	LinesRemoved int
	Identical    bool
}

// Diff computes a line-level diff between two definitions. Both sides are
// normalised first so whitespace-only and line-ending differences vanish,
// matching how definition hashes are computed.
func Diff(defA, defB string) DiffResult {
	a := objdef.Normalize(defA)
	b := objdef.Normalize(defB)
	if a == b {
		return DiffResult{Identical: true}
	}

	dmp := diffmatchpatch.New()
	charsA, charsB, lines := dmp.DiffLinesToChars(a+"\n", b+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(charsA, charsB, false), lines)

	result := DiffResult{Diffs: diffs}
	for _, d := range diffs {
		lineCount := strings.Count(d.Text, "\n")
		if lineCount == 0 && d.Text != "" {
			lineCount = 1
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.LinesAdded += lineCount
		case diffmatchpatch.DiffDelete:
			result.LinesRemoved += lineCount
		}
	}
	return result
}

// HTML renders the diff as self-contained HTML with insertions and deletions
// highlighted.
func (d DiffResult) HTML() string {
	if d.Identical {
		return ""
	}
	return diffmatchpatch.New().DiffPrettyHtml(d.Diffs)
}

// Text renders the diff as a unified-style plain text listing.
func (d DiffResult) Text() string {
	if d.Identical {
		return ""
	}
	var sb strings.Builder
	for _, diff := range d.Diffs {
		prefix := "  "
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.Split(strings.TrimSuffix(diff.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// DiffSnapshots loads the definition text of two snapshots and diffs them.
func (c *Comparator) DiffSnapshots(ctx context.Context, snapshotIDA, snapshotIDB int64) (*DiffResult, error) {
	defA, err := c.store.GetSnapshotDefinition(ctx, snapshotIDA)
	if err != nil {
		return nil, err
	}
	defB, err := c.store.GetSnapshotDefinition(ctx, snapshotIDB)
	if err != nil {
		return nil, err
	}
	result := Diff(defA, defB)
	return &result, nil
}
