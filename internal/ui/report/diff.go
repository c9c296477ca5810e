package report

import (
	"bytes"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"pyrename/internal/engine/transaction"
)

const contextLines = 3

const noNewline = "\\ No newline at end of file\n"

// UnifiedDiff renders the changes as one git-style multi-file diff. Files
// whose content did not change are skipped.
func UnifiedDiff(changes []*transaction.FileChange) ([]byte, error) {
	fds := make([]*diff.FileDiff, 0, len(changes))
	for _, c := range changes {
		if bytes.Equal(c.Original, c.Updated) {
			continue
		}
		fds = append(fds, FileDiff(c))
	}
	if len(fds) == 0 {
		return nil, nil
	}
	return diff.PrintMultiFileDiff(fds)
}

func FileDiff(c *transaction.FileChange) *diff.FileDiff {
	return &diff.FileDiff{
		OrigName: "a/" + c.Path,
		NewName:  "b/" + c.Path,
		Extended: []string{"diff --git a/" + c.Path + " b/" + c.Path},
		Hunks:    hunks(splitLines(c.Original), splitLines(c.Updated)),
	}
}

// hunks pairs lines by index. Renames never add or remove line breaks, so
// both sides have the same line count; anything else becomes one hunk that
// replaces the whole file.
func hunks(orig, updated []line) []*diff.Hunk {
	if len(orig) != len(updated) {
		return []*diff.Hunk{wholeFile(orig, updated)}
	}

	var changed []int
	for i := range orig {
		if orig[i] != updated[i] {
			changed = append(changed, i)
		}
	}

	var out []*diff.Hunk
	for k := 0; k < len(changed); {
		start := max(0, changed[k]-contextLines)
		end := min(len(orig), changed[k]+contextLines+1)
		k++
		for k < len(changed) && changed[k]-contextLines <= end {
			end = min(len(orig), changed[k]+contextLines+1)
			k++
		}
		out = append(out, &diff.Hunk{
			OrigStartLine: int32(start + 1),
			OrigLines:     int32(end - start),
			NewStartLine:  int32(start + 1),
			NewLines:      int32(end - start),
			Body:          hunkBody(orig[start:end], updated[start:end]),
		})
	}
	return out
}

// hunkBody writes each run of changed lines as removals followed by
// additions.
func hunkBody(orig, updated []line) []byte {
	var b strings.Builder
	for i := 0; i < len(orig); {
		if orig[i] == updated[i] {
			writeLine(&b, ' ', orig[i])
			i++
			continue
		}
		j := i
		for j < len(orig) && orig[j] != updated[j] {
			j++
		}
		for _, l := range orig[i:j] {
			writeLine(&b, '-', l)
		}
		for _, l := range updated[i:j] {
			writeLine(&b, '+', l)
		}
		i = j
	}
	return []byte(b.String())
}

func wholeFile(orig, updated []line) *diff.Hunk {
	var b strings.Builder
	for _, l := range orig {
		writeLine(&b, '-', l)
	}
	for _, l := range updated {
		writeLine(&b, '+', l)
	}
	h := &diff.Hunk{
		OrigLines: int32(len(orig)),
		NewLines:  int32(len(updated)),
		Body:      []byte(b.String()),
	}
	if len(orig) > 0 {
		h.OrigStartLine = 1
	}
	if len(updated) > 0 {
		h.NewStartLine = 1
	}
	return h
}

func writeLine(b *strings.Builder, op byte, l line) {
	b.WriteByte(op)
	b.WriteString(l.text)
	b.WriteByte('\n')
	if !l.newline {
		b.WriteString(noNewline)
	}
}
