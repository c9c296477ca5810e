package transaction

import (
	"bytes"
	"fmt"
	"sort"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/planner"
)

// ApplyEdits splices edits into content from the highest offset down, so the
// offsets of the remaining edits stay valid. Every span must still hold its
// original text; anything else means the file changed after analysis.
func ApplyEdits(path string, content []byte, edits []planner.Edit) ([]byte, error) {
	ordered := append([]planner.Edit(nil), edits...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Span.Start.Offset > ordered[j].Span.Start.Offset
	})

	out := append([]byte(nil), content...)
	for _, e := range ordered {
		start, end := e.Span.Start.Offset, e.Span.End.Offset
		if start < 0 || end > len(out) || start > end {
			return nil, staleFile(path, e, "span outside file")
		}
		if !bytes.Equal(out[start:end], []byte(e.Original)) {
			return nil, staleFile(path, e, fmt.Sprintf("expected %q, found %q", e.Original, out[start:end]))
		}
		next := make([]byte, 0, len(out)-(end-start)+len(e.Replacement))
		next = append(next, out[:start]...)
		next = append(next, e.Replacement...)
		next = append(next, out[end:]...)
		out = next
	}
	return out, nil
}

func staleFile(path string, e planner.Edit, detail string) error {
	err := errors.New(errors.CodeApplyFailed, "file changed since analysis: "+detail)
	err = errors.AddContext(err, errors.CtxPath, path)
	return errors.AddContext(err, errors.CtxPosition, e.Span.Start.String())
}
