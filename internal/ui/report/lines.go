package report

import (
	"bytes"
	"strings"
)

// line is one source line without its terminator.
type line struct {
	text    string
	newline bool
}

// splitLines keeps track of whether each line was terminated, so a missing
// final newline survives into the diff.
func splitLines(content []byte) []line {
	var out []line
	for len(content) > 0 {
		i := bytes.IndexByte(content, '\n')
		if i < 0 {
			out = append(out, line{text: string(content)})
			break
		}
		out = append(out, line{text: string(content[:i]), newline: true})
		content = content[i+1:]
	}
	return out
}

// sourceLine returns the 1-based line n of content, or "".
func sourceLine(content []byte, n int) string {
	lines := splitLines(content)
	if n < 1 || n > len(lines) {
		return ""
	}
	return strings.TrimSuffix(lines[n-1].text, "\r")
}
