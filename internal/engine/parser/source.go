package parser

import (
	"sort"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
	"github.com/zeebo/xxh3"
)

// SourceFile is an immutable parsed Python file. The tree stays alive until
// Close so nodes handed out by Root remain valid.
type SourceFile struct {
	Path    string // slash-separated, relative to the project root
	AbsPath string
	Content []byte
	Hash    uint64
	Tree    *sitter.Tree

	lineStarts []int
}

// SyntaxError is one ERROR or MISSING node found in a parse tree.
type SyntaxError struct {
	Position Position `json:"position"`
	Message  string   `json:"message"`
}

func newSourceFile(path, absPath string, content []byte, tree *sitter.Tree) *SourceFile {
	f := &SourceFile{
		Path:    path,
		AbsPath: absPath,
		Content: content,
		Hash:    HashContent(content),
		Tree:    tree,
	}
	f.lineStarts = append(f.lineStarts, 0)
	for i, b := range content {
		if b == '\n' {
			f.lineStarts = append(f.lineStarts, i+1)
		}
	}
	return f
}

// HashContent is the content fingerprint used for change detection.
func HashContent(content []byte) uint64 {
	return xxh3.Hash(content)
}

func (f *SourceFile) Root() *sitter.Node {
	if f == nil || f.Tree == nil {
		return nil
	}
	return f.Tree.RootNode()
}

func (f *SourceFile) Close() {
	if f != nil && f.Tree != nil {
		f.Tree.Close()
		f.Tree = nil
	}
}

// Text returns the source text covered by node.
func (f *SourceFile) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(f.Content[node.StartByte():node.EndByte()])
}

// LineCount returns the number of lines, counting a trailing partial line.
func (f *SourceFile) LineCount() int {
	return len(f.lineStarts)
}

// Line returns line n (1-indexed) without its terminator.
func (f *SourceFile) Line(n int) string {
	if n < 1 || n > len(f.lineStarts) {
		return ""
	}
	start := f.lineStarts[n-1]
	end := len(f.Content)
	if n < len(f.lineStarts) {
		end = f.lineStarts[n] - 1
	}
	if end > start && f.Content[end-1] == '\r' {
		end--
	}
	return string(f.Content[start:end])
}

// PositionAt converts a byte offset to a Position.
func (f *SourceFile) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(f.Content) {
		offset = len(f.Content)
	}
	line := sort.Search(len(f.lineStarts), func(i int) bool { return f.lineStarts[i] > offset })
	start := f.lineStarts[line-1]
	return Position{
		File:   f.Path,
		Line:   line,
		Column: utf8.RuneCount(f.Content[start:offset]) + 1,
		Offset: offset,
	}
}

// OffsetAt converts a 1-indexed line and code-point column to a byte offset.
func (f *SourceFile) OffsetAt(line, column int) (int, bool) {
	if line < 1 || line > len(f.lineStarts) || column < 1 {
		return 0, false
	}
	offset := f.lineStarts[line-1]
	end := len(f.Content)
	if line < len(f.lineStarts) {
		end = f.lineStarts[line]
	}
	for col := 1; col < column; col++ {
		if offset >= end {
			return 0, false
		}
		_, size := utf8.DecodeRune(f.Content[offset:end])
		offset += size
	}
	return offset, true
}

// SpanOf returns the exact span of node.
func (f *SourceFile) SpanOf(node *sitter.Node) Span {
	return f.SpanBetween(int(node.StartByte()), int(node.EndByte()))
}

// SpanBetween returns a span for an explicit byte range.
func (f *SourceFile) SpanBetween(start, end int) Span {
	return Span{
		File:  f.Path,
		Start: f.PositionAt(start),
		End:   f.PositionAt(end),
	}
}

// HasErrors reports whether the parse produced ERROR or MISSING nodes.
func (f *SourceFile) HasErrors() bool {
	root := f.Root()
	return root == nil || root.HasError()
}

// SyntaxErrors lists up to limit error locations (limit <= 0 means all).
func (f *SourceFile) SyntaxErrors(limit int) []SyntaxError {
	root := f.Root()
	if root == nil {
		return []SyntaxError{{Position: Position{File: f.Path, Line: 1, Column: 1}, Message: "no parse tree"}}
	}
	var out []SyntaxError
	var visit func(node *sitter.Node)
	visit = func(node *sitter.Node) {
		if node == nil || (limit > 0 && len(out) >= limit) {
			return
		}
		switch {
		case node.IsMissing():
			out = append(out, SyntaxError{
				Position: f.PositionAt(int(node.StartByte())),
				Message:  "missing " + node.Kind(),
			})
			return
		case node.IsError():
			out = append(out, SyntaxError{
				Position: f.PositionAt(int(node.StartByte())),
				Message:  "unexpected syntax",
			})
			return
		}
		if !node.HasError() {
			return
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			visit(node.Child(i))
		}
	}
	visit(root)
	return out
}
