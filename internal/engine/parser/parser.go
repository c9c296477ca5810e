package parser

import (
	"path/filepath"
	"pyrename/internal/core/errors"
	"pyrename/internal/shared/observability"
	"strings"
	"time"
)

// Parser turns Python source into SourceFiles. Safe for concurrent use.
type Parser struct {
	pool *ParserPool
}

func NewParser() *Parser {
	return &Parser{pool: NewParserPool(PythonLanguage())}
}

// Parse parses content; path is the project-relative name stored on spans.
func (p *Parser) Parse(path, absPath string, content []byte) (*SourceFile, error) {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues("python").Observe(time.Since(start).Seconds())
	}()

	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "parse failed"), errors.CtxPath, path)
	}
	return newSourceFile(filepath.ToSlash(path), absPath, content, tree), nil
}

// IsPythonPath reports whether path names a Python source file.
func IsPythonPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".py" || ext == ".pyi"
}

// LeasedParsers exposes the pool's live lease count.
func (p *Parser) LeasedParsers() int {
	return p.pool.Stats()
}
