package scope

import (
	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
)

// Resolve maps a position in the module to the binding of the identifier
// under it.
func (t *Tree) Resolve(pos parser.Position) (*Occurrence, error) {
	offset, ok := t.File.OffsetAt(pos.Line, pos.Column)
	if !ok {
		return nil, notFound("position outside file", pos)
	}
	occ := t.OccurrenceAt(offset)
	if occ == nil {
		return nil, notFound("no identifier at position", pos)
	}
	if occ.Binding == nil {
		return nil, errors.AddContext(notFound("no binding for name", pos), errors.CtxSymbol, occ.Name)
	}
	return occ, nil
}

func notFound(msg string, pos parser.Position) error {
	return errors.AddContext(errors.New(errors.CodeSymbolNotFound, msg), errors.CtxPosition, pos.String())
}
