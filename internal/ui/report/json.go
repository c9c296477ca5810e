package report

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"pyrename/internal/core/app"
	"pyrename/internal/core/errors"
)

// Document is the JSON shape of one operation.
type Document struct {
	*app.Outcome
	Diff  string     `json:"diff,omitempty"`
	Error *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code     errors.ErrorCode       `json:"code"`
	Message  string                 `json:"message"`
	ExitCode int                    `json:"exit_code"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

func NewDocument(out *app.Outcome, err error) (*Document, error) {
	doc := &Document{Outcome: out}
	if out != nil && len(out.Changes) > 0 {
		body, derr := UnifiedDiff(out.Changes)
		if derr != nil {
			return nil, derr
		}
		doc.Diff = string(body)
	}
	if err != nil {
		doc.Error = errorInfo(err)
	}
	return doc, nil
}

func errorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{
		Code:     errors.CodeOf(err),
		Message:  err.Error(),
		ExitCode: errors.ExitCode(err),
	}
	var de *errors.DomainError
	if stderrors.As(err, &de) {
		info.Message = de.Message
		if de.Err != nil {
			info.Message += ": " + de.Err.Error()
		}
		info.Context = de.Context
	}
	return info
}

func writeJSON(w io.Writer, out *app.Outcome, err error) error {
	doc, derr := NewDocument(out, err)
	if derr != nil {
		return derr
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
