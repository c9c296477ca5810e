package planner

import (
	"fmt"
	"sort"
	"unicode"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/graph"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/references"
	"pyrename/internal/shared/observability"
)

type Risk string

const (
	RiskNormal Risk = "normal"
	RiskLarge  Risk = "large"
)

// Thresholds above which a plan is considered large and needs confirmation.
type Thresholds struct {
	MaxFiles int
	MaxEdits int
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxFiles: 50, MaxEdits: 500}
}

// Edit replaces the bytes of one Span. Original is the text the span must
// still hold when the edit is applied.
type Edit struct {
	File        string      `json:"file"`
	Span        parser.Span `json:"span"`
	Original    string      `json:"original"`
	Replacement string      `json:"replacement"`
}

// FileReferences groups the references found in one file.
type FileReferences struct {
	File       string                 `json:"file"`
	Module     string                 `json:"module"`
	References []references.Reference `json:"references"`
}

type ImpactReport struct {
	Symbol         references.Symbol     `json:"symbol"`
	NewName        string                `json:"new_name"`
	Files          []FileReferences      `json:"files"`
	FilesAffected  int                   `json:"files_affected"`
	EditsEstimated int                   `json:"edits_estimated"`
	Risk           Risk                  `json:"risk"`
	Observers      map[string][]string   `json:"observers"`
	Warnings       []graph.Warning       `json:"warnings"`
	Conflicts      []references.Conflict `json:"conflicts"`
}

// NeedsConfirmation reports whether apply must be confirmed by the caller.
func (r *ImpactReport) NeedsConfirmation() bool {
	return r.Risk == RiskLarge
}

// AffectedFiles lists the files that receive at least one edit.
func (r *ImpactReport) AffectedFiles() []string {
	var out []string
	for _, f := range r.Files {
		for _, ref := range f.References {
			if !ref.Alias {
				out = append(out, f.File)
				break
			}
		}
	}
	return out
}

type Plan struct {
	Report *ImpactReport
	Edits  []Edit
}

// ByFile groups the edits per file, each group in ascending offset order.
func (p *Plan) ByFile() map[string][]Edit {
	out := make(map[string][]Edit)
	for _, e := range p.Edits {
		out[e.File] = append(out[e.File], e)
	}
	return out
}

// Build turns collected references into a validated edit plan.
func Build(res *references.Result, newName string, th Thresholds) (*Plan, error) {
	if err := ValidateName(res.Symbol.Name, newName); err != nil {
		return nil, err
	}
	if len(res.References) == 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeSymbolNotFound, "symbol has no references"),
			errors.CtxSymbol, res.Symbol.Name)
	}

	report := &ImpactReport{
		Symbol:    res.Symbol,
		NewName:   newName,
		Observers: res.Observations,
		Warnings:  res.Warnings,
		Conflicts: res.Conflicts,
	}
	plan := &Plan{Report: report}

	for _, ref := range res.References {
		n := len(report.Files)
		if n == 0 || report.Files[n-1].File != ref.Span.File {
			report.Files = append(report.Files, FileReferences{File: ref.Span.File, Module: ref.Module})
			n++
		}
		report.Files[n-1].References = append(report.Files[n-1].References, ref)

		// Alias spellings belong to the importing module and never change.
		if ref.Alias {
			continue
		}
		plan.Edits = append(plan.Edits, Edit{
			File:        ref.Span.File,
			Span:        ref.Span,
			Original:    ref.Text,
			Replacement: newName,
		})
	}

	sort.SliceStable(plan.Edits, func(i, j int) bool {
		return plan.Edits[i].Span.Before(plan.Edits[j].Span)
	})
	if err := checkOverlaps(plan.Edits); err != nil {
		return nil, err
	}

	report.EditsEstimated = len(plan.Edits)
	report.FilesAffected = len(report.AffectedFiles())
	report.Risk = RiskNormal
	if report.FilesAffected > th.MaxFiles || report.EditsEstimated > th.MaxEdits {
		report.Risk = RiskLarge
	}
	if report.Observers == nil {
		report.Observers = make(map[string][]string)
	}

	observability.EditsPlanned.Add(float64(len(plan.Edits)))
	return plan, nil
}

// checkOverlaps expects edits sorted by file and offset.
func checkOverlaps(edits []Edit) error {
	for i := 1; i < len(edits); i++ {
		prev, cur := edits[i-1], edits[i]
		if prev.Span.Overlaps(cur.Span) {
			err := errors.New(errors.CodeOverlappingEdits,
				fmt.Sprintf("edit at %s overlaps edit at %s", cur.Span.Start, prev.Span.Start))
			err = errors.AddContext(err, errors.CtxPath, cur.File)
			return errors.AddContext(err, errors.CtxPosition, cur.Span.Start.String())
		}
	}
	return nil
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// IsIdentifier reports whether name is a valid Python identifier that is not
// a hard keyword. Soft keywords such as match or type are allowed.
func IsIdentifier(name string) bool {
	if name == "" || keywords[name] {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r) || unicode.Is(unicode.Nl, r):
		case i > 0 && (unicode.IsDigit(r) || unicode.In(r, unicode.Mn, unicode.Mc, unicode.Pc)):
		default:
			return false
		}
	}
	return true
}

func ValidateName(oldName, newName string) error {
	switch {
	case keywords[newName]:
		return errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("%q is a Python keyword", newName)),
			errors.CtxSymbol, oldName)
	case !IsIdentifier(newName):
		return errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("%q is not a valid Python identifier", newName)),
			errors.CtxSymbol, oldName)
	case newName == oldName:
		return errors.AddContext(
			errors.New(errors.CodeValidationError, "new name equals the current name"),
			errors.CtxSymbol, oldName)
	}
	return nil
}
