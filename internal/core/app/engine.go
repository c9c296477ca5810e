package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pyrename/internal/core/config"
	"pyrename/internal/core/errors"
	"pyrename/internal/core/ports"
	"pyrename/internal/data/history"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/planner"
	"pyrename/internal/engine/references"
	"pyrename/internal/engine/transaction"
	"pyrename/internal/engine/verify"
	"pyrename/internal/shared/observability"
	"pyrename/internal/shared/util"
)

type Command string

const (
	CommandAnalyze Command = "analyze"
	CommandDryRun  Command = "dry-run"
	CommandApply   Command = "apply"
)

// Request names the rename: the cursor, the new name and how to gate it.
// Position.File may be absolute or relative to the project root.
type Request struct {
	Position  parser.Position
	NewName   string
	Level     verify.Level
	Confirmed bool
	// Preview makes Analyze compute the edited contents in memory so the
	// caller can render a diff.
	Preview bool
}

// Outcome is what one operation produced. Later fields are only set when
// the operation got that far.
type Outcome struct {
	ID           string                    `json:"id"`
	Command      Command                   `json:"command"`
	State        transaction.State         `json:"state,omitempty"`
	Report       *planner.ImpactReport     `json:"report,omitempty"`
	Edits        []planner.Edit            `json:"edits,omitempty"`
	Changes      []*transaction.FileChange `json:"-"`
	Verification *verify.Result            `json:"verification,omitempty"`
	Started      time.Time                 `json:"started"`
	Finished     time.Time                 `json:"finished"`
}

type Options struct {
	Config *config.Config
	Paths  config.ResolvedPaths
	// Journal records dry-run and apply operations. Optional.
	Journal ports.Journal
}

// Engine runs rename operations against one project.
type Engine struct {
	cfg          *config.Config
	root         string
	index        *ProjectIndex
	verifier     *verify.Verifier
	thresholds   planner.Thresholds
	defaultLevel verify.Level
	txOpts       transaction.Options
	journal      ports.Journal
	logger       *slog.Logger
}

func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	level, err := verify.ParseLevel(cfg.Verify.DefaultLevel)
	if err != nil {
		return nil, err
	}

	p := parser.NewParser()
	index, err := NewProjectIndex(p, IndexOptions{
		Root:            opts.Paths.ProjectRoot,
		SourceRoots:     opts.Paths.SourceRoots,
		ExcludeDirs:     cfg.Exclude.Dirs,
		ExcludeFiles:    cfg.Exclude.Files,
		Workers:         cfg.Analysis.Workers,
		StrictReexports: cfg.Analysis.Strict(),
		CacheSize:       cfg.Analysis.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	verifier := verify.New(p, verify.Options{
		TestsCommand:     cfg.Verify.TestsCommand,
		TypecheckCommand: cfg.Verify.TypecheckCommand,
		Timeout:          cfg.Verify.Timeout,
	})
	return &Engine{
		cfg:          cfg,
		root:         opts.Paths.ProjectRoot,
		index:        index,
		verifier:     verifier,
		thresholds:   planner.Thresholds{MaxFiles: cfg.Risk.MaxFiles, MaxEdits: cfg.Risk.MaxEdits},
		defaultLevel: level,
		txOpts:       transaction.Options{SnapshotDir: opts.Paths.SnapshotDir, Workers: cfg.Analysis.Workers},
		journal:      opts.Journal,
		logger:       slog.Default().With("component", "engine"),
	}, nil
}

// Index exposes the project index, mostly for watch mode and tests.
func (e *Engine) Index() *ProjectIndex {
	return e.index
}

// Analyze produces the impact report without touching the disk.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := e.startSpan(ctx, CommandAnalyze, req)
	defer span.End()

	out := newOutcome(CommandAnalyze, uuid.NewString())
	plan, err := e.plan(ctx, req)
	if err == nil {
		out.setPlan(plan)
		out.State = transaction.StatePlanned
		if req.Preview {
			out.Changes, err = e.preview(plan)
		}
	}
	return out, e.finish(out, req, err)
}

// DryRun plans, snapshots and verifies, then discards the snapshot. The
// workspace is never written.
func (e *Engine) DryRun(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := e.startSpan(ctx, CommandDryRun, req)
	defer span.End()

	req.Level = e.level(req.Level)
	out := newOutcome(CommandDryRun, "")
	plan, err := e.plan(ctx, req)
	if err != nil {
		return out, e.finish(out, req, err)
	}
	out.setPlan(plan)

	tx := transaction.Begin(e.root, plan, e.txOpts)
	out.ID = tx.ID
	defer e.discard(tx)

	err = e.snapshotAndVerify(ctx, tx, req.Level, out)
	out.State = tx.State
	return out, e.finish(out, req, err)
}

// Apply runs the full lifecycle and commits the edits when verification
// passes. Large plans need req.Confirmed.
func (e *Engine) Apply(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := e.startSpan(ctx, CommandApply, req)
	defer span.End()

	req.Level = e.level(req.Level)
	out := newOutcome(CommandApply, "")
	plan, err := e.plan(ctx, req)
	if err != nil {
		return out, e.finish(out, req, err)
	}
	out.setPlan(plan)

	if plan.Report.NeedsConfirmation() && !req.Confirmed {
		err := errors.New(errors.CodeConfirmationRequired, fmt.Sprintf(
			"rename touches %d files with %d edits; confirm to apply",
			plan.Report.FilesAffected, plan.Report.EditsEstimated))
		out.State = transaction.StatePlanned
		return out, e.finish(out, req, errors.AddContext(err, errors.CtxSymbol, plan.Report.Symbol.Name))
	}

	tx := transaction.Begin(e.root, plan, e.txOpts)
	out.ID = tx.ID
	defer e.discard(tx)

	err = e.snapshotAndVerify(ctx, tx, req.Level, out)
	if err == nil {
		err = tx.Commit(ctx)
	}
	if tx.State == transaction.StateCommitted {
		e.index.Invalidate(plan.Report.AffectedFiles()...)
	}
	out.State = tx.State
	return out, e.finish(out, req, err)
}

func (e *Engine) plan(ctx context.Context, req Request) (*planner.Plan, error) {
	if err := planner.ValidateName("", req.NewName); err != nil {
		return nil, err
	}
	pos, err := e.position(req.Position)
	if err != nil {
		return nil, err
	}
	g, err := e.index.Graph(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	target, err := references.Locate(g, pos)
	observability.AnalysisDuration.WithLabelValues("locate").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	start = time.Now()
	res, err := references.NewCollector(g, e.cfg.Analysis.Workers).Collect(ctx, target, req.NewName)
	observability.AnalysisDuration.WithLabelValues("collect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "collect references")
	}

	start = time.Now()
	plan, err := planner.Build(res, req.NewName, e.thresholds)
	observability.AnalysisDuration.WithLabelValues("plan").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	r := plan.Report
	e.logger.Info("rename planned",
		"symbol", r.Symbol.Name,
		"module", r.Symbol.Module,
		"new_name", req.NewName,
		"files", r.FilesAffected,
		"edits", r.EditsEstimated,
		"risk", r.Risk,
		"warnings", len(r.Warnings))
	return plan, nil
}

// preview applies the plan to in-memory copies of the affected files.
func (e *Engine) preview(plan *planner.Plan) ([]*transaction.FileChange, error) {
	byFile := plan.ByFile()
	changes := make([]*transaction.FileChange, 0, len(byFile))
	for _, rel := range util.SortedStringKeys(byFile) {
		abs := filepath.Join(e.root, filepath.FromSlash(rel))
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "read file for preview"), errors.CtxPath, rel)
		}
		updated, err := transaction.ApplyEdits(rel, content, byFile[rel])
		if err != nil {
			return nil, err
		}
		changes = append(changes, &transaction.FileChange{
			Path:     rel,
			AbsPath:  abs,
			Original: content,
			Updated:  updated,
			Hash:     parser.HashContent(content),
			Edits:    len(byFile[rel]),
		})
	}
	return changes, nil
}

func (e *Engine) snapshotAndVerify(ctx context.Context, tx *transaction.Transaction, level verify.Level, out *Outcome) error {
	if err := tx.Snapshot(ctx); err != nil {
		return err
	}
	out.Changes = tx.Changes()
	res, err := tx.Verify(ctx, e.verifier, level)
	out.Verification = res
	return err
}

func (e *Engine) discard(tx *transaction.Transaction) {
	if err := tx.Discard(); err != nil {
		e.logger.Warn("snapshot cleanup failed", "id", tx.ID, "error", err)
	}
}

// position makes the cursor file project-relative.
func (e *Engine) position(pos parser.Position) (parser.Position, error) {
	file := strings.TrimSpace(pos.File)
	if file == "" {
		return pos, errors.New(errors.CodeValidationError, "position has no file")
	}
	rel, ok := util.RelativeTo(e.root, file)
	if !ok || rel == "" {
		return pos, errors.AddContext(
			errors.New(errors.CodeValidationError, "file is outside the project root"),
			errors.CtxPath, file)
	}
	if pos.Line < 1 || pos.Column < 1 {
		return pos, errors.AddContext(
			errors.New(errors.CodeValidationError, "line and column are 1-based"),
			errors.CtxPosition, pos.String())
	}
	pos.File = rel
	return pos, nil
}

func (e *Engine) level(l verify.Level) verify.Level {
	if l == "" {
		return e.defaultLevel
	}
	return l
}

func (e *Engine) startSpan(ctx context.Context, cmd Command, req Request) (context.Context, trace.Span) {
	return observability.Tracer.Start(ctx, "engine."+string(cmd), trace.WithAttributes(
		attribute.String("position", req.Position.String()),
		attribute.String("new_name", req.NewName),
	))
}

// finish records metrics and the journal entry, then hands err back.
func (e *Engine) finish(out *Outcome, req Request, err error) error {
	out.Finished = time.Now()
	state := string(out.State)
	if err != nil && state == "" {
		state = "failed"
	}
	observability.OperationsTotal.WithLabelValues(string(out.Command), state).Inc()

	if err != nil {
		e.logger.Debug("operation failed", "command", out.Command, "id", out.ID, "code", errors.CodeOf(err), "error", err)
	}
	if out.Command == CommandAnalyze || e.journal == nil {
		return err
	}

	entry := history.Entry{
		ID:       out.ID,
		Command:  string(out.Command),
		NewName:  req.NewName,
		Level:    string(req.Level),
		State:    state,
		Started:  out.Started,
		Finished: out.Finished,
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if r := out.Report; r != nil {
		entry.Symbol = r.Symbol.Name
		entry.Module = r.Symbol.Module
		entry.FilesAffected = r.FilesAffected
		entry.Edits = r.EditsEstimated
		entry.Files = r.AffectedFiles()
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := e.journal.Record(entry); jerr != nil {
		e.logger.Warn("failed to journal operation", "id", entry.ID, "error", jerr)
	}
	return err
}

func newOutcome(cmd Command, id string) *Outcome {
	return &Outcome{ID: id, Command: cmd, Started: time.Now()}
}

func (o *Outcome) setPlan(plan *planner.Plan) {
	o.Report = plan.Report
	o.Edits = plan.Edits
}
