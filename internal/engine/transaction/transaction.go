package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pyrename/internal/core/errors"
	"pyrename/internal/engine/parser"
	"pyrename/internal/engine/planner"
	"pyrename/internal/engine/verify"
	"pyrename/internal/shared/observability"
)

type State string

const (
	StatePlanned            State = "planned"
	StateSnapshotted        State = "snapshotted"
	StateVerified           State = "verified"
	StateVerificationFailed State = "verification_failed"
	StateCommitted          State = "committed"
	StateDiscarded          State = "discarded"
	StateApplyFailed        State = "apply_failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateDiscarded || s == StateApplyFailed
}

var transitions = map[State][]State{
	StatePlanned:            {StateSnapshotted, StateDiscarded, StateApplyFailed},
	StateSnapshotted:        {StateVerified, StateVerificationFailed, StateDiscarded},
	StateVerified:           {StateCommitted, StateDiscarded, StateApplyFailed},
	StateVerificationFailed: {StateDiscarded},
}

type Options struct {
	// SnapshotDir is the parent of per-transaction snapshot directories.
	SnapshotDir string
	Workers     int
}

// rename is swapped in tests to simulate commit failures.
var rename = os.Rename

// Transaction drives one edit plan through snapshot, verification and
// commit. It is not safe for concurrent use.
type Transaction struct {
	ID    string
	Root  string
	State State

	plan   *planner.Plan
	opts   Options
	snap   *Snapshot
	logger *slog.Logger
}

func Begin(root string, plan *planner.Plan, opts Options) *Transaction {
	return &Transaction{
		ID:     uuid.NewString(),
		Root:   root,
		State:  StatePlanned,
		plan:   plan,
		opts:   opts,
		logger: slog.Default().With("component", "transaction"),
	}
}

func (tx *Transaction) transition(to State) error {
	for _, next := range transitions[tx.State] {
		if next == to {
			tx.logger.Debug("state transition", "id", tx.ID, "from", tx.State, "to", to)
			tx.State = to
			return nil
		}
	}
	return errors.AddContext(
		errors.New(errors.CodeInternal, fmt.Sprintf("invalid transition %s -> %s", tx.State, to)),
		errors.CtxOperation, tx.ID)
}

// Changes returns the per-file before/after contents once snapshotted.
func (tx *Transaction) Changes() []*FileChange {
	if tx.snap == nil {
		return nil
	}
	return tx.snap.Changes
}

// Snapshot copies the edited files into a private area and applies the plan
// there.
func (tx *Transaction) Snapshot(ctx context.Context) error {
	ctx, span := observability.Tracer.Start(ctx, "transaction.Snapshot")
	defer span.End()

	if tx.State != StatePlanned {
		return tx.transition(StateSnapshotted)
	}
	snap, err := createSnapshot(ctx, tx.ID, tx.Root, tx.opts.SnapshotDir, tx.opts.Workers, tx.plan)
	if err != nil {
		_ = tx.transition(StateApplyFailed)
		return err
	}
	tx.snap = snap
	span.SetAttributes(attribute.String("snapshot", snap.ID), attribute.Int("files", len(snap.Changes)))
	return tx.transition(StateSnapshotted)
}

// Verify gates the snapshot. A failed gate moves the transaction to
// VerificationFailed and returns a VERIFICATION_FAILED error carrying the
// gate's output.
func (tx *Transaction) Verify(ctx context.Context, v *verify.Verifier, level verify.Level) (*verify.Result, error) {
	if tx.State != StateSnapshotted {
		return nil, tx.transition(StateVerified)
	}
	res, err := v.Verify(ctx, level, tx.snap.Target(tx.Root))
	if err != nil {
		return nil, err
	}
	if !res.Passed {
		_ = tx.transition(StateVerificationFailed)
		err := errors.New(errors.CodeVerificationFailed, fmt.Sprintf("%s verification failed", res.Level))
		err = errors.AddContext(err, errors.CtxLevel, string(res.Level))
		return res, errors.AddContext(err, errors.CtxOperation, tx.ID)
	}
	return res, tx.transition(StateVerified)
}

// Commit moves every snapshot file over its workspace counterpart. Files are
// staged next to their targets first so each replacement is a single rename.
// If any step fails the files already replaced are restored.
func (tx *Transaction) Commit(ctx context.Context) (err error) {
	_, span := observability.Tracer.Start(ctx, "transaction.Commit")
	defer span.End()

	if tx.State != StateVerified {
		return tx.transition(StateCommitted)
	}
	changes := tx.snap.Changes
	staged := make([]string, len(changes))
	defer func() {
		for _, name := range staged {
			if name != "" {
				_ = os.Remove(name)
			}
		}
		if err != nil {
			_ = tx.transition(StateApplyFailed)
			_ = tx.snap.release()
		}
	}()

	for i, c := range changes {
		name, err := stage(c)
		if err != nil {
			return err
		}
		staged[i] = name
	}

	for _, c := range changes {
		current, err := os.ReadFile(c.AbsPath)
		if err != nil {
			return applyFailed(err, "re-read target before commit", c.Path)
		}
		if parser.HashContent(current) != c.Hash {
			return errors.AddContext(
				errors.New(errors.CodeApplyFailed, "file was modified during the operation"),
				errors.CtxPath, c.Path)
		}
	}

	var replaced []*FileChange
	for i, c := range changes {
		if err := rename(staged[i], c.AbsPath); err != nil {
			failure := applyFailed(err, "replace file", c.Path)
			if restoreErr := restore(replaced); restoreErr != nil {
				failure = errors.AddContext(failure, "restore", restoreErr.Error())
			}
			return failure
		}
		staged[i] = ""
		replaced = append(replaced, c)
	}

	if err := tx.transition(StateCommitted); err != nil {
		return err
	}
	if err := tx.snap.release(); err != nil {
		tx.logger.Warn("snapshot cleanup failed", "id", tx.ID, "error", err)
	}
	tx.logger.Info("rename committed", "id", tx.ID, "files", len(changes))
	return nil
}

// Discard releases the snapshot. It is a no-op after commit and safe to defer.
func (tx *Transaction) Discard() error {
	if tx.State == StateCommitted {
		return nil
	}
	if !tx.State.Terminal() {
		_ = tx.transition(StateDiscarded)
	}
	if tx.snap == nil {
		return nil
	}
	return tx.snap.release()
}

func stage(c *FileChange) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(c.AbsPath), ".pyrename-*.tmp")
	if err != nil {
		return "", applyFailed(err, "create staged file", c.Path)
	}
	name := tmp.Name()
	writeErr := error(nil)
	if _, err := tmp.Write(c.Updated); err != nil {
		writeErr = err
	}
	if err := tmp.Chmod(c.Mode); err != nil && writeErr == nil {
		writeErr = err
	}
	if err := tmp.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		_ = os.Remove(name)
		return "", applyFailed(writeErr, "write staged file", c.Path)
	}
	return name, nil
}

// restore puts the original bytes back into files that were already replaced.
func restore(replaced []*FileChange) error {
	var failed []string
	for _, c := range replaced {
		back := &FileChange{Path: c.Path, AbsPath: c.AbsPath, Updated: c.Original, Mode: c.Mode}
		name, err := stage(back)
		if err == nil {
			err = rename(name, c.AbsPath)
			if err != nil {
				_ = os.Remove(name)
			}
		}
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", c.Path, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not restore %s", strings.Join(failed, "; "))
	}
	return nil
}

func applyFailed(err error, msg, path string) error {
	return errors.AddContext(errors.Wrap(err, errors.CodeApplyFailed, msg), errors.CtxPath, path)
}
