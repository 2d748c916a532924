package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ── Engine ─────────────────────────────────────────────────
// Orchestrates each stage: read local input → process → write output.

// RunKind names a pipeline stage.
type RunKind string

const (
	RunFetch   RunKind = "fetch"
	RunFlatten RunKind = "flatten"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped" // ran to completion but the output was not written
	StatusError   = "error"
)

// RunResult is the outcome of one stage run.
type RunResult struct {
	Kind        RunKind       `json:"kind"`
	Status      string        `json:"status"`
	Inputs      []string      `json:"inputs"`
	Output      string        `json:"output"`
	RowsRead    int           `json:"rowsRead"` // keys queried, or records read
	RowsWritten int           `json:"rowsWritten"`
	Bytes       int           `json:"bytes"`
	Dropped     int           `json:"dropped,omitempty"`
	Skipped     []*Skip       `json:"-"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunLog is a historical record of a stage run.
type RunLog struct {
	ID          string    `json:"id"`
	Kind        RunKind   `json:"kind"`
	Inputs      []string  `json:"inputs"`
	Output      string    `json:"output"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// Engine runs the fetch and flatten stages.
type Engine struct {
	Inputs    InputReader
	Fetcher   *Fetcher
	Flattener *Flattener
	Dataset   DatasetWriter
	Script    ScriptWriter
	Logger    *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// RunFetch reads the key set at keySetPath, queries every key and
// overwrites the dataset file. An unreadable key set counts as empty,
// so the dataset is still rewritten (as an empty array).
func (e *Engine) RunFetch(ctx context.Context, keySetPath string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Kind: RunFetch, Inputs: []string{keySetPath}}
	log := e.logger().With("run", RunFetch)

	// 1. Read key set.
	ks := NewKeySet()
	outcome := e.Inputs.ReadKeySet(keySetPath)
	if outcome.IsOk() {
		ks = outcome.Value
	} else {
		log.Warn("key set skipped", "path", keySetPath, "reason", outcome.Skipped.Reason, "err", outcome.Skipped.Err)
		result.Skipped = append(result.Skipped, outcome.Skipped)
	}
	result.RowsRead = ks.Len()

	// 2. Query every key.
	attrs, err := e.Fetcher.Fetch(ctx, ks)
	if err != nil {
		return e.fail(result, start, fmt.Errorf("fetch: %w", err))
	}

	// 3. Persist.
	written, err := e.Dataset.WriteDataset(ctx, attrs)
	result.Output = written.Path
	if err != nil {
		return e.fail(result, start, fmt.Errorf("write: %w", err))
	}
	e.finish(log, result, written, len(attrs), start)
	return result, nil
}

// RunFlatten reads every record file in order and appends one batch
// built from all of them to the seed script.
func (e *Engine) RunFlatten(ctx context.Context, paths []string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Kind: RunFlatten, Inputs: paths}
	log := e.logger().With("run", RunFlatten)

	// 1. Read record files.
	var sets []RecordSet
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return e.fail(result, start, err)
		}
		outcome := e.Inputs.ReadRecords(p)
		if !outcome.IsOk() {
			log.Warn("record file skipped", "path", p, "reason", outcome.Skipped.Reason, "err", outcome.Skipped.Err)
			result.Skipped = append(result.Skipped, outcome.Skipped)
			continue
		}
		if outcome.Value.Dropped > 0 {
			log.Warn("non-object elements dropped", "path", p, "count", outcome.Value.Dropped)
		}
		result.RowsRead += len(outcome.Value.Records)
		result.Dropped += outcome.Value.Dropped
		sets = append(sets, outcome.Value)
	}

	// 2. Render.
	batch := e.Flattener.Flatten(sets)

	// 3. Append.
	written, err := e.Script.AppendBatch(ctx, batch)
	result.Output = written.Path
	if err != nil {
		return e.fail(result, start, fmt.Errorf("write: %w", err))
	}
	e.finish(log, result, written, result.RowsRead, start)
	return result, nil
}

func (e *Engine) finish(log *slog.Logger, result *RunResult, written WriteOutcome, rows int, start time.Time) {
	result.Duration = time.Since(start)
	if written.Skipped != nil {
		log.Warn("output not written", "path", written.Path, "reason", written.Skipped.Reason)
		result.Skipped = append(result.Skipped, written.Skipped)
		result.Status = StatusSkipped
		return
	}
	result.Status = StatusSuccess
	result.RowsWritten = rows
	result.Bytes = written.Bytes
	log.Info("run complete", "output", written.Path, "rows", rows, "bytes", written.Bytes, "duration", result.Duration)
}

func (e *Engine) fail(result *RunResult, start time.Time, err error) (*RunResult, error) {
	result.Status = StatusError
	result.Error = err.Error()
	result.Duration = time.Since(start)
	return result, err
}
