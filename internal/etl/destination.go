package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ── Destination ────────────────────────────────────────────
// The fetch stage overwrites a JSON dataset file, the flatten stage
// appends to a SQL seed script. With RequireExisting set, a destination
// that does not already exist is left alone and the write is reported
// as skipped.

// ErrOutputMissing marks a destination that had to pre-exist and did not.
var ErrOutputMissing = errors.New("output file does not exist")

// WriteOutcome reports what a destination did.
type WriteOutcome struct {
	Path    string
	Bytes   int
	Skipped *Skip
}

// DatasetWriter persists a fetch result.
type DatasetWriter interface {
	WriteDataset(ctx context.Context, result FetchResult) (WriteOutcome, error)
}

// ScriptWriter persists a rendered tuple batch.
type ScriptWriter interface {
	AppendBatch(ctx context.Context, batch string) (WriteOutcome, error)
}

// JSONFileWriter overwrites Path with the fetch result as a JSON array.
type JSONFileWriter struct {
	Path            string
	RequireExisting bool
}

func (w *JSONFileWriter) WriteDataset(ctx context.Context, result FetchResult) (WriteOutcome, error) {
	out := WriteOutcome{Path: w.Path}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if skip := checkExisting(w.Path, w.RequireExisting); skip != nil {
		out.Skipped = skip
		return out, nil
	}

	if result == nil {
		result = FetchResult{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return out, fmt.Errorf("encode dataset: %w", err)
	}
	if err := os.WriteFile(w.Path, data, 0o644); err != nil {
		return out, fmt.Errorf("write dataset: %w", err)
	}
	out.Bytes = len(data)
	return out, nil
}

// SQLFileWriter appends batches to Path. Earlier content is never touched.
type SQLFileWriter struct {
	Path            string
	RequireExisting bool
}

func (w *SQLFileWriter) AppendBatch(ctx context.Context, batch string) (WriteOutcome, error) {
	out := WriteOutcome{Path: w.Path}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if skip := checkExisting(w.Path, w.RequireExisting); skip != nil {
		out.Skipped = skip
		return out, nil
	}
	if batch == "" {
		return out, nil
	}

	flags := os.O_WRONLY | os.O_APPEND
	if !w.RequireExisting {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(w.Path, flags, 0o644)
	if err != nil {
		return out, fmt.Errorf("open seed script: %w", err)
	}
	n, err := f.WriteString(batch)
	out.Bytes = n
	if err != nil {
		f.Close()
		return out, fmt.Errorf("append batch: %w", err)
	}
	if err := f.Close(); err != nil {
		return out, fmt.Errorf("close seed script: %w", err)
	}
	return out, nil
}

func checkExisting(path string, required bool) *Skip {
	if !required {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &Skip{Path: path, Reason: SkipOutputMissing, Err: ErrOutputMissing}
	}
	return nil
}
