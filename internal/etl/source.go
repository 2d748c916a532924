package etl

import (
	"context"
	"encoding/json"
	"fmt"
)

// ── Source ──────────────────────────────────────────────────
// Local inputs never fail a run. A file that is absent, unparseable or
// of the wrong shape yields a Skipped outcome and contributes nothing;
// the caller decides whether to log it.
//
// The remote side is different: a query fault aborts the run.

// SkipReason classifies why an input or output contributed nothing.
type SkipReason string

const (
	SkipMissing       SkipReason = "missing"        // input file does not exist
	SkipMalformed     SkipReason = "malformed"      // content is not valid JSON
	SkipWrongShape    SkipReason = "wrong_shape"    // valid JSON, unexpected top-level type
	SkipOutputMissing SkipReason = "output_missing" // destination must pre-exist and does not
)

// Skip describes an input or output that was passed over.
type Skip struct {
	Path   string
	Reason SkipReason
	Err    error
}

func (s *Skip) String() string {
	if s.Err == nil {
		return fmt.Sprintf("%s: %s", s.Path, s.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", s.Path, s.Reason, s.Err)
}

// Outcome is the tagged result of reading a local input:
// either Ok with a value or Skipped with a reason.
type Outcome[T any] struct {
	Value   T
	Skipped *Skip
}

// Ok wraps a successfully read value.
func Ok[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

// Skipped builds an outcome that contributes nothing.
func Skipped[T any](path string, reason SkipReason, err error) Outcome[T] {
	return Outcome[T]{Skipped: &Skip{Path: path, Reason: reason, Err: err}}
}

// IsOk reports whether the input was read.
func (o Outcome[T]) IsOk() bool { return o.Skipped == nil }

// InputReader reads the two kinds of local input files.
// Implementations live in etl/sources/.
type InputReader interface {
	ReadKeySet(path string) Outcome[*KeySet]
	ReadRecords(path string) Outcome[RecordSet]
}

// AttributeQuerier fetches the attribute objects of every feature matching
// one key. An error is a remote fault and aborts the fetch.
type AttributeQuerier interface {
	QueryAttributes(ctx context.Context, key string) ([]json.RawMessage, error)
}
