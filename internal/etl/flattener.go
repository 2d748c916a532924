package etl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ── Flattener ──────────────────────────────────────────────
// Renders records as a SQL value list:
//
//	(1, 'x'),
//	(2, NULL);
//
// Field names are discarded; only values and their order matter.

// QuoteMode selects how string values become SQL literals.
type QuoteMode string

const (
	QuoteEscape   QuoteMode = "escape"   // 'it''s'
	QuotePostgres QuoteMode = "postgres" // pq.QuoteLiteral, E'..' when backslashes appear
	QuoteRaw      QuoteMode = "raw"      // 'it's', embedded quotes left as-is
)

// ParseQuoteMode validates a quote mode name. Empty means QuoteEscape.
func ParseQuoteMode(s string) (QuoteMode, error) {
	switch m := QuoteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return QuoteEscape, nil
	case QuoteEscape, QuotePostgres, QuoteRaw:
		return m, nil
	default:
		return "", fmt.Errorf("unknown quote mode %q: use escape, postgres or raw", s)
	}
}

// Flattener turns records into tuple batches.
type Flattener struct {
	Mode QuoteMode
}

// RenderValue renders one raw JSON value as a SQL literal.
func (f *Flattener) RenderValue(raw json.RawMessage) string {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return "NULL"
	}
	switch v[0] {
	case 'n':
		return "NULL"
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return f.quote(string(v))
		}
		return f.quote(s)
	case '{', '[':
		// Nested values are not expected in flat records; keep them as JSON text.
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return f.quote(string(v))
		}
		return f.quote(buf.String())
	default:
		// numbers, true, false
		return string(v)
	}
}

func (f *Flattener) quote(s string) string {
	switch f.Mode {
	case QuoteRaw:
		return "'" + s + "'"
	case QuotePostgres:
		return strings.TrimLeft(pq.QuoteLiteral(s), " ")
	default:
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
}

// RenderTuple renders one record as "(v1, v2, ...)".
func (f *Flattener) RenderTuple(r Record) string {
	values := r.Values()
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = f.RenderValue(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// RenderBatch joins tuples with ",\n" and terminates the last one with ";\n".
// No records renders an empty string.
func (f *Flattener) RenderBatch(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range records {
		b.WriteString(f.RenderTuple(r))
		if i < len(records)-1 {
			b.WriteString(",\n")
		} else {
			b.WriteString(";\n")
		}
	}
	return b.String()
}

// Flatten renders every record of every set, set order first, as one batch.
func (f *Flattener) Flatten(sets []RecordSet) string {
	var all []Record
	for _, s := range sets {
		all = append(all, s.Records...)
	}
	return f.RenderBatch(all)
}
