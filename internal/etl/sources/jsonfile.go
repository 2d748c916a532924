package sources

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"seedpipe/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads key sets and record files from local disk.
// Nothing here returns an error: a bad file is a Skipped outcome.

// JSONFileReader implements etl.InputReader.
type JSONFileReader struct{}

var _ etl.InputReader = JSONFileReader{}

// ReadKeySet reads an object mapping group names to arrays of key strings.
func (JSONFileReader) ReadKeySet(path string) etl.Outcome[*etl.KeySet] {
	data, skip := readJSON(path)
	if skip != nil {
		return etl.Outcome[*etl.KeySet]{Skipped: skip}
	}

	groups := orderedmap.New[string, []string]()
	if err := json.Unmarshal(data, groups); err != nil {
		return etl.Skipped[*etl.KeySet](path, etl.SkipWrongShape, err)
	}
	return etl.Ok(etl.KeySetFrom(groups))
}

// ReadRecords reads an array of objects. Elements that are not objects
// are dropped one by one; the rest keep their field order.
func (JSONFileReader) ReadRecords(path string) etl.Outcome[etl.RecordSet] {
	data, skip := readJSON(path)
	if skip != nil {
		return etl.Outcome[etl.RecordSet]{Skipped: skip}
	}

	if firstByte(data) != '[' {
		return etl.Skipped[etl.RecordSet](path, etl.SkipWrongShape, fmt.Errorf("top-level value is not an array"))
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return etl.Skipped[etl.RecordSet](path, etl.SkipWrongShape, err)
	}

	set := etl.RecordSet{Path: path, Records: make([]etl.Record, 0, len(elems))}
	for _, elem := range elems {
		rec, ok := toRecord(elem)
		if !ok {
			set.Dropped++
			continue
		}
		set.Records = append(set.Records, rec)
	}
	return etl.Ok(set)
}

// readJSON loads a file and checks that it holds valid JSON.
func readJSON(path string) ([]byte, *etl.Skip) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &etl.Skip{Path: path, Reason: etl.SkipMissing, Err: err}
	}
	if err != nil {
		return nil, &etl.Skip{Path: path, Reason: etl.SkipMalformed, Err: fmt.Errorf("read file: %w", err)}
	}
	if !json.Valid(data) {
		return nil, &etl.Skip{Path: path, Reason: etl.SkipMalformed, Err: fmt.Errorf("parse json: invalid document")}
	}
	return data, nil
}

// toRecord decodes one array element into an ordered record.
func toRecord(elem json.RawMessage) (etl.Record, bool) {
	if firstByte(elem) != '{' {
		return etl.Record{}, false
	}
	rec := etl.NewRecord()
	if err := json.Unmarshal(elem, rec.Fields); err != nil {
		return etl.Record{}, false
	}
	return rec, true
}

func firstByte(data []byte) byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0
	}
	return data[0]
}
