package etl

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// The fetch stage emits raw attribute objects, the flatten stage
// consumes Records. Field order is significant everywhere: it is the
// column order of the generated SQL tuple.

// Record is a single flat object read from a dataset file.
// Values stay as raw JSON until they are rendered.
type Record struct {
	Fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewRecord returns an empty record ready for Set calls.
func NewRecord() Record {
	return Record{Fields: orderedmap.New[string, json.RawMessage]()}
}

// Set adds or replaces a field. A replaced field keeps its original position.
func (r Record) Set(name string, value json.RawMessage) {
	r.Fields.Set(name, value)
}

// Len returns the number of fields.
func (r Record) Len() int {
	if r.Fields == nil {
		return 0
	}
	return r.Fields.Len()
}

// Values returns the field values in document order. Field names are dropped.
func (r Record) Values() []json.RawMessage {
	if r.Fields == nil {
		return nil
	}
	values := make([]json.RawMessage, 0, r.Fields.Len())
	for pair := r.Fields.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Value)
	}
	return values
}

// RecordSet is the content of one dataset file.
type RecordSet struct {
	Path    string
	Records []Record
	Dropped int // array elements that were not objects
}

// ── KeySet ─────────────────────────────────────────────────

// KeySet maps a group name (e.g. a state) to the keys queried for it.
// Groups and keys are iterated in the order they were added, which for a
// decoded file is document order.
type KeySet struct {
	groups *orderedmap.OrderedMap[string, []string]
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{groups: orderedmap.New[string, []string]()}
}

// KeySetFrom wraps an already decoded ordered map.
func KeySetFrom(groups *orderedmap.OrderedMap[string, []string]) *KeySet {
	if groups == nil {
		return NewKeySet()
	}
	return &KeySet{groups: groups}
}

// Add appends keys to a group, creating it if needed.
func (k *KeySet) Add(group string, keys ...string) {
	existing, _ := k.groups.Get(group)
	k.groups.Set(group, append(existing, keys...))
}

// Groups returns the number of groups.
func (k *KeySet) Groups() int {
	if k == nil || k.groups == nil {
		return 0
	}
	return k.groups.Len()
}

// Keys flattens every group into one sequence: group order, then in-group order.
func (k *KeySet) Keys() []string {
	if k == nil || k.groups == nil {
		return nil
	}
	var keys []string
	for pair := k.groups.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Value...)
	}
	return keys
}

// Len returns the total number of keys across all groups.
func (k *KeySet) Len() int {
	if k == nil || k.groups == nil {
		return 0
	}
	n := 0
	for pair := k.groups.Oldest(); pair != nil; pair = pair.Next() {
		n += len(pair.Value)
	}
	return n
}
