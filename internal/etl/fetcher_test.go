package etl

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier answers from a fixed table and records the keys it was asked for.
type fakeQuerier struct {
	responses map[string][]json.RawMessage
	failOn    string
	calls     []string
}

func (q *fakeQuerier) QueryAttributes(_ context.Context, key string) ([]json.RawMessage, error) {
	q.calls = append(q.calls, key)
	if key == q.failOn {
		return nil, errors.New("connection refused")
	}
	return q.responses[key], nil
}

func raws(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestFetch_EmptyKeySetMakesNoCalls(t *testing.T) {
	q := &fakeQuerier{}
	f := &Fetcher{Query: q}

	result, err := f.Fetch(context.Background(), NewKeySet())
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Empty(t, q.calls)

	ks := NewKeySet()
	ks.Add("AL")
	ks.Add("AK")
	result, err = f.Fetch(context.Background(), ks)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Empty(t, q.calls)
}

func TestFetch_ConcatenatesInGroupThenKeyOrder(t *testing.T) {
	q := &fakeQuerier{responses: map[string][]json.RawMessage{
		"k1": raws(`{"id":1}`, `{"id":2}`),
		"k2": nil,
		"k3": raws(`{"id":3}`),
		"k4": raws(`{"id":4}`),
	}}
	ks := NewKeySet()
	ks.Add("second-alphabetically", "k1", "k2")
	ks.Add("first-alphabetically", "k3")
	ks.Add("second-alphabetically", "k4")

	result, err := (&Fetcher{Query: q}).Fetch(context.Background(), ks)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2", "k4", "k3"}, q.calls)
	assert.Equal(t, FetchResult(raws(`{"id":1}`, `{"id":2}`, `{"id":4}`, `{"id":3}`)), result)
}

func TestFetch_RemoteFaultAborts(t *testing.T) {
	q := &fakeQuerier{
		responses: map[string][]json.RawMessage{"a": raws(`{}`)},
		failOn:    "b",
	}
	ks := NewKeySet()
	ks.Add("g", "a", "b", "c")

	result, err := (&Fetcher{Query: q}).Fetch(context.Background(), ks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
	assert.Nil(t, result)
	assert.Equal(t, []string{"a", "b"}, q.calls, "no key after the failing one is queried")
}

func TestFetch_CancelledContext(t *testing.T) {
	q := &fakeQuerier{}
	ks := NewKeySet()
	ks.Add("g", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Fetcher{Query: q}).Fetch(ctx, ks)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, q.calls)
}

func TestKeySet_Counts(t *testing.T) {
	ks := NewKeySet()
	assert.Equal(t, 0, ks.Len())
	ks.Add("a", "1", "2")
	ks.Add("b", "3")
	assert.Equal(t, 2, ks.Groups())
	assert.Equal(t, 3, ks.Len())
	assert.Equal(t, []string{"1", "2", "3"}, ks.Keys())

	var nilSet *KeySet
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.Keys())
}
