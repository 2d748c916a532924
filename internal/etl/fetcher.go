package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// FetchResult is the ordered list of attribute objects gathered by a fetch.
type FetchResult []json.RawMessage

// Fetcher issues one query per key, strictly in key order, and
// concatenates the attribute objects of every response.
type Fetcher struct {
	Query  AttributeQuerier
	Logger *slog.Logger
}

// Fetch runs the query loop. An empty KeySet performs no queries.
// The first remote fault stops the loop and is returned with the key it
// happened on; nothing gathered so far is returned in that case.
func (f *Fetcher) Fetch(ctx context.Context, ks *KeySet) (FetchResult, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := FetchResult{}
	for _, key := range ks.Keys() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Info("fetching key", "key", key)

		attrs, err := f.Query.QueryAttributes(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("query key %q: %w", key, err)
		}
		logger.Debug("key fetched", "key", key, "features", len(attrs))
		result = append(result, attrs...)
	}
	return result, nil
}
