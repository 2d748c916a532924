package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"seedpipe/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Queries an ArcGIS-style feature service, one GET per key.
// The response shape is {"features": [{"attributes": {...}}, ...]};
// anything else that is still valid JSON counts as "no data".

// KeyPlaceholder is replaced by the (query-escaped) key in a query template.
const KeyPlaceholder = "${key}"

// FeatureQuery implements etl.AttributeQuerier.
type FeatureQuery struct {
	BaseURL  string
	Template string
	Client   *http.Client
	Limiter  *rate.Limiter // nil means unlimited
}

var _ etl.AttributeQuerier = (*FeatureQuery)(nil)

// NewFeatureQuery builds a client. A zero timeout waits indefinitely and a
// zero rps sends requests back to back.
func NewFeatureQuery(baseURL, template string, timeout time.Duration, rps float64) *FeatureQuery {
	q := &FeatureQuery{
		BaseURL:  baseURL,
		Template: template,
		Client:   &http.Client{Timeout: timeout},
	}
	if rps > 0 {
		q.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return q
}

// URL returns the full request URL for key.
func (q *FeatureQuery) URL(key string) string {
	return q.BaseURL + "?" + ExpandTemplate(q.Template, key)
}

// ExpandTemplate substitutes key into every placeholder of tmpl.
func ExpandTemplate(tmpl, key string) string {
	return strings.ReplaceAll(tmpl, KeyPlaceholder, url.QueryEscape(key))
}

func (q *FeatureQuery) QueryAttributes(ctx context.Context, key string) ([]json.RawMessage, error) {
	if q.Limiter != nil {
		if err := q.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.URL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	client := q.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return decodeFeatures(data)
}

// decodeFeatures extracts the attributes of every feature, in order.
// Only an unparseable body is an error.
func decodeFeatures(data []byte) ([]json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("parse json: response body is not JSON")
	}
	if firstByte(data) != '{' {
		return nil, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, nil
	}
	raw, ok := body["features"]
	if !ok {
		return nil, nil
	}
	var features []json.RawMessage
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, nil
	}

	var attrs []json.RawMessage
	for _, f := range features {
		if firstByte(f) != '{' {
			continue
		}
		var feature map[string]json.RawMessage
		if err := json.Unmarshal(f, &feature); err != nil {
			continue
		}
		if a, ok := feature["attributes"]; ok {
			attrs = append(attrs, bytes.TrimSpace(a))
		}
	}
	return attrs, nil
}
