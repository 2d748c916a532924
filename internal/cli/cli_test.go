package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCLI_FetchThenFlatten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("k")
		fmt.Fprintf(w, `{"features": [{"attributes": {"huc12": %q, "name": "O'Brien Creek", "miles": 1.5}}]}`, key)
	}))
	defer srv.Close()

	dir := t.TempDir()
	keys := filepath.Join(dir, "hucs.json")
	dataset := filepath.Join(dir, "dataset.json")
	seed := filepath.Join(dir, "seed.sql")
	history := filepath.Join(dir, "runs.db")
	writeFile(t, keys, `{"ME": ["010100020101"], "AL": ["031501070101"]}`)
	writeFile(t, dataset, "")
	writeFile(t, seed, "INSERT INTO assessments VALUES\n")
	cfgPath := filepath.Join(dir, "seedpipe.yaml")
	writeFile(t, cfgPath, "query_template: k=${key}\nlog_level: error\n")

	common := []string{
		"--config", cfgPath,
		"--base-url", srv.URL,
		"--fetch-output", dataset,
		"--seed-output", seed,
		"--history-db", history,
	}

	out, err := runCLI(t, append([]string{"fetch", keys}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "fetch: success, read 2, wrote 2 rows")

	data, err := os.ReadFile(dataset)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"huc12":"010100020101","name":"O'Brien Creek","miles":1.5},`+
			`{"huc12":"031501070101","name":"O'Brien Creek","miles":1.5}]`,
		string(data))

	out, err = runCLI(t, append([]string{"flatten", dataset}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "flatten: success, read 2, wrote 2 rows")

	data, err = os.ReadFile(seed)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO assessments VALUES\n"+
		"('010100020101', 'O''Brien Creek', 1.5),\n"+
		"('031501070101', 'O''Brien Creek', 1.5);\n", string(data))

	out, err = runCLI(t, append([]string{"runs", "--kind", "flatten"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "flatten")
	assert.NotContains(t, out, "fetch ")
}

func TestCLI_FlattenReportsSkips(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.sql")
	missing := filepath.Join(dir, "absent.json")

	out, err := runCLI(t, "flatten", missing, "--seed-output", seed, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "flatten: skipped")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "output_missing")
	assert.NoFileExists(t, seed)

	out, err = runCLI(t, "flatten", missing, "--seed-output", seed, "--require-existing=false", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "flatten: success")
}

func TestCLI_Errors(t *testing.T) {
	_, err := runCLI(t, "flatten", "x.json", "--quote-mode", "mysql")
	assert.ErrorContains(t, err, "invalid config")

	_, err = runCLI(t, "fetch")
	assert.Error(t, err)

	_, err = runCLI(t, "runs")
	assert.ErrorContains(t, err, "not configured")

	_, err = runCLI(t, "runs", "--kind", "load")
	assert.ErrorContains(t, err, "unknown run kind")

	_, err = runCLI(t, "schedule", "hucs.json")
	assert.Error(t, err)
}
