package sarif

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRawSARIF(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMergeConcatenatesRuns(t *testing.T) {
	a := writeRawSARIF(t, "a.sarif", `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"osv-scanner"}},"results":[]}]}`)
	b := writeRawSARIF(t, "b.sarif", `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"semgrep"}},"results":[]},{"tool":{"driver":{"name":"semgrep"}},"results":[]}]}`)
	out := filepath.Join(t.TempDir(), "merged.sarif")

	require.True(t, Merge([]string{a, b}, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var merged struct {
		Schema  string            `json:"$schema"`
		Version string            `json:"version"`
		Runs    []json.RawMessage `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(data, &merged))
	assert.Equal(t, SchemaURL, merged.Schema)
	assert.Equal(t, Version, merged.Version)
	assert.Len(t, merged.Runs, 3)
}

func TestMergeSingleInput(t *testing.T) {
	a := writeRawSARIF(t, "only.sarif", `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"osv-scanner"}},"results":[]}]}`)
	out := filepath.Join(t.TempDir(), "merged.sarif")

	require.True(t, Merge([]string{a}, out))

	var merged Log
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &merged))
	assert.Len(t, merged.Runs, 1)
}

func TestMergeNothingToMerge(t *testing.T) {
	out := filepath.Join(t.TempDir(), "merged.sarif")

	assert.False(t, Merge(nil, out))
	assert.False(t, Merge([]string{""}, out))
	assert.False(t, Merge([]string{filepath.Join(t.TempDir(), "absent.sarif")}, out))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestMergeSkipsUnparseableInputs(t *testing.T) {
	good := writeRawSARIF(t, "good.sarif", `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"semgrep"}},"results":[]}]}`)
	bad := writeRawSARIF(t, "bad.sarif", `not json at all`)
	out := filepath.Join(t.TempDir(), "merged.sarif")

	require.True(t, Merge([]string{bad, good}, out))

	var merged Log
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &merged))
	assert.Len(t, merged.Runs, 1)
}
