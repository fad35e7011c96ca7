package sarif

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/asfalis/asfalis/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSeverityOSV(t *testing.T) {
	tests := []struct {
		cvss     string
		expected db.NormalizedSeverity
	}{
		{"9.8", db.SeverityCritical},
		{"9.0", db.SeverityCritical},
		{"7.5", db.SeverityHigh},
		{"7.0", db.SeverityHigh},
		{"4.5", db.SeverityMedium},
		{"4.0", db.SeverityMedium},
		{"3.9", db.SeverityLow},
		{"0.1", db.SeverityLow},
		{"", db.SeverityMedium},
		{"not-a-number", db.SeverityMedium},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, NormalizeSeverity(db.FindingToolOSV, "", tc.cvss), "cvss=%q", tc.cvss)
	}
}

func TestNormalizeSeveritySemgrep(t *testing.T) {
	tests := []struct {
		level    string
		expected db.NormalizedSeverity
	}{
		{"ERROR", db.SeverityHigh},
		{"error", db.SeverityHigh},
		{"WARNING", db.SeverityMedium},
		{"INFO", db.SeverityInfo},
		{"unheard-of", db.SeverityMedium},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, NormalizeSeverity(db.FindingToolSemgrep, tc.level, ""), "level=%q", tc.level)
	}
}

func TestNormalizeSeverityCodeQL(t *testing.T) {
	tests := []struct {
		level    string
		expected db.NormalizedSeverity
	}{
		{"error", db.SeverityHigh},
		{"warning", db.SeverityMedium},
		{"recommendation", db.SeverityLow},
		{"note", db.SeverityInfo},
		{"", db.SeverityMedium},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, NormalizeSeverity(db.FindingToolCodeQL, tc.level, ""), "level=%q", tc.level)
	}
}

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint(db.FindingToolSemgrep, "rule-a", "src/app.py", 10, 12, "message")
	assert.Len(t, fp, 32)
	assert.Equal(t, strings.ToLower(fp), fp)
	for _, c := range fp {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	a := Fingerprint(db.FindingToolOSV, "CVE-2024-0001", "go.mod", 1, 1, "vulnerable dep")
	b := Fingerprint(db.FindingToolOSV, "CVE-2024-0001", "go.mod", 1, 1, "vulnerable dep")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Fingerprint(db.FindingToolOSV, "CVE-2024-0002", "go.mod", 1, 1, "vulnerable dep"))
	assert.NotEqual(t, a, Fingerprint(db.FindingToolSemgrep, "CVE-2024-0001", "go.mod", 1, 1, "vulnerable dep"))
	assert.NotEqual(t, a, Fingerprint(db.FindingToolOSV, "CVE-2024-0001", "go.mod", 2, 2, "vulnerable dep"))
}

func writeSARIF(t *testing.T, doc any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "report.sarif")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseFindingsSemgrep(t *testing.T) {
	doc := map[string]any{
		"version": Version,
		"runs": []any{
			map[string]any{
				"tool": map[string]any{
					"driver": map[string]any{
						"name": "semgrep",
						"rules": []any{
							map[string]any{
								"id":               "python.lang.security.eval",
								"shortDescription": map[string]any{"text": "Eval of untrusted input"},
								"fullDescription":  map[string]any{"text": "Calling eval on user input allows code execution."},
							},
						},
					},
				},
				"results": []any{
					map[string]any{
						"ruleId":  "python.lang.security.eval",
						"level":   "error",
						"message": map[string]any{"text": "Avoid eval"},
						"locations": []any{
							map[string]any{
								"physicalLocation": map[string]any{
									"artifactLocation": map[string]any{"uri": "src/app.py"},
									"region":           map[string]any{"startLine": 42, "endLine": 44},
								},
							},
						},
					},
				},
			},
		},
	}

	findings := ParseFindings(writeSARIF(t, doc), db.FindingToolSemgrep)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, db.FindingToolSemgrep, f.Tool)
	require.NotNil(t, f.RuleID)
	assert.Equal(t, "python.lang.security.eval", *f.RuleID)
	require.NotNil(t, f.Title)
	assert.Equal(t, "Eval of untrusted input", *f.Title)
	assert.Equal(t, db.SeverityHigh, f.SeverityNormalized)
	require.NotNil(t, f.Path)
	assert.Equal(t, "src/app.py", *f.Path)
	require.NotNil(t, f.StartLine)
	assert.Equal(t, 42, *f.StartLine)
	require.NotNil(t, f.EndLine)
	assert.Equal(t, 44, *f.EndLine)
	require.NotNil(t, f.HelpText)
	assert.Equal(t, "Calling eval on user input allows code execution.", *f.HelpText)
	assert.Equal(t, Fingerprint(db.FindingToolSemgrep, "python.lang.security.eval", "src/app.py", 42, 44, "Avoid eval"), f.Fingerprint)
}

func TestParseFindingsOSVUsesCVSS(t *testing.T) {
	doc := map[string]any{
		"version": Version,
		"runs": []any{
			map[string]any{
				"tool": map[string]any{
					"driver": map[string]any{
						"name": "osv-scanner",
						"rules": []any{
							map[string]any{
								"id":         "CVE-2024-1234",
								"properties": map[string]any{"cvss": "9.8"},
							},
						},
					},
				},
				"results": []any{
					map[string]any{
						"ruleId":  "CVE-2024-1234",
						"message": "Vulnerable dependency",
					},
				},
			},
		},
	}

	findings := ParseFindings(writeSARIF(t, doc), db.FindingToolOSV)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, db.SeverityCritical, f.SeverityNormalized)
	require.NotNil(t, f.CVSS)
	assert.Equal(t, "9.8", *f.CVSS)
	require.NotNil(t, f.Title)
	assert.Equal(t, "Vulnerable dependency", *f.Title)
	assert.Nil(t, f.StartLine)
	assert.Nil(t, f.EndLine)
}

func TestParseFindingsDefaultsAndTruncation(t *testing.T) {
	longRule := strings.Repeat("r", 400)
	longMessage := strings.Repeat("m", 600)
	doc := map[string]any{
		"version": Version,
		"runs": []any{
			map[string]any{
				"tool": map[string]any{"driver": map[string]any{"name": "semgrep"}},
				"results": []any{
					map[string]any{
						"ruleId":  longRule,
						"message": map[string]any{"text": longMessage},
					},
				},
			},
		},
	}

	findings := ParseFindings(writeSARIF(t, doc), db.FindingToolSemgrep)
	require.Len(t, findings, 1)

	f := findings[0]
	require.NotNil(t, f.RuleID)
	assert.Len(t, *f.RuleID, 255)
	require.NotNil(t, f.Title)
	assert.Len(t, *f.Title, 512)
	// Missing level defaults to warning.
	require.NotNil(t, f.SeverityRaw)
	assert.Equal(t, "warning", *f.SeverityRaw)
	assert.Equal(t, db.SeverityMedium, f.SeverityNormalized)
}

func TestParseFindingsCodeQLTrace(t *testing.T) {
	doc := map[string]any{
		"version": Version,
		"runs": []any{
			map[string]any{
				"tool": map[string]any{"driver": map[string]any{"name": "CodeQL"}},
				"results": []any{
					map[string]any{
						"ruleId":    "py/sql-injection",
						"level":     "error",
						"message":   map[string]any{"text": "SQL injection"},
						"codeFlows": []any{map[string]any{"threadFlows": []any{}}},
					},
				},
			},
		},
	}

	findings := ParseFindings(writeSARIF(t, doc), db.FindingToolCodeQL)
	require.Len(t, findings, 1)
	require.NotNil(t, findings[0].CodeQLTrace)
	assert.Contains(t, *findings[0].CodeQLTrace, "threadFlows")
}

func TestParseFindingsUnreadableInputs(t *testing.T) {
	assert.Nil(t, ParseFindings(filepath.Join(t.TempDir(), "missing.sarif"), db.FindingToolOSV))

	path := filepath.Join(t.TempDir(), "broken.sarif")
	require.NoError(t, os.WriteFile(path, []byte("this is not json"), 0o644))
	assert.Nil(t, ParseFindings(path, db.FindingToolOSV))
}

func TestMessageBareStringForm(t *testing.T) {
	var result Result
	require.NoError(t, json.Unmarshal([]byte(`{"ruleId":"x","message":"bare string"}`), &result))
	assert.Equal(t, "bare string", result.Message.Text)
}
