package sarif

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/asfalis/asfalis/db"
	"github.com/rs/zerolog/log"
)

// Field length limits applied during normalization.
const (
	maxRuleIDLen   = 255
	maxTitleLen    = 512
	maxSeverityLen = 64
	maxCVSSLen     = 32
	maxPathLen     = 1024
	maxHelpLen     = 10000
	maxTraceLen    = 8000
)

var semgrepLevels = map[string]db.NormalizedSeverity{
	"ERROR":   db.SeverityHigh,
	"WARNING": db.SeverityMedium,
	"INFO":    db.SeverityInfo,
}

var codeqlLevels = map[string]db.NormalizedSeverity{
	"error":          db.SeverityHigh,
	"warning":        db.SeverityMedium,
	"recommendation": db.SeverityLow,
	"note":           db.SeverityInfo,
}

// NormalizeSeverity maps a tool's raw level (and, for osv, its CVSS score)
// to one of the five canonical bands.
func NormalizeSeverity(tool db.FindingTool, raw string, cvss string) db.NormalizedSeverity {
	switch tool {
	case db.FindingToolOSV:
		if cvss != "" {
			if v, err := strconv.ParseFloat(cvss, 64); err == nil {
				switch {
				case v >= 9.0:
					return db.SeverityCritical
				case v >= 7.0:
					return db.SeverityHigh
				case v >= 4.0:
					return db.SeverityMedium
				default:
					return db.SeverityLow
				}
			}
		}
		return db.SeverityMedium
	case db.FindingToolSemgrep:
		if sev, ok := semgrepLevels[strings.ToUpper(raw)]; ok {
			return sev
		}
		return db.SeverityMedium
	case db.FindingToolCodeQL:
		if sev, ok := codeqlLevels[strings.ToLower(raw)]; ok {
			return sev
		}
		return db.SeverityMedium
	default:
		return db.SeverityMedium
	}
}

// Fingerprint returns the first 32 hex characters of the SHA-256 over
// "tool:rule:path:start:end:message". Absent lines hash as zero.
func Fingerprint(tool db.FindingTool, ruleID, path string, startLine, endLine int, message string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%d:%d:%s", tool, ruleID, path, startLine, endLine, message))
	return hex.EncodeToString(sum[:])[:32]
}

// ParseFindings reads a SARIF file and returns canonical finding records for
// the given tool. A file that cannot be read or parsed yields zero findings;
// a partial result is more valuable than a failed pipeline.
func ParseFindings(path string, tool db.FindingTool) []*db.Finding {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("SARIF file not readable")
		return nil
	}
	var doc Log
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", path).Str("tool", string(tool)).Msg("Invalid SARIF document, skipping")
		return nil
	}

	var findings []*db.Finding
	for _, run := range doc.Runs {
		rules := make(map[string]Rule, len(run.Tool.Driver.Rules))
		for _, rule := range run.Tool.Driver.Rules {
			rules[rule.ID] = rule
		}
		for _, result := range run.Results {
			findings = append(findings, normalizeResult(tool, result, rules[result.RuleID]))
		}
	}
	return findings
}

func normalizeResult(tool db.FindingTool, result Result, rule Rule) *db.Finding {
	msg := result.Message.Text
	if msg == "" {
		msg = result.Message.Markdown
	}

	title := ""
	if rule.ShortDescription != nil {
		title = rule.ShortDescription.Text
	}
	if title == "" {
		title = truncate(msg, maxTitleLen)
	}

	helpText := ""
	if rule.FullDescription != nil {
		helpText = rule.FullDescription.Text
	}
	if helpText == "" && rule.Help != nil {
		helpText = rule.Help.Text
	}
	if helpText == "" {
		helpText = rule.HelpURI
	}

	level := result.Level
	if level == "" {
		level = "warning"
	}

	var path string
	var startLine, endLine *int
	if len(result.Locations) > 0 {
		phys := result.Locations[0].PhysicalLocation
		path = phys.ArtifactLocation.URI
		if phys.Region != nil && phys.Region.StartLine > 0 {
			start := phys.Region.StartLine
			startLine = &start
			end := phys.Region.EndLine
			if end == 0 {
				end = start
			}
			endLine = &end
		}
	}

	cvss := propertyCVSS(result.Properties, rule.Properties)

	finding := &db.Finding{
		Tool:               tool,
		SeverityNormalized: NormalizeSeverity(tool, level, cvss),
		Fingerprint:        Fingerprint(tool, result.RuleID, path, deref(startLine), deref(endLine), msg),
	}
	if result.RuleID != "" {
		finding.RuleID = ptr(truncate(result.RuleID, maxRuleIDLen))
	}
	if title != "" {
		finding.Title = ptr(truncate(title, maxTitleLen))
	}
	finding.SeverityRaw = ptr(truncate(level, maxSeverityLen))
	if cvss != "" {
		finding.CVSS = ptr(truncate(cvss, maxCVSSLen))
	}
	if path != "" {
		finding.Path = ptr(truncate(path, maxPathLen))
	}
	finding.StartLine = startLine
	finding.EndLine = endLine
	if helpText != "" {
		finding.HelpText = ptr(truncate(helpText, maxHelpLen))
	}
	if tool == db.FindingToolCodeQL && len(result.CodeFlows) > 0 {
		finding.CodeQLTrace = ptr(truncate(string(result.CodeFlows), maxTraceLen))
	}
	return finding
}

// propertyCVSS takes the cvss property from the result, falling back to the
// rule.
func propertyCVSS(propSets ...map[string]any) string {
	for _, props := range propSets {
		if props == nil {
			continue
		}
		if v, ok := props["cvss"]; ok {
			switch val := v.(type) {
			case string:
				return val
			case float64:
				return strconv.FormatFloat(val, 'f', -1, 64)
			default:
				return fmt.Sprintf("%v", val)
			}
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func ptr(s string) *string {
	return &s
}

func deref(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
