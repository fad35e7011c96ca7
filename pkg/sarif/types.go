// Package sarif parses SARIF 2.1.0 logs from the supported scanners and
// normalizes their results into canonical finding records.
package sarif

import (
	"bytes"
	"encoding/json"
)

// SchemaURL is the canonical SARIF 2.1.0 schema location written into
// merged logs.
const SchemaURL = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

// Version is the SARIF schema version produced and consumed.
const Version = "2.1.0"

// Log is the top-level SARIF document.
type Log struct {
	Schema  string `json:"$schema,omitempty"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run is one tool invocation within a log.
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool carries the driver that produced a run.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver describes the analyzer and its rule metadata.
type Driver struct {
	Name  string `json:"name,omitempty"`
	Rules []Rule `json:"rules,omitempty"`
}

// Rule is the static metadata for one diagnostic rule.
type Rule struct {
	ID               string         `json:"id"`
	ShortDescription *TextBlock     `json:"shortDescription,omitempty"`
	FullDescription  *TextBlock     `json:"fullDescription,omitempty"`
	Help             *TextBlock     `json:"help,omitempty"`
	HelpURI          string         `json:"helpUri,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
}

// TextBlock holds a text/markdown pair.
type TextBlock struct {
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

// Result is one diagnostic occurrence.
type Result struct {
	RuleID     string          `json:"ruleId,omitempty"`
	Level      string          `json:"level,omitempty"`
	Message    Message         `json:"message"`
	Locations  []Location      `json:"locations,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
	CodeFlows  json.RawMessage `json:"codeFlows,omitempty"`
}

// Message tolerates both the object form {"text": ...} and a bare string,
// which some tool versions emit.
type Message struct {
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		m.Text = s
		return nil
	}
	type alias Message
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Message(a)
	return nil
}

// Location points at the physical position of a result.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation is an artifact reference plus a region.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

// ArtifactLocation names the file a result was reported in.
type ArtifactLocation struct {
	URI string `json:"uri,omitempty"`
}

// Region is a line span within an artifact.
type Region struct {
	StartLine int `json:"startLine,omitempty"`
	EndLine   int `json:"endLine,omitempty"`
}
