package sarif

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

// mergedLog keeps runs opaque so merging is lossless regardless of which
// SARIF extensions a tool used.
type mergedLog struct {
	Schema  string            `json:"$schema"`
	Version string            `json:"version"`
	Runs    []json.RawMessage `json:"runs"`
}

type rawLog struct {
	Runs []json.RawMessage `json:"runs"`
}

// Merge concatenates the runs of the given SARIF files into one 2.1.0 log at
// outputPath. Unreadable or invalid inputs are skipped. Returns false, and
// writes nothing, when the concatenated runs are empty.
func Merge(paths []string, outputPath string) bool {
	merged := mergedLog{
		Schema:  SchemaURL,
		Version: Version,
		Runs:    []json.RawMessage{},
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var doc rawLog
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Skipping unparseable SARIF input during merge")
			continue
		}
		merged.Runs = append(merged.Runs, doc.Runs...)
	}
	if len(merged.Runs) == 0 {
		return false
	}
	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode merged SARIF")
		return false
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		log.Error().Err(err).Str("path", outputPath).Msg("Failed to write merged SARIF")
		return false
	}
	return true
}
