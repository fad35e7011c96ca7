package db

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// NormalizedSeverity is one of the five canonical severity bands every
// finding is mapped to, regardless of the reporting tool.
type NormalizedSeverity string

func (s NormalizedSeverity) String() string {
	return string(s)
}

const (
	SeverityCritical NormalizedSeverity = "CRITICAL"
	SeverityHigh     NormalizedSeverity = "HIGH"
	SeverityMedium   NormalizedSeverity = "MED"
	SeverityLow      NormalizedSeverity = "LOW"
	SeverityInfo     NormalizedSeverity = "INFO"
)

func NewNormalizedSeverity(s string) NormalizedSeverity {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MED", "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	case "INFO":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

func (s *NormalizedSeverity) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*s = NormalizedSeverity(v)
	case string:
		*s = NormalizedSeverity(v)
	default:
		return fmt.Errorf("unsupported type: %T", v)
	}
	return nil
}

func (s NormalizedSeverity) Value() (driver.Value, error) {
	return string(s), nil
}

const severityOrderQuery = `
		CASE
			WHEN severity_normalized = 'CRITICAL' THEN 1
			WHEN severity_normalized = 'HIGH' THEN 2
			WHEN severity_normalized = 'MED' THEN 3
			WHEN severity_normalized = 'LOW' THEN 4
			WHEN severity_normalized = 'INFO' THEN 5
			ELSE 6
		END
	`
