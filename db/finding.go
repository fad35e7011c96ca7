package db

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FindingTool identifies which scanner produced a finding
type FindingTool string

const (
	FindingToolOSV     FindingTool = "osv"
	FindingToolSemgrep FindingTool = "semgrep"
	FindingToolCodeQL  FindingTool = "codeql"
)

// Finding is one canonical diagnostic normalized from a tool's SARIF output.
type Finding struct {
	BaseModel
	ScanRunID          uuid.UUID          `json:"scan_run_id" gorm:"type:uuid;index;not null"`
	Tool               FindingTool        `json:"tool" gorm:"index;size:32;not null"`
	RuleID             *string            `json:"rule_id,omitempty" gorm:"size:255"`
	Title              *string            `json:"title,omitempty" gorm:"size:512"`
	SeverityRaw        *string            `json:"severity_raw,omitempty" gorm:"size:64"`
	SeverityNormalized NormalizedSeverity `json:"severity_normalized" gorm:"index;size:16;not null"`
	CVSS               *string            `json:"cvss,omitempty" gorm:"size:32"`
	CWE                *string            `json:"cwe,omitempty" gorm:"size:64"`
	Confidence         *string            `json:"confidence,omitempty" gorm:"size:64"`
	Path               *string            `json:"path,omitempty" gorm:"size:1024"`
	StartLine          *int               `json:"start_line,omitempty"`
	EndLine            *int               `json:"end_line,omitempty"`
	Fingerprint        string             `json:"fingerprint" gorm:"index;size:32"`
	HelpText           *string            `json:"help_text,omitempty" gorm:"type:text"`
	CodeQLTrace        *string            `json:"codeql_trace,omitempty" gorm:"type:text"`
}

// FindingFilter represents available finding filters
type FindingFilter struct {
	ScanRunID  uuid.UUID     `json:"scan_run_id"`
	Tools      []FindingTool `json:"tools" validate:"omitempty"`
	Severities []string      `json:"severities" validate:"omitempty"`
	Pagination Pagination    `json:"pagination"`
}

// CreateFindings inserts findings in a batch
func (d *DatabaseConnection) CreateFindings(findings []*Finding) error {
	if len(findings) == 0 {
		return nil
	}
	result := d.db.Create(findings)
	if result.Error != nil {
		log.Error().Err(result.Error).Int("count", len(findings)).Msg("Batch finding creation failed")
	}
	return result.Error
}

// ListFindings lists findings with filters, most severe first
func (d *DatabaseConnection) ListFindings(filter FindingFilter) (items []*Finding, count int64, err error) {
	query := d.db.Model(&Finding{})

	if filter.ScanRunID != uuid.Nil {
		query = query.Where("scan_run_id = ?", filter.ScanRunID)
	}

	if len(filter.Tools) > 0 {
		query = query.Where("tool IN ?", filter.Tools)
	}

	if len(filter.Severities) > 0 {
		query = query.Where("severity_normalized IN ?", filter.Severities)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	err = query.Scopes(Paginate(&filter.Pagination)).
		Order(severityOrderQuery + ", id asc").
		Find(&items).Error
	return items, count, err
}

// CountFindings returns the number of findings for a run
func (d *DatabaseConnection) CountFindings(runID uuid.UUID) (int64, error) {
	var count int64
	err := d.db.Model(&Finding{}).Where("scan_run_id = ?", runID).Count(&count).Error
	return count, err
}
