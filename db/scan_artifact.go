package db

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SARIFContentType is the media type stored with SARIF artifacts
const SARIFContentType = "application/sarif+json"

// Stable artifact names
const (
	ArtifactOSV     = "osv.sarif"
	ArtifactSemgrep = "semgrep.sarif"
	ArtifactCodeQL  = "codeql.sarif"
	ArtifactMerged  = "merged.sarif"
)

// ScanArtifact stores the full text of one tool's SARIF document, or the
// merged log, for a scan run.
type ScanArtifact struct {
	BaseModel
	ScanRunID   uuid.UUID `json:"scan_run_id" gorm:"type:uuid;index;not null"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	ContentType string    `json:"content_type" gorm:"size:128;not null;default:'application/sarif+json'"`
	Content     string    `json:"content" gorm:"type:text"`
}

// CreateScanArtifact stores an artifact
func (d *DatabaseConnection) CreateScanArtifact(artifact *ScanArtifact) (*ScanArtifact, error) {
	if artifact.ContentType == "" {
		artifact.ContentType = SARIFContentType
	}
	result := d.db.Create(artifact)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("name", artifact.Name).Msg("ScanArtifact creation failed")
	}
	return artifact, result.Error
}

// ListScanArtifacts returns the artifacts of a run without their contents
func (d *DatabaseConnection) ListScanArtifacts(runID uuid.UUID) (items []*ScanArtifact, err error) {
	err = d.db.Select("id", "created_at", "updated_at", "scan_run_id", "name", "content_type").
		Where("scan_run_id = ?", runID).Order("name asc").Find(&items).Error
	return items, err
}

// GetScanArtifact retrieves one artifact of a run by name, content included
func (d *DatabaseConnection) GetScanArtifact(runID uuid.UUID, name string) (*ScanArtifact, error) {
	var artifact ScanArtifact
	err := d.db.Where("scan_run_id = ? AND name = ?", runID, name).First(&artifact).Error
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}
