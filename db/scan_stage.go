package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Pipeline stage names, in declared execution order. The sca and semgrep
// stages run as a concurrent pair between fetch and codeql.
const (
	StageFetchRepo       = "fetch_repo"
	StageScaOSV          = "sca_osv"
	StageSastSemgrep     = "sast_semgrep"
	StageSemanticCodeQL  = "semantic_codeql"
	StageSonarQube       = "sonarqube_publish"
	StageNormalize       = "normalize"
	StageFinalize        = "finalize"
)

// ScanStage is one recorded phase of a scan run. Rows are append-only and
// survive crashes: started_at is written on entry, ended_at on exit.
type ScanStage struct {
	BaseModel
	ScanRunID    uuid.UUID  `json:"scan_run_id" gorm:"type:uuid;index;not null"`
	Stage        string     `json:"stage" gorm:"size:64;not null"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty" gorm:"type:text"`
}

// CreateScanStage records stage entry
func (d *DatabaseConnection) CreateScanStage(stage *ScanStage) (*ScanStage, error) {
	result := d.db.Create(stage)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("stage", stage.Stage).Msg("ScanStage creation failed")
	}
	return stage, result.Error
}

// CloseScanStage records stage exit, with the error message when the stage
// failed
func (d *DatabaseConnection) CloseScanStage(stageID uint, errorMessage string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"ended_at": now,
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	return d.db.Model(&ScanStage{}).Where("id = ?", stageID).Updates(updates).Error
}

// ListScanStages returns the stages of a run ordered by start time
func (d *DatabaseConnection) ListScanStages(runID uuid.UUID) (items []*ScanStage, err error) {
	err = d.db.Where("scan_run_id = ?", runID).Order("started_at asc, id asc").Find(&items).Error
	return items, err
}

// GetScanStage retrieves a stage row of a run by name
func (d *DatabaseConnection) GetScanStage(runID uuid.UUID, stage string) (*ScanStage, error) {
	var row ScanStage
	err := d.db.Where("scan_run_id = ? AND stage = ?", runID, stage).Order("started_at desc").First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
