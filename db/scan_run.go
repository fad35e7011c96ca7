package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ScanRunStatus represents the status of a scan run
type ScanRunStatus string

const (
	ScanRunStatusQueued    ScanRunStatus = "queued"
	ScanRunStatusRunning   ScanRunStatus = "running"
	ScanRunStatusCompleted ScanRunStatus = "completed"
	ScanRunStatusFailed    ScanRunStatus = "failed"
)

// ScanRunTrigger represents what caused a scan run to be enqueued
type ScanRunTrigger string

const (
	ScanRunTriggerManual ScanRunTrigger = "manual"
)

// ScanRun is one invocation of the scan pipeline against one repository
// snapshot. Rows enter as queued, are claimed exactly once by a dispatcher,
// and end in exactly one terminal state.
type ScanRun struct {
	BaseUUIDModel
	RepoID         int64          `json:"repo_id" gorm:"index;not null"`
	InstallationID int64          `json:"installation_id" gorm:"index;not null"`
	Trigger        ScanRunTrigger `json:"trigger" gorm:"size:32;not null;default:'manual'"`
	Status         ScanRunStatus  `json:"status" gorm:"index;size:32;not null;default:'queued'"`
	CurrentStage   *string        `json:"current_stage,omitempty" gorm:"size:64"`
	Branch         string         `json:"branch,omitempty" gorm:"size:255"`
	CommitSHA      string         `json:"commit_sha,omitempty" gorm:"size:64"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty" gorm:"type:text"`
	ResultSummary  *string        `json:"result_summary,omitempty" gorm:"type:text"`

	Stages    []ScanStage    `json:"-" gorm:"foreignKey:ScanRunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Findings  []Finding      `json:"-" gorm:"foreignKey:ScanRunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Artifacts []ScanArtifact `json:"-" gorm:"foreignKey:ScanRunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// IsTerminal returns true if the run is in a terminal state
func (r *ScanRun) IsTerminal() bool {
	return r.Status == ScanRunStatusCompleted || r.Status == ScanRunStatusFailed
}

// ScanRunFilter represents available scan run filters
type ScanRunFilter struct {
	RepoID         int64           `json:"repo_id" validate:"omitempty"`
	InstallationID int64           `json:"installation_id" validate:"omitempty"`
	Statuses       []ScanRunStatus `json:"statuses" validate:"omitempty"`
	Pagination     Pagination      `json:"pagination"`
}

// CreateScanRun creates a new scan run
func (d *DatabaseConnection) CreateScanRun(run *ScanRun) (*ScanRun, error) {
	result := d.db.Create(run)
	if result.Error != nil {
		log.Error().Err(result.Error).Int64("repo_id", run.RepoID).Msg("ScanRun creation failed")
	}
	return run, result.Error
}

// GetScanRunByID retrieves a scan run by ID
func (d *DatabaseConnection) GetScanRunByID(id uuid.UUID) (*ScanRun, error) {
	var run ScanRun
	err := d.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListScanRuns lists scan runs with filters
func (d *DatabaseConnection) ListScanRuns(filter ScanRunFilter) (items []*ScanRun, count int64, err error) {
	query := d.db.Model(&ScanRun{})

	if filter.RepoID > 0 {
		query = query.Where("repo_id = ?", filter.RepoID)
	}

	if filter.InstallationID > 0 {
		query = query.Where("installation_id = ?", filter.InstallationID)
	}

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	err = query.Scopes(Paginate(&filter.Pagination)).Order("created_at desc").Find(&items).Error
	return items, count, err
}

// ClaimScanRun atomically claims the oldest queued run and transitions it to
// running. Uses FOR UPDATE SKIP LOCKED on postgres so concurrent dispatchers
// see disjoint rows; observers outside the transaction only ever see queued
// or running. Returns nil when no run is available.
func (d *DatabaseConnection) ClaimScanRun() (*ScanRun, error) {
	var run ScanRun
	now := time.Now().UTC()

	lock := ""
	if d.isPostgres() {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	query := fmt.Sprintf(`
		UPDATE scan_runs
		SET status = ?, started_at = ?
		WHERE id = (
			SELECT id FROM scan_runs
			WHERE status = ?
			ORDER BY created_at ASC
			LIMIT 1
			%s
		)
		RETURNING *
	`, lock)

	err := d.db.Raw(query, ScanRunStatusRunning, now, ScanRunStatusQueued).Scan(&run).Error
	if err != nil {
		return nil, err
	}

	if run.ID == uuid.Nil {
		return nil, nil // No run available
	}

	return &run, nil
}

// SetScanRunCurrentStage updates the observational current_stage marker
func (d *DatabaseConnection) SetScanRunCurrentStage(runID uuid.UUID, stage string) error {
	return d.db.Model(&ScanRun{}).Where("id = ?", runID).Update("current_stage", stage).Error
}

// MarkScanRunCompleted transitions a run to its completed terminal state
func (d *DatabaseConnection) MarkScanRunCompleted(runID uuid.UUID, currentStage, resultSummary string) error {
	now := time.Now().UTC()
	return d.db.Model(&ScanRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":         ScanRunStatusCompleted,
		"ended_at":       now,
		"current_stage":  currentStage,
		"result_summary": resultSummary,
	}).Error
}

// MarkScanRunFailed transitions a run to its failed terminal state
func (d *DatabaseConnection) MarkScanRunFailed(runID uuid.UUID, errorMessage string) error {
	now := time.Now().UTC()
	return d.db.Model(&ScanRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":        ScanRunStatusFailed,
		"ended_at":      now,
		"error_message": errorMessage,
	}).Error
}

// FailOrphanedRuns transitions running runs older than the threshold to
// failed. A run can be left running when a dispatcher crashes between claim
// and terminal state; this is the startup recovery for those rows.
func (d *DatabaseConnection) FailOrphanedRuns(olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	result := d.db.Model(&ScanRun{}).
		Where("status = ? AND started_at < ?", ScanRunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        ScanRunStatusFailed,
			"ended_at":      now,
			"error_message": "orphaned",
		})
	return result.RowsAffected, result.Error
}
