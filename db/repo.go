package db

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Repo is a repository registered through an installation.
type Repo struct {
	BaseModel
	RepoID         int64      `json:"repo_id" gorm:"uniqueIndex;not null"`
	InstallationID int64      `json:"installation_id" gorm:"index;not null"`
	Owner          string     `json:"owner" gorm:"size:255;not null"`
	Name           string     `json:"name" gorm:"size:255;not null"`
	FullName       string     `json:"full_name" gorm:"size:512;not null"`
	DefaultBranch  string     `json:"default_branch,omitempty" gorm:"size:255"`
	IsPrivate      bool       `json:"is_private" gorm:"not null"`
	Archived       bool       `json:"archived" gorm:"not null;default:false"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`

	ScanRuns []ScanRun `json:"-" gorm:"foreignKey:RepoID;references:RepoID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// RepoFilter represents available repo filters
type RepoFilter struct {
	InstallationID int64      `json:"installation_id" validate:"omitempty"`
	Owner          string     `json:"owner" validate:"omitempty,ascii"`
	Pagination     Pagination `json:"pagination"`
}

// UpsertRepo creates or refreshes a repo record keyed by the external repo id
func (d *DatabaseConnection) UpsertRepo(repo *Repo) (*Repo, error) {
	var existing Repo
	err := d.db.Where("repo_id = ?", repo.RepoID).First(&existing).Error
	if err == nil {
		existing.InstallationID = repo.InstallationID
		existing.Owner = repo.Owner
		existing.Name = repo.Name
		existing.FullName = repo.FullName
		existing.DefaultBranch = repo.DefaultBranch
		existing.IsPrivate = repo.IsPrivate
		existing.Archived = repo.Archived
		now := time.Now().UTC()
		existing.LastSyncedAt = &now
		if result := d.db.Save(&existing); result.Error != nil {
			log.Error().Err(result.Error).Int64("repo_id", repo.RepoID).Msg("Repo update failed")
			return nil, result.Error
		}
		return &existing, nil
	}
	if result := d.db.Create(repo); result.Error != nil {
		log.Error().Err(result.Error).Int64("repo_id", repo.RepoID).Msg("Repo creation failed")
		return nil, result.Error
	}
	return repo, nil
}

// GetRepoByID retrieves a repo by its external id
func (d *DatabaseConnection) GetRepoByID(repoID int64) (*Repo, error) {
	var repo Repo
	err := d.db.Where("repo_id = ?", repoID).First(&repo).Error
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

// DeleteRepo removes a repo by its external id
func (d *DatabaseConnection) DeleteRepo(repoID int64) error {
	return d.db.Where("repo_id = ?", repoID).Delete(&Repo{}).Error
}

// ListRepos lists repos with filters
func (d *DatabaseConnection) ListRepos(filter RepoFilter) (items []*Repo, count int64, err error) {
	query := d.db.Model(&Repo{})

	if filter.InstallationID > 0 {
		query = query.Where("installation_id = ?", filter.InstallationID)
	}

	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	err = query.Scopes(Paginate(&filter.Pagination)).Order("full_name asc").Find(&items).Error
	return items, count, err
}
