package db

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Installation is the platform's unit of app authorization. It owns the
// repositories the app may fetch and scan.
type Installation struct {
	BaseModel
	InstallationID int64      `json:"installation_id" gorm:"uniqueIndex;not null"`
	AccountLogin   string     `json:"account_login" gorm:"size:255;not null"`
	AccountType    string     `json:"account_type" gorm:"size:50;not null"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`

	Repos []Repo `json:"-" gorm:"foreignKey:InstallationID;references:InstallationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// UpsertInstallation creates or refreshes an installation record keyed by
// the external installation id. A re-created installation loses its
// revoked_at marker.
func (d *DatabaseConnection) UpsertInstallation(inst *Installation) (*Installation, error) {
	var existing Installation
	err := d.db.Where("installation_id = ?", inst.InstallationID).First(&existing).Error
	if err == nil {
		existing.AccountLogin = inst.AccountLogin
		existing.AccountType = inst.AccountType
		existing.LastSeenAt = inst.LastSeenAt
		existing.RevokedAt = nil
		if result := d.db.Save(&existing); result.Error != nil {
			log.Error().Err(result.Error).Int64("installation_id", inst.InstallationID).Msg("Installation update failed")
			return nil, result.Error
		}
		return &existing, nil
	}
	if result := d.db.Create(inst); result.Error != nil {
		log.Error().Err(result.Error).Int64("installation_id", inst.InstallationID).Msg("Installation creation failed")
		return nil, result.Error
	}
	return inst, nil
}

// GetInstallationByID retrieves an installation by its external id
func (d *DatabaseConnection) GetInstallationByID(installationID int64) (*Installation, error) {
	var inst Installation
	err := d.db.Where("installation_id = ?", installationID).First(&inst).Error
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// RevokeInstallation marks an installation as revoked
func (d *DatabaseConnection) RevokeInstallation(installationID int64) error {
	now := time.Now().UTC()
	return d.db.Model(&Installation{}).
		Where("installation_id = ?", installationID).
		Update("revoked_at", now).Error
}

// TouchInstallation updates the last_seen_at timestamp
func (d *DatabaseConnection) TouchInstallation(installationID int64) error {
	now := time.Now().UTC()
	return d.db.Model(&Installation{}).
		Where("installation_id = ?", installationID).
		Update("last_seen_at", now).Error
}

// ListInstallations lists all known installations
func (d *DatabaseConnection) ListInstallations() (items []*Installation, err error) {
	err = d.db.Order("created_at asc").Find(&items).Error
	return items, err
}
