package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization mirrors a tenant owned by the external organization
// subsystem. Membership and roles live elsewhere.
type Organization struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Name      string         `gorm:"type:varchar(200);not null" json:"name"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// NewOrganization creates an organization mirror row with a fresh UUID.
func NewOrganization(name string) *Organization {
	return &Organization{
		UUID: uuid.NewString(),
		Name: name,
	}
}
