package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Shop is an installed storefront. AccessToken is the admin API token used
// to mirror orders into the platform.
type Shop struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Domain      string    `json:"domain" gorm:"uniqueIndex;not null"`
	Name        string    `json:"name"`
	AccessToken string    `json:"-"`
	Currency    string    `json:"currency" gorm:"default:USD"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Shop) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// HasAdminAccess reports whether orders can be mirrored to the platform.
func (s *Shop) HasAdminAccess() bool {
	return s.Active && s.AccessToken != ""
}
