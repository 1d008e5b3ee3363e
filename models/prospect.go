package models

import (
	"time"

	"gorm.io/gorm"
)

// Prospect represents a single outreach contact
type Prospect struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Email      string `gorm:"not null;index" json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company"`
	Position   string `json:"position"`
	Phone      string `json:"phone"`
	ProfileURL string `json:"profile_url"` // professional-network profile

	// Status
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	Source      string     `json:"source"`
	LastContact *time.Time `json:"last_contact"`
}

// Contactable reports whether the prospect may still be contacted
func (p *Prospect) Contactable() bool {
	return !p.IsBounced && !p.IsUnsubscribed && !p.IsDoNotContact
}
