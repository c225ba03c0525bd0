package models

import "time"

// Invite is a time- and use-limited join token for a restricted community.
// An invite is redeemable iff Active, not expired, and UseCount < MaxUses.
// Exhausted and expired invites are retained for audit; only Deactivate flips
// the Active flag, and deactivation is terminal.
type Invite struct {
	BaseModel

	Code        string    `gorm:"uniqueIndex;not null" json:"code"`
	CommunityID string    `gorm:"type:uuid;index;not null" json:"community_id"`
	CreatedBy   string    `gorm:"type:uuid;not null" json:"created_by"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`
	MaxUses     int64     `gorm:"not null;default:1" json:"max_uses"`
	UseCount    int64     `gorm:"not null;default:0" json:"use_count"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
}
