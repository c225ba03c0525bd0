package models

import "time"

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership records that a user belongs to a community with a role.
// The composite unique index is the arbiter for concurrent joins: at most one
// membership may exist per (community, user) pair.
type Membership struct {
	BaseModel

	CommunityID string    `gorm:"type:uuid;not null;uniqueIndex:idx_membership_pair" json:"community_id"`
	UserID      string    `gorm:"type:uuid;not null;uniqueIndex:idx_membership_pair;index" json:"user_id"`
	Role        string    `gorm:"not null;default:member" json:"role"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
}
