package models

import (
	"strings"

	"gorm.io/gorm"
)

// Community access modes.
const (
	AccessOpen   = "open"
	AccessInvite = "invite"
	AccessPaid   = "paid"
)

// Community groups members around shared content. MemberCount is a cached
// aggregate and must always equal the number of Membership rows referencing
// the community; every membership mutation updates both in one transaction.
type Community struct {
	BaseModel

	Name        string   `gorm:"not null" json:"name"`
	Description string   `json:"description"`
	Access      string   `gorm:"not null;default:open" json:"access"`
	Price       *float64 `json:"price,omitempty"`
	LogoURL     string   `json:"logo_url"`
	BannerURL   string   `json:"banner_url"`
	CreatorID   string   `gorm:"type:uuid;index;not null" json:"creator_id"`
	MemberCount int64    `gorm:"not null;default:0" json:"member_count"`

	// NameKey is the lowercased name. Its unique index makes name uniqueness
	// case-insensitive at the schema level, so the index arbitrates concurrent
	// creates the same way the membership pair index arbitrates joins.
	NameKey string `gorm:"column:name_key;uniqueIndex;not null" json:"-"`

	// PostingRestricted limits post creation to admins when set.
	PostingRestricted bool `gorm:"not null;default:false" json:"posting_restricted"`

	Categories []Category `gorm:"many2many:community_categories;" json:"categories,omitempty"`
}

// BeforeSave keeps NameKey in sync for struct-based writes. Map updates that
// rename a community must set name_key alongside name.
func (c *Community) BeforeSave(tx *gorm.DB) error {
	if c.Name != "" {
		c.NameKey = strings.ToLower(c.Name)
	}
	return nil
}
