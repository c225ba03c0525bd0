package models

import (
	"strings"

	"gorm.io/gorm"
)

// Category is shared reference data communities tag themselves with.
// CommunityCount caches the number of live communities listing the category;
// it is adjusted atomically alongside association changes and can be repaired
// from the association table via recalculation. Categories soft-delete
// (Active=false) to preserve historical references.
type Category struct {
	BaseModel

	Name           string `gorm:"not null" json:"name"`
	Slug           string `gorm:"uniqueIndex;not null" json:"slug"`
	Description    string `json:"description"`
	IsDefault      bool   `gorm:"not null;default:false" json:"is_default"`
	Active         bool   `gorm:"not null;default:true" json:"active"`
	CommunityCount int64  `gorm:"not null;default:0" json:"community_count"`

	// NameKey backs the case-insensitive unique index on names; concurrent
	// creates with different casings collide here, not in a pre-check.
	NameKey string `gorm:"column:name_key;uniqueIndex;not null" json:"-"`
}

// BeforeSave keeps NameKey in sync for struct-based writes.
func (c *Category) BeforeSave(tx *gorm.DB) error {
	if c.Name != "" {
		c.NameKey = strings.ToLower(c.Name)
	}
	return nil
}
