package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.Membership{},
		&models.Invite{},
		&models.Channel{},
		&models.ChannelGrant{},
		&models.ChannelMessage{},
		&models.Category{},
		&models.Post{},
		&models.PostUpvote{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// defaultCategories is the fixed seed set. Names are matched case-insensitively
// during seeding so repeated runs never create duplicates or reset fields an
// operator has customised.
var defaultCategories = []models.Category{
	{Name: "General", Slug: "general", Description: "General discussion", IsDefault: true, Active: true},
	{Name: "Technology", Slug: "technology", Description: "Software, hardware and everything between", IsDefault: true, Active: true},
	{Name: "Gaming", Slug: "gaming", Description: "Games and gaming culture", IsDefault: true, Active: true},
	{Name: "Music", Slug: "music", Description: "Listening, making and sharing music", IsDefault: true, Active: true},
	{Name: "Art", Slug: "art", Description: "Visual arts and creative work", IsDefault: true, Active: true},
	{Name: "Science", Slug: "science", Description: "Research, discoveries and discussion", IsDefault: true, Active: true},
	{Name: "Sports", Slug: "sports", Description: "Teams, matches and training", IsDefault: true, Active: true},
	{Name: "Education", Slug: "education", Description: "Learning and teaching", IsDefault: true, Active: true},
}

// SeedData populates the default category set. Idempotent: existing categories
// (matched by name, case-insensitively) are left untouched.
func SeedData(db *gorm.DB) error {
	for _, category := range defaultCategories {
		var existing models.Category
		err := db.Where("LOWER(name) = LOWER(?)", category.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&category).Error; err != nil {
			return err
		}
	}
	return nil
}
