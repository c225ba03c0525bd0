package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/database"
	"github.com/campfirehq/campfire/internal/models"
	apperrors "github.com/campfirehq/campfire/pkg/errors"
	"github.com/campfirehq/campfire/pkg/logger"
	"github.com/campfirehq/campfire/pkg/metrics"
)

var (
	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = apperrors.New("CATEGORY_NOT_FOUND", "Category not found", http.StatusNotFound)
	// ErrDuplicateCategoryName signals a case-insensitive name collision.
	ErrDuplicateCategoryName = apperrors.New("CATEGORY_NAME_EXISTS", "Category name already exists", http.StatusConflict)
	// ErrCategoryInUse blocks deletion of categories still listed by communities.
	ErrCategoryInUse = apperrors.New("CATEGORY_IN_USE", "Category is still used by communities", http.StatusConflict)
)

// CreateCategoryInput captures new category metadata.
type CreateCategoryInput struct {
	Name        string
	Description string
}

// RecalculateResult reports one category's repaired community count.
type RecalculateResult struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Previous   int64  `json:"previous"`
	Current    int64  `json:"current"`
}

// CategoryService keeps each category's cached community count consistent with
// the community_categories association table.
type CategoryService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewCategoryService constructs a CategoryService instance.
func NewCategoryService(db *gorm.DB, auditService *AuditService) (*CategoryService, error) {
	if db == nil {
		return nil, errors.New("category service: db is required")
	}
	return &CategoryService{db: db, auditService: auditService}, nil
}

// Create registers a new category with a derived unique slug.
func (s *CategoryService) Create(ctx context.Context, input CreateCategoryInput) (*models.Category, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("category name is required")
	}

	var existing models.Category
	err := s.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&existing).Error
	if err == nil {
		return nil, ErrDuplicateCategoryName
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("category service: check name: %w", err)
	}

	category := &models.Category{
		Name:        name,
		Slug:        slugify(name),
		Description: strings.TrimSpace(input.Description),
		Active:      true,
	}

	if err := s.db.WithContext(ctx).Create(category).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateCategoryName
		}
		return nil, fmt.Errorf("category service: create category: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "category.create",
		Resource: category.ID,
		Result:   "success",
		Metadata: map[string]any{"name": category.Name},
	})

	return category, nil
}

// List returns categories, active ones only unless includeInactive is set.
func (s *CategoryService) List(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}

	var categories []models.Category
	if err := query.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("category service: list categories: %w", err)
	}
	return categories, nil
}

// Delete soft-deletes a category that no community lists any more.
// Historical references stay intact; the category simply stops being offered.
func (s *CategoryService) Delete(ctx context.Context, id, actorID string) error {
	ctx = ensureContext(ctx)

	var category models.Category
	err := s.db.WithContext(ctx).First(&category, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("category service: load category: %w", err)
	}

	if category.CommunityCount > 0 {
		return ErrCategoryInUse
	}

	if err := s.db.WithContext(ctx).
		Model(&category).
		Update("active", false).Error; err != nil {
		return fmt.Errorf("category service: deactivate category: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "category.delete",
		Resource: category.ID,
		Result:   "success",
		Metadata: map[string]any{"name": category.Name},
	})

	return nil
}

// Recalculate recomputes community counts from the association table,
// overwriting the cached values unconditionally. An empty id repairs all
// categories.
func (s *CategoryService) Recalculate(ctx context.Context, id string) ([]RecalculateResult, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx)
	if id = strings.TrimSpace(id); id != "" {
		query = query.Where("id = ?", id)
	}

	var categories []models.Category
	if err := query.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("category service: load categories: %w", err)
	}
	if id != "" && len(categories) == 0 {
		return nil, ErrCategoryNotFound
	}

	results := make([]RecalculateResult, 0, len(categories))
	for _, category := range categories {
		var actual int64
		err := s.db.WithContext(ctx).
			Table("community_categories").
			Joins("JOIN communities ON communities.id = community_categories.community_id").
			Where("community_categories.category_id = ?", category.ID).
			Count(&actual).Error
		if err != nil {
			return nil, fmt.Errorf("category service: count associations: %w", err)
		}

		if actual != category.CommunityCount {
			logger.WithModule("categories").Warn("repairing community count drift",
				zap.String("category_id", category.ID),
				zap.Int64("cached", category.CommunityCount),
				zap.Int64("actual", actual),
			)
		}

		if err := s.db.WithContext(ctx).
			Model(&models.Category{}).
			Where("id = ?", category.ID).
			UpdateColumn("community_count", actual).Error; err != nil {
			return nil, fmt.Errorf("category service: update count: %w", err)
		}

		results = append(results, RecalculateResult{
			CategoryID: category.ID,
			Name:       category.Name,
			Previous:   category.CommunityCount,
			Current:    actual,
		})
	}

	return results, nil
}

// SeedDefaults inserts the fixed default category set. Idempotent: re-running
// never duplicates entries or resets customised fields.
func (s *CategoryService) SeedDefaults(ctx context.Context) error {
	return database.SeedData(s.db.WithContext(ensureContext(ctx)))
}

// incrementCategoryCount bumps the cached community count inside the caller's
// transaction as a single atomic column update.
func incrementCategoryCount(tx *gorm.DB, categoryID string) error {
	return tx.Model(&models.Category{}).
		Where("id = ?", categoryID).
		UpdateColumn("community_count", gorm.Expr("community_count + 1")).Error
}

// decrementCategoryCount decrements the cached count, clamped at zero. A
// decrement that finds the counter already at zero is counter drift: it is
// logged and counted, never surfaced as a request failure.
func decrementCategoryCount(tx *gorm.DB, categoryID string) error {
	res := tx.Model(&models.Category{}).
		Where("id = ? AND community_count > 0", categoryID).
		UpdateColumn("community_count", gorm.Expr("community_count - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.WithModule("categories").Warn("community count decrement below zero",
			zap.String("category_id", categoryID),
		)
		metrics.CounterDrift.WithLabelValues("category_community_count").Inc()
	}
	return nil
}
