package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/models"
	apperrors "github.com/campfirehq/campfire/pkg/errors"
	"github.com/campfirehq/campfire/pkg/logger"
	"github.com/campfirehq/campfire/pkg/metrics"
)

var (
	// ErrCommunityNotFound indicates the requested community does not exist.
	ErrCommunityNotFound = apperrors.New("COMMUNITY_NOT_FOUND", "Community not found", http.StatusNotFound)
	// ErrDuplicateCommunityName signals a case-insensitive name collision.
	ErrDuplicateCommunityName = apperrors.New("COMMUNITY_NAME_EXISTS", "Community name already exists", http.StatusConflict)
	// ErrAlreadyMember signals the user already holds a membership.
	ErrAlreadyMember = apperrors.New("ALREADY_MEMBER", "You are already a member of this community", http.StatusConflict)
	// ErrNotMember indicates the user holds no membership to remove.
	ErrNotMember = apperrors.New("NOT_MEMBER", "You are not a member of this community", http.StatusBadRequest)
	// ErrCannotLeaveAsOwner protects the creator's admin membership while the community exists.
	ErrCannotLeaveAsOwner = apperrors.New("CANNOT_LEAVE_AS_OWNER", "Community creators cannot leave their own community", http.StatusBadRequest)
	// ErrAccessDenied rejects direct joins into invite-gated or paid communities.
	ErrAccessDenied = apperrors.New("ACCESS_DENIED", "This community cannot be joined directly", http.StatusForbidden)
)

// CreateCommunityInput captures new community metadata.
type CreateCommunityInput struct {
	Name              string
	Description       string
	Access            string
	Price             *float64
	LogoURL           string
	BannerURL         string
	PostingRestricted bool
	CategoryIDs       []string
}

// UpdateCommunityInput describes mutable community fields.
type UpdateCommunityInput struct {
	Name              *string
	Description       *string
	Access            *string
	Price             *float64
	LogoURL           *string
	BannerURL         *string
	PostingRestricted *bool
	CategoryIDs       []string
}

// ListCommunitiesOptions filters and paginates community listings.
type ListCommunitiesOptions struct {
	Page       int
	PerPage    int
	Access     string
	CategoryID string
	// ViewerID, when set, marks communities the viewer belongs to.
	ViewerID string
}

// CommunityView decorates a community with viewer-specific state.
type CommunityView struct {
	models.Community
	IsJoined bool `json:"is_joined"`
}

// MemberView combines a membership row with the member's public profile.
type MemberView struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// CommunityService is the membership ledger: it owns community lifecycle,
// join/leave transitions, and the cached member counts. Every membership
// mutation and its paired counter update share one transaction.
type CommunityService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewCommunityService constructs a CommunityService instance.
func NewCommunityService(db *gorm.DB, auditService *AuditService) (*CommunityService, error) {
	if db == nil {
		return nil, errors.New("community service: db is required")
	}
	return &CommunityService{db: db, auditService: auditService}, nil
}

// Create registers a new community. The creator receives an admin membership
// and every listed category's community count is incremented in the same
// transaction.
func (s *CommunityService) Create(ctx context.Context, creatorID string, input CreateCommunityInput) (*models.Community, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("community name is required")
	}

	access := strings.TrimSpace(input.Access)
	if access == "" {
		access = models.AccessOpen
	}
	switch access {
	case models.AccessOpen, models.AccessInvite, models.AccessPaid:
	default:
		return nil, apperrors.NewBadRequest("access must be one of open, invite, paid")
	}
	if access == models.AccessPaid && (input.Price == nil || *input.Price <= 0) {
		return nil, apperrors.NewBadRequest("paid communities require a positive price")
	}
	if access != models.AccessPaid {
		input.Price = nil
	}

	if err := s.checkNameAvailable(ctx, name, ""); err != nil {
		return nil, err
	}

	categoryIDs := normaliseIDs(input.CategoryIDs)

	community := &models.Community{
		Name:              name,
		Description:       strings.TrimSpace(input.Description),
		Access:            access,
		Price:             input.Price,
		LogoURL:           strings.TrimSpace(input.LogoURL),
		BannerURL:         strings.TrimSpace(input.BannerURL),
		PostingRestricted: input.PostingRestricted,
		CreatorID:         creatorID,
		MemberCount:       1,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categories, err := loadActiveCategories(tx, categoryIDs)
		if err != nil {
			return err
		}

		if err := tx.Create(community).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrDuplicateCommunityName
			}
			return fmt.Errorf("community service: create community: %w", err)
		}

		membership := &models.Membership{
			CommunityID: community.ID,
			UserID:      creatorID,
			Role:        models.RoleAdmin,
			JoinedAt:    time.Now().UTC(),
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("community service: create owner membership: %w", err)
		}

		if err := createDefaultChannels(tx, community.ID, creatorID); err != nil {
			return fmt.Errorf("community service: %w", err)
		}

		if len(categories) > 0 {
			if err := tx.Model(community).Association("Categories").Append(categories); err != nil {
				return fmt.Errorf("community service: attach categories: %w", err)
			}
			for _, category := range categories {
				if err := incrementCategoryCount(tx, category.ID); err != nil {
					return fmt.Errorf("community service: increment category count: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MembershipEvents.WithLabelValues("create").Inc()
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &creatorID,
		Action:   "community.create",
		Resource: community.ID,
		Result:   "success",
		Metadata: map[string]any{"name": community.Name, "access": community.Access},
	})

	return community, nil
}

// Update modifies community metadata. Admins only; category replacements
// adjust both the old and the new categories' counts.
func (s *CommunityService) Update(ctx context.Context, communityID, actorID string, input UpdateCommunityInput) (*models.Community, error) {
	ctx = ensureContext(ctx)

	community, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, communityID, actorID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("community name must not be empty")
		}
		if !strings.EqualFold(name, community.Name) {
			if err := s.checkNameAvailable(ctx, name, community.ID); err != nil {
				return nil, err
			}
		}
		updates["name"] = name
		updates["name_key"] = strings.ToLower(name)
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Access != nil {
		access := strings.TrimSpace(*input.Access)
		switch access {
		case models.AccessOpen, models.AccessInvite, models.AccessPaid:
		default:
			return nil, apperrors.NewBadRequest("access must be one of open, invite, paid")
		}
		if access == models.AccessPaid && input.Price == nil && community.Price == nil {
			return nil, apperrors.NewBadRequest("paid communities require a positive price")
		}
		updates["access"] = access
	}
	if input.Price != nil {
		if *input.Price <= 0 {
			return nil, apperrors.NewBadRequest("price must be positive")
		}
		updates["price"] = *input.Price
	}
	if input.LogoURL != nil {
		updates["logo_url"] = strings.TrimSpace(*input.LogoURL)
	}
	if input.BannerURL != nil {
		updates["banner_url"] = strings.TrimSpace(*input.BannerURL)
	}
	if input.PostingRestricted != nil {
		updates["posting_restricted"] = *input.PostingRestricted
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(community).Updates(updates).Error; err != nil {
				if isUniqueConstraintError(err) {
					return ErrDuplicateCommunityName
				}
				return fmt.Errorf("community service: update community: %w", err)
			}
		}

		if input.CategoryIDs != nil {
			if err := s.replaceCategories(tx, community, normaliseIDs(input.CategoryIDs)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "community.update",
		Resource: community.ID,
		Result:   "success",
	})

	return s.loadCommunity(ctx, communityID)
}

// Delete removes a community outright: memberships, invites, channels, posts,
// upvotes and category associations all go with it, and each listed category's count
// is decremented. Hard delete by policy; categories are the soft-deleting
// entity in this system.
func (s *CommunityService) Delete(ctx context.Context, communityID, actorID string) error {
	ctx = ensureContext(ctx)

	community, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, communityID, actorID); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var categories []models.Category
		if err := tx.Model(community).Association("Categories").Find(&categories); err != nil {
			return fmt.Errorf("community service: load categories: %w", err)
		}
		for _, category := range categories {
			if err := decrementCategoryCount(tx, category.ID); err != nil {
				return fmt.Errorf("community service: decrement category count: %w", err)
			}
		}
		if err := tx.Model(community).Association("Categories").Clear(); err != nil {
			return fmt.Errorf("community service: clear categories: %w", err)
		}

		if err := tx.Where("community_id = ?", community.ID).Delete(&models.Invite{}).Error; err != nil {
			return fmt.Errorf("community service: delete invites: %w", err)
		}

		channelIDs := tx.Model(&models.Channel{}).Select("id").Where("community_id = ?", community.ID)
		if err := tx.Where("channel_id IN (?)", channelIDs).Delete(&models.ChannelMessage{}).Error; err != nil {
			return fmt.Errorf("community service: delete channel messages: %w", err)
		}
		if err := tx.Where("channel_id IN (?)", channelIDs).Delete(&models.ChannelGrant{}).Error; err != nil {
			return fmt.Errorf("community service: delete channel grants: %w", err)
		}
		if err := tx.Where("community_id = ?", community.ID).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("community service: delete channels: %w", err)
		}
		if err := tx.Where("community_id = ?", community.ID).Delete(&models.Membership{}).Error; err != nil {
			return fmt.Errorf("community service: delete memberships: %w", err)
		}

		postIDs := tx.Model(&models.Post{}).Select("id").Where("community_id = ?", community.ID)
		if err := tx.Where("post_id IN (?)", postIDs).Delete(&models.PostUpvote{}).Error; err != nil {
			return fmt.Errorf("community service: delete post upvotes: %w", err)
		}
		if err := tx.Where("community_id = ?", community.ID).Delete(&models.Post{}).Error; err != nil {
			return fmt.Errorf("community service: delete posts: %w", err)
		}

		if err := tx.Delete(community).Error; err != nil {
			return fmt.Errorf("community service: delete community: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.MembershipEvents.WithLabelValues("delete").Inc()
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "community.delete",
		Resource: community.ID,
		Result:   "success",
		Metadata: map[string]any{"name": community.Name},
	})

	return nil
}

// Join adds the user to an open community. Invite-gated and paid communities
// reject this path; invite redemption uses the internal join inside its own
// transaction instead.
func (s *CommunityService) Join(ctx context.Context, communityID, userID string) error {
	ctx = ensureContext(ctx)

	community, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	if community.Access != models.AccessOpen {
		return ErrAccessDenied
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.joinLocked(tx, community.ID, userID, models.RoleMember)
	})
	if err != nil {
		return err
	}

	metrics.MembershipEvents.WithLabelValues("join").Inc()
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &userID,
		Action:   "community.join",
		Resource: community.ID,
		Result:   "success",
	})

	return nil
}

// Leave removes the user's membership and decrements the member count. The
// creator cannot leave while the community exists; delete the community
// instead.
func (s *CommunityService) Leave(ctx context.Context, communityID, userID string) error {
	ctx = ensureContext(ctx)

	community, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	if community.CreatorID == userID {
		return ErrCannotLeaveAsOwner
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("community_id = ? AND user_id = ?", community.ID, userID).
			Delete(&models.Membership{})
		if res.Error != nil {
			return fmt.Errorf("community service: delete membership: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotMember
		}
		return decrementMemberCount(tx, community.ID)
	})
	if err != nil {
		return err
	}

	metrics.MembershipEvents.WithLabelValues("leave").Inc()
	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &userID,
		Action:   "community.leave",
		Resource: community.ID,
		Result:   "success",
	})

	return nil
}

// Get returns one community with viewer-specific join state.
func (s *CommunityService) Get(ctx context.Context, communityID, viewerID string) (*CommunityView, error) {
	ctx = ensureContext(ctx)

	var community models.Community
	err := s.db.WithContext(ctx).
		Preload("Categories").
		First(&community, "id = ?", communityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("community service: get community: %w", err)
	}

	view := &CommunityView{Community: community}
	if viewerID != "" {
		joined, err := s.isMember(ctx, community.ID, viewerID)
		if err != nil {
			return nil, err
		}
		view.IsJoined = joined
	}
	return view, nil
}

// List returns communities with pagination and optional access/category filters.
func (s *CommunityService) List(ctx context.Context, opts ListCommunitiesOptions) ([]CommunityView, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage <= 0 || perPage > 50 {
		perPage = 10
	}

	query := s.db.WithContext(ctx).Model(&models.Community{})
	if access := strings.TrimSpace(opts.Access); access != "" {
		query = query.Where("access = ?", access)
	}
	if categoryID := strings.TrimSpace(opts.CategoryID); categoryID != "" {
		query = query.Where(
			"id IN (?)",
			s.db.Table("community_categories").Select("community_id").Where("category_id = ?", categoryID),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("community service: count communities: %w", err)
	}

	var communities []models.Community
	if err := query.
		Preload("Categories").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&communities).Error; err != nil {
		return nil, 0, fmt.Errorf("community service: list communities: %w", err)
	}

	joined := map[string]bool{}
	if opts.ViewerID != "" && len(communities) > 0 {
		ids := make([]string, 0, len(communities))
		for _, community := range communities {
			ids = append(ids, community.ID)
		}
		var memberships []models.Membership
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND community_id IN ?", opts.ViewerID, ids).
			Find(&memberships).Error; err != nil {
			return nil, 0, fmt.Errorf("community service: load viewer memberships: %w", err)
		}
		for _, membership := range memberships {
			joined[membership.CommunityID] = true
		}
	}

	views := make([]CommunityView, 0, len(communities))
	for _, community := range communities {
		views = append(views, CommunityView{Community: community, IsJoined: joined[community.ID]})
	}
	return views, total, nil
}

// Members returns the community's member list with roles.
func (s *CommunityService) Members(ctx context.Context, communityID string, page, perPage int) ([]MemberView, int64, error) {
	ctx = ensureContext(ctx)

	if _, err := s.loadCommunity(ctx, communityID); err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 50 {
		perPage = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("community_id = ?", communityID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("community service: count members: %w", err)
	}

	var members []MemberView
	if err := s.db.WithContext(ctx).
		Table("memberships").
		Select("memberships.user_id, users.username, users.display_name, users.avatar, memberships.role, memberships.joined_at").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.community_id = ?", communityID).
		Order("memberships.joined_at ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Scan(&members).Error; err != nil {
		return nil, 0, fmt.Errorf("community service: list members: %w", err)
	}

	return members, total, nil
}

// IsAdmin reports whether the user holds an admin membership.
func (s *CommunityService) IsAdmin(ctx context.Context, communityID, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("community_id = ? AND user_id = ? AND role = ?", communityID, userID, models.RoleAdmin).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("community service: check admin: %w", err)
	}
	return count > 0, nil
}

// joinLocked creates a membership and increments the member count inside the
// caller's transaction. The composite unique index on memberships arbitrates
// concurrent joins: the loser reports ErrAlreadyMember.
func (s *CommunityService) joinLocked(tx *gorm.DB, communityID, userID, role string) error {
	membership := &models.Membership{
		CommunityID: communityID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    time.Now().UTC(),
	}
	if err := tx.Create(membership).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("community service: create membership: %w", err)
	}

	if err := tx.Model(&models.Community{}).
		Where("id = ?", communityID).
		UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
		return fmt.Errorf("community service: increment member count: %w", err)
	}
	return nil
}

func (s *CommunityService) isMember(ctx context.Context, communityID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("community service: check membership: %w", err)
	}
	return count > 0, nil
}

func (s *CommunityService) loadCommunity(ctx context.Context, communityID string) (*models.Community, error) {
	var community models.Community
	err := s.db.WithContext(ctx).First(&community, "id = ?", communityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("community service: load community: %w", err)
	}
	return &community, nil
}

func (s *CommunityService) requireAdmin(ctx context.Context, communityID, userID string) error {
	admin, err := s.IsAdmin(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if !admin {
		return apperrors.ErrForbidden
	}
	return nil
}

func (s *CommunityService) checkNameAvailable(ctx context.Context, name, excludeID string) error {
	query := s.db.WithContext(ctx).Model(&models.Community{}).Where("LOWER(name) = LOWER(?)", name)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("community service: check name: %w", err)
	}
	if count > 0 {
		return ErrDuplicateCommunityName
	}
	return nil
}

// replaceCategories swaps the community's category set, adjusting counts on
// both sides of the change.
func (s *CommunityService) replaceCategories(tx *gorm.DB, community *models.Community, categoryIDs []string) error {
	categories, err := loadActiveCategories(tx, categoryIDs)
	if err != nil {
		return err
	}

	var current []models.Category
	if err := tx.Model(community).Association("Categories").Find(&current); err != nil {
		return fmt.Errorf("community service: load current categories: %w", err)
	}

	currentSet := make(map[string]struct{}, len(current))
	for _, category := range current {
		currentSet[category.ID] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		nextSet[category.ID] = struct{}{}
	}

	if err := tx.Model(community).Association("Categories").Replace(categories); err != nil {
		return fmt.Errorf("community service: replace categories: %w", err)
	}

	for _, category := range categories {
		if _, existed := currentSet[category.ID]; !existed {
			if err := incrementCategoryCount(tx, category.ID); err != nil {
				return fmt.Errorf("community service: increment category count: %w", err)
			}
		}
	}
	for _, category := range current {
		if _, kept := nextSet[category.ID]; !kept {
			if err := decrementCategoryCount(tx, category.ID); err != nil {
				return fmt.Errorf("community service: decrement category count: %w", err)
			}
		}
	}

	return nil
}

// decrementMemberCount decrements the cached member count, clamped at zero.
// Hitting zero here means the count and the membership set diverged; log the
// inconsistency instead of failing the request.
func decrementMemberCount(tx *gorm.DB, communityID string) error {
	res := tx.Model(&models.Community{}).
		Where("id = ? AND member_count > 0", communityID).
		UpdateColumn("member_count", gorm.Expr("member_count - 1"))
	if res.Error != nil {
		return fmt.Errorf("community service: decrement member count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.WithModule("communities").Warn("member count decrement below zero",
			zap.String("community_id", communityID),
		)
		metrics.CounterDrift.WithLabelValues("community_member_count").Inc()
	}
	return nil
}

// loadActiveCategories resolves category ids, failing when any are unknown or
// inactive.
func loadActiveCategories(tx *gorm.DB, categoryIDs []string) ([]models.Category, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}

	var categories []models.Category
	if err := tx.Where("id IN ? AND active = ?", categoryIDs, true).Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("community service: load categories: %w", err)
	}
	if len(categories) != len(categoryIDs) {
		return nil, apperrors.NewBadRequest("one or more categories were not found")
	}
	return categories, nil
}
