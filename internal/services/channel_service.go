package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/models"
	apperrors "github.com/campfirehq/campfire/pkg/errors"
)

var (
	// ErrChannelNotFound indicates the requested channel does not exist in the community.
	ErrChannelNotFound = apperrors.New("CHANNEL_NOT_FOUND", "Channel not found", http.StatusNotFound)
	// ErrDuplicateChannelName signals a name collision within one community.
	ErrDuplicateChannelName = apperrors.New("CHANNEL_NAME_EXISTS", "Channel name already exists in this community", http.StatusConflict)
	// ErrCannotDeleteGeneral protects the default general channel.
	ErrCannotDeleteGeneral = apperrors.New("CANNOT_DELETE_GENERAL", "The general channel cannot be deleted", http.StatusBadRequest)
)

// CreateChannelInput captures new channel metadata. AllowedUserIDs only
// applies to private channels; the creator is always granted.
type CreateChannelInput struct {
	Name           string
	Description    string
	Kind           string
	IsPrivate      bool
	AllowedUserIDs []string
}

// UpdateChannelInput describes mutable channel fields.
type UpdateChannelInput struct {
	Name        *string
	Description *string
	Kind        *string
}

// PostMessageInput captures a new channel message.
type PostMessageInput struct {
	Content string
	Kind    string
	ReplyTo *string
}

// ChannelView decorates a channel with stream activity.
type ChannelView struct {
	models.Channel
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// MessageAuthor is the public author snapshot attached to messages.
type MessageAuthor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// MessageView combines a channel message with its author.
type MessageView struct {
	models.ChannelMessage
	Author MessageAuthor `json:"author" gorm:"-"`
}

// ChannelService owns per-community channels and their message streams. Every
// community starts with a general and an announcements channel; the general
// channel cannot be deleted while the community exists.
type ChannelService struct {
	db           *gorm.DB
	communities  *CommunityService
	auditService *AuditService
}

// NewChannelService constructs a ChannelService instance.
func NewChannelService(db *gorm.DB, communities *CommunityService, auditService *AuditService) (*ChannelService, error) {
	if db == nil {
		return nil, errors.New("channel service: db is required")
	}
	if communities == nil {
		return nil, errors.New("channel service: community service is required")
	}
	return &ChannelService{db: db, communities: communities, auditService: auditService}, nil
}

// Create adds a channel to a community. Admins only; names are canonical
// lowercase slugs and unique within the community, with the composite index
// arbitrating concurrent creates.
func (s *ChannelService) Create(ctx context.Context, communityID, actorID string, input CreateChannelInput) (*models.Channel, error) {
	ctx = ensureContext(ctx)

	if _, err := s.communities.loadCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	if err := s.communities.requireAdmin(ctx, communityID, actorID); err != nil {
		return nil, err
	}

	name, err := channelName(input.Name)
	if err != nil {
		return nil, err
	}
	kind, err := channelKind(input.Kind)
	if err != nil {
		return nil, err
	}

	channel := &models.Channel{
		CommunityID: communityID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Kind:        kind,
		IsPrivate:   input.IsPrivate,
		CreatedBy:   actorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(channel).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrDuplicateChannelName
			}
			return fmt.Errorf("channel service: create channel: %w", err)
		}

		if channel.IsPrivate {
			granted := normaliseIDs(append(input.AllowedUserIDs, actorID))
			for _, userID := range granted {
				grant := &models.ChannelGrant{ChannelID: channel.ID, UserID: userID}
				if err := tx.Create(grant).Error; err != nil {
					return fmt.Errorf("channel service: grant access: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "channel.create",
		Resource: channel.ID,
		Result:   "success",
		Metadata: map[string]any{"name": channel.Name, "community_id": communityID},
	})

	return channel, nil
}

// Update modifies channel metadata. Admins only; renames keep the canonical
// slug form and uniqueness within the community.
func (s *ChannelService) Update(ctx context.Context, communityID, channelID, actorID string, input UpdateChannelInput) (*models.Channel, error) {
	ctx = ensureContext(ctx)

	channel, err := s.loadChannel(ctx, communityID, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.communities.requireAdmin(ctx, communityID, actorID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name, err := channelName(*input.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Kind != nil {
		kind, err := channelKind(*input.Kind)
		if err != nil {
			return nil, err
		}
		updates["kind"] = kind
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(channel).Updates(updates).Error; err != nil {
			if isUniqueConstraintError(err) {
				return nil, ErrDuplicateChannelName
			}
			return nil, fmt.Errorf("channel service: update channel: %w", err)
		}
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "channel.update",
		Resource: channel.ID,
		Result:   "success",
	})

	return s.loadChannel(ctx, communityID, channel.ID)
}

// Delete removes a channel and its message stream. Admins only; the general
// channel is protected.
func (s *ChannelService) Delete(ctx context.Context, communityID, channelID, actorID string) error {
	ctx = ensureContext(ctx)

	channel, err := s.loadChannel(ctx, communityID, channelID)
	if err != nil {
		return err
	}
	if err := s.communities.requireAdmin(ctx, communityID, actorID); err != nil {
		return err
	}
	if channel.Name == "general" {
		return ErrCannotDeleteGeneral
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", channel.ID).Delete(&models.ChannelMessage{}).Error; err != nil {
			return fmt.Errorf("channel service: delete messages: %w", err)
		}
		if err := tx.Where("channel_id = ?", channel.ID).Delete(&models.ChannelGrant{}).Error; err != nil {
			return fmt.Errorf("channel service: delete grants: %w", err)
		}
		if err := tx.Delete(channel).Error; err != nil {
			return fmt.Errorf("channel service: delete channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "channel.delete",
		Resource: channel.ID,
		Result:   "success",
		Metadata: map[string]any{"name": channel.Name},
	})

	return nil
}

// List returns the community's channels visible to the viewer, ordered by
// creation. Members only; private channels show up for grantees, their
// creator and community admins.
func (s *ChannelService) List(ctx context.Context, communityID, viewerID string, page, perPage int) ([]ChannelView, int64, error) {
	ctx = ensureContext(ctx)

	admin, err := s.requireMember(ctx, communityID, viewerID)
	if err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 50 {
		perPage = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Channel{}).Where("community_id = ?", communityID)
	if !admin {
		query = query.Where(
			"is_private = ? OR created_by = ? OR id IN (?)",
			false,
			viewerID,
			s.db.Table("channel_grants").Select("channel_id").Where("user_id = ?", viewerID),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("channel service: count channels: %w", err)
	}

	var channels []models.Channel
	if err := query.
		Order("created_at ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&channels).Error; err != nil {
		return nil, 0, fmt.Errorf("channel service: list channels: %w", err)
	}

	views := make([]ChannelView, 0, len(channels))
	for _, channel := range channels {
		view := ChannelView{Channel: channel}

		var last models.ChannelMessage
		err := s.db.WithContext(ctx).
			Where("channel_id = ?", channel.ID).
			Order("created_at DESC").
			First(&last).Error
		if err == nil {
			at := last.CreatedAt
			view.LastMessageAt = &at
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, fmt.Errorf("channel service: load last message: %w", err)
		}

		views = append(views, view)
	}

	return views, total, nil
}

// Messages returns a channel's stream, newest first, with author snapshots.
// Members only; private channels additionally require a grant. The channel
// reference may be an id or a channel name.
func (s *ChannelService) Messages(ctx context.Context, communityID, channelRef, viewerID string, page, perPage int) ([]MessageView, int64, error) {
	ctx = ensureContext(ctx)

	channel, err := s.accessibleChannel(ctx, communityID, channelRef, viewerID)
	if err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 50 {
		perPage = 20
	}

	query := s.db.WithContext(ctx).Model(&models.ChannelMessage{}).Where("channel_id = ?", channel.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("channel service: count messages: %w", err)
	}

	var messages []models.ChannelMessage
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("channel service: list messages: %w", err)
	}

	authors, err := s.loadAuthors(ctx, messages)
	if err != nil {
		return nil, 0, err
	}

	views := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		views = append(views, MessageView{
			ChannelMessage: message,
			Author:         authors[message.AuthorID],
		})
	}

	return views, total, nil
}

// PostMessage appends a message to a channel. Members only; announcements in
// announcement channels are reserved for community admins.
func (s *ChannelService) PostMessage(ctx context.Context, communityID, channelRef, authorID string, input PostMessageInput) (*MessageView, error) {
	ctx = ensureContext(ctx)

	channel, err := s.accessibleChannel(ctx, communityID, channelRef, authorID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewBadRequest("message content is required")
	}

	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = models.MessageKindMessage
	}
	switch kind {
	case models.MessageKindMessage, models.MessageKindAnnouncement:
	default:
		return nil, apperrors.NewBadRequest("kind must be one of message, announcement")
	}

	if kind == models.MessageKindAnnouncement && channel.Kind == models.ChannelKindAnnouncement {
		if err := s.communities.requireAdmin(ctx, communityID, authorID); err != nil {
			return nil, err
		}
	}

	if input.ReplyTo != nil {
		var count int64
		err := s.db.WithContext(ctx).
			Model(&models.ChannelMessage{}).
			Where("id = ? AND channel_id = ?", *input.ReplyTo, channel.ID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("channel service: check reply target: %w", err)
		}
		if count == 0 {
			return nil, apperrors.NewBadRequest("reply target does not exist in this channel")
		}
	}

	message := &models.ChannelMessage{
		ChannelID: channel.ID,
		AuthorID:  authorID,
		Content:   content,
		Kind:      kind,
		ReplyTo:   input.ReplyTo,
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("channel service: create message: %w", err)
	}

	authors, err := s.loadAuthors(ctx, []models.ChannelMessage{*message})
	if err != nil {
		return nil, err
	}

	return &MessageView{ChannelMessage: *message, Author: authors[authorID]}, nil
}

// createDefaultChannels seeds the channels every new community starts with,
// inside the community creation transaction.
func createDefaultChannels(tx *gorm.DB, communityID, creatorID string) error {
	defaults := []models.Channel{
		{CommunityID: communityID, Name: "general", Description: "General discussions", Kind: models.ChannelKindGeneral, CreatedBy: creatorID},
		{CommunityID: communityID, Name: "announcements", Description: "Important announcements", Kind: models.ChannelKindAnnouncement, CreatedBy: creatorID},
	}
	for i := range defaults {
		if err := tx.Create(&defaults[i]).Error; err != nil {
			return fmt.Errorf("create default channel %s: %w", defaults[i].Name, err)
		}
	}
	return nil
}

// requireMember verifies membership and reports whether the viewer is an admin.
func (s *ChannelService) requireMember(ctx context.Context, communityID, viewerID string) (bool, error) {
	if _, err := s.communities.loadCommunity(ctx, communityID); err != nil {
		return false, err
	}
	member, err := s.communities.isMember(ctx, communityID, viewerID)
	if err != nil {
		return false, err
	}
	if !member {
		return false, apperrors.ErrForbidden
	}
	return s.communities.IsAdmin(ctx, communityID, viewerID)
}

// accessibleChannel resolves a channel reference for a member and enforces
// private channel grants.
func (s *ChannelService) accessibleChannel(ctx context.Context, communityID, channelRef, viewerID string) (*models.Channel, error) {
	admin, err := s.requireMember(ctx, communityID, viewerID)
	if err != nil {
		return nil, err
	}

	channel, err := s.loadChannel(ctx, communityID, channelRef)
	if err != nil {
		return nil, err
	}

	if channel.IsPrivate && !admin && channel.CreatedBy != viewerID {
		var granted int64
		err := s.db.WithContext(ctx).
			Model(&models.ChannelGrant{}).
			Where("channel_id = ? AND user_id = ?", channel.ID, viewerID).
			Count(&granted).Error
		if err != nil {
			return nil, fmt.Errorf("channel service: check grant: %w", err)
		}
		if granted == 0 {
			return nil, apperrors.ErrForbidden
		}
	}

	return channel, nil
}

// loadChannel finds a channel by id or name within one community.
func (s *ChannelService) loadChannel(ctx context.Context, communityID, channelRef string) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND (id = ? OR name = ?)", communityID, channelRef, strings.ToLower(channelRef)).
		First(&channel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("channel service: load channel: %w", err)
	}
	return &channel, nil
}

func (s *ChannelService) loadAuthors(ctx context.Context, messages []models.ChannelMessage) (map[string]MessageAuthor, error) {
	ids := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		if _, ok := seen[message.AuthorID]; ok {
			continue
		}
		seen[message.AuthorID] = struct{}{}
		ids = append(ids, message.AuthorID)
	}
	if len(ids) == 0 {
		return map[string]MessageAuthor{}, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("channel service: load authors: %w", err)
	}

	authors := make(map[string]MessageAuthor, len(users))
	for _, user := range users {
		authors[user.ID] = MessageAuthor{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Avatar:      user.Avatar,
		}
	}
	return authors, nil
}

// channelName canonicalises and validates a channel name.
func channelName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", apperrors.NewBadRequest("channel name is required")
	}
	if name != slugify(name) {
		return "", apperrors.NewBadRequest("channel name must contain only lowercase letters, digits and hyphens")
	}
	return name, nil
}

func channelKind(raw string) (string, error) {
	kind := strings.TrimSpace(raw)
	if kind == "" {
		return models.ChannelKindText, nil
	}
	switch kind {
	case models.ChannelKindGeneral, models.ChannelKindText, models.ChannelKindAnnouncement:
		return kind, nil
	}
	return "", apperrors.NewBadRequest("kind must be one of general, text, announcement")
}
