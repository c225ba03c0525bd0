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
	"github.com/campfirehq/campfire/pkg/crypto"
	apperrors "github.com/campfirehq/campfire/pkg/errors"
	"github.com/campfirehq/campfire/pkg/metrics"
)

const (
	defaultInviteExpiry    = 7 * 24 * time.Hour
	defaultInviteMaxUses   = 1
	inviteTokenBytes       = 9
	inviteGenerateAttempts = 3
)

var (
	// ErrInviteNotFound indicates no invite matches the provided code.
	ErrInviteNotFound = apperrors.New("INVITE_NOT_FOUND", "Invite code not found", http.StatusNotFound)
	// ErrInviteExpired indicates the invite code has passed its expiry.
	ErrInviteExpired = apperrors.New("INVITE_EXPIRED", "Invite code has expired", http.StatusGone)
	// ErrInviteExhausted indicates the invite has no remaining uses.
	ErrInviteExhausted = apperrors.New("INVITE_EXHAUSTED", "Invite code has no remaining uses", http.StatusConflict)
	// ErrInviteInactive indicates the invite was deactivated by an admin.
	ErrInviteInactive = apperrors.New("INVITE_INACTIVE", "Invite code has been deactivated", http.StatusConflict)
)

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService issues, validates, consumes, and revokes invite codes for
// restricted communities. Redemption is all-or-nothing: the use-count
// increment and the membership creation share one transaction, and the
// increment itself is a conditional update so concurrent redemptions can
// never exceed max uses.
type InviteService struct {
	db          *gorm.DB
	communities *CommunityService
	audit       *AuditService
	now         func() time.Time
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, communities *CommunityService, audit *AuditService, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if communities == nil {
		return nil, errors.New("invite service: community service is required")
	}

	service := &InviteService{
		db:          db,
		communities: communities,
		audit:       audit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Generate creates a new invite code for the community. Admins only.
// A zero ttl or maxUses falls back to the defaults (7 days, single use).
func (s *InviteService) Generate(ctx context.Context, communityID, creatorID string, ttl time.Duration, maxUses int64) (*models.Invite, error) {
	ctx = ensureContext(ctx)

	if _, err := s.communities.loadCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	if err := s.communities.requireAdmin(ctx, communityID, creatorID); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = defaultInviteExpiry
	}
	if maxUses <= 0 {
		maxUses = defaultInviteMaxUses
	}

	invite := &models.Invite{
		CommunityID: communityID,
		CreatedBy:   creatorID,
		ExpiresAt:   s.now().Add(ttl),
		MaxUses:     maxUses,
		Active:      true,
	}

	// The unique index on code guards against the (unlikely) random
	// collision; retry with a fresh token instead of failing the request.
	var lastErr error
	for attempt := 0; attempt < inviteGenerateAttempts; attempt++ {
		code, err := crypto.GenerateToken(inviteTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("invite service: generate code: %w", err)
		}
		invite.Code = code

		lastErr = s.db.WithContext(ctx).Create(invite).Error
		if lastErr == nil {
			recordAudit(s.audit, ctx, AuditEntry{
				UserID:   &creatorID,
				Action:   "invite.generate",
				Resource: communityID,
				Result:   "success",
				Metadata: map[string]any{"max_uses": maxUses, "expires_at": invite.ExpiresAt},
			})
			return invite, nil
		}
		if !isUniqueConstraintError(lastErr) {
			break
		}
	}
	return nil, fmt.Errorf("invite service: create invite: %w", lastErr)
}

// Redeem consumes one use of the invite and joins the user to the owning
// community as a single unit. If the join fails the consumed use is rolled
// back with it.
func (s *InviteService) Redeem(ctx context.Context, code, userID string) (*models.Community, error) {
	ctx = ensureContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.NewBadRequest("invite code is required")
	}

	var community *models.Community
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite models.Invite
		if err := tx.Where("code = ?", code).First(&invite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInviteNotFound
			}
			return fmt.Errorf("invite service: find invite: %w", err)
		}

		if err := s.classify(&invite); err != nil {
			return err
		}

		// Increment-if-below-cap: the WHERE clause makes the capacity
		// check and the consumption one atomic statement, so two
		// concurrent redemptions of the last use cannot both pass.
		res := tx.Model(&models.Invite{}).
			Where("id = ? AND active = ? AND use_count < max_uses", invite.ID, true).
			UpdateColumn("use_count", gorm.Expr("use_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("invite service: consume invite: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race; re-read for an accurate reason.
			if err := tx.Where("id = ?", invite.ID).First(&invite).Error; err != nil {
				return fmt.Errorf("invite service: reload invite: %w", err)
			}
			if err := s.classify(&invite); err != nil {
				return err
			}
			return ErrInviteExhausted
		}

		if err := s.communities.joinLocked(tx, invite.CommunityID, userID, models.RoleMember); err != nil {
			return err
		}

		var joined models.Community
		if err := tx.First(&joined, "id = ?", invite.CommunityID).Error; err != nil {
			return fmt.Errorf("invite service: load community: %w", err)
		}
		community = &joined
		return nil
	})
	if err != nil {
		metrics.InviteRedemptions.WithLabelValues(redemptionResult(err)).Inc()
		return nil, err
	}

	metrics.InviteRedemptions.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &userID,
		Action:   "invite.redeem",
		Resource: community.ID,
		Result:   "success",
	})

	return community, nil
}

// Deactivate turns an invite off. Admins of the owning community only.
// Deactivation is terminal; there is no reactivation path.
func (s *InviteService) Deactivate(ctx context.Context, code, actorID string) error {
	ctx = ensureContext(ctx)

	var invite models.Invite
	err := s.db.WithContext(ctx).Where("code = ?", strings.TrimSpace(code)).First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInviteNotFound
	}
	if err != nil {
		return fmt.Errorf("invite service: find invite: %w", err)
	}

	if err := s.communities.requireAdmin(ctx, invite.CommunityID, actorID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Model(&invite).
		Update("active", false).Error; err != nil {
		return fmt.Errorf("invite service: deactivate invite: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "invite.deactivate",
		Resource: invite.CommunityID,
		Result:   "success",
		Metadata: map[string]any{"code": invite.Code},
	})

	return nil
}

// List returns every invite for the community, consumed and expired ones
// included, for audit. Admins only.
func (s *InviteService) List(ctx context.Context, communityID, actorID string) ([]models.Invite, error) {
	ctx = ensureContext(ctx)

	if _, err := s.communities.loadCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	if err := s.communities.requireAdmin(ctx, communityID, actorID); err != nil {
		return nil, err
	}

	var invites []models.Invite
	if err := s.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}

// classify maps an invite's state to its redemption error, nil when redeemable.
func (s *InviteService) classify(invite *models.Invite) error {
	if !s.now().Before(invite.ExpiresAt) {
		return ErrInviteExpired
	}
	if !invite.Active {
		return ErrInviteInactive
	}
	if invite.UseCount >= invite.MaxUses {
		return ErrInviteExhausted
	}
	return nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, ErrInviteNotFound):
		return "not_found"
	case errors.Is(err, ErrInviteExpired):
		return "expired"
	case errors.Is(err, ErrInviteExhausted):
		return "exhausted"
	case errors.Is(err, ErrInviteInactive):
		return "inactive"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	default:
		return "error"
	}
}
