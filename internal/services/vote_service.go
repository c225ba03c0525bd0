package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/models"
	"github.com/campfirehq/campfire/pkg/logger"
	"github.com/campfirehq/campfire/pkg/metrics"
)

const toggleAttempts = 3

// ToggleResult reports the voter's new state and the post's new upvote count.
type ToggleResult struct {
	Voted bool  `json:"voted"`
	Count int64 `json:"count"`
}

// VoteService maintains per-post voter sets and their cached upvote counts.
// Toggle is the only mutation primitive and is its own inverse.
type VoteService struct {
	db *gorm.DB
}

// NewVoteService constructs a VoteService instance.
func NewVoteService(db *gorm.DB) (*VoteService, error) {
	if db == nil {
		return nil, errors.New("vote service: db is required")
	}
	return &VoteService{db: db}, nil
}

// Toggle flips the user's membership in the post's voter set together with
// the cached count in one transaction. Concurrent toggles by the same user
// serialize on the voter set's unique index: when an insert loses that race
// the whole attempt is retried and lands on the remove branch, preserving
// toggle semantics.
func (s *VoteService) Toggle(ctx context.Context, postID, userID string) (*ToggleResult, error) {
	ctx = ensureContext(ctx)

	var result *ToggleResult
	var err error
	for attempt := 0; attempt < toggleAttempts; attempt++ {
		result, err = s.toggleOnce(ctx, postID, userID)
		if err == nil || !isUniqueConstraintError(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	state := "unvoted"
	if result.Voted {
		state = "voted"
	}
	metrics.UpvoteToggles.WithLabelValues(state).Inc()
	return result, nil
}

func (s *VoteService) toggleOnce(ctx context.Context, postID, userID string) (*ToggleResult, error) {
	result := &ToggleResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, "id = ?", postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return fmt.Errorf("vote service: load post: %w", err)
		}

		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).
			Delete(&models.PostUpvote{})
		if res.Error != nil {
			return fmt.Errorf("vote service: remove upvote: %w", res.Error)
		}

		if res.RowsAffected > 0 {
			result.Voted = false
			if err := decrementUpvoteCount(tx, postID); err != nil {
				return err
			}
		} else {
			upvote := &models.PostUpvote{PostID: postID, UserID: userID}
			if err := tx.Create(upvote).Error; err != nil {
				// Unique violation: a concurrent toggle by the same
				// user added the row first. Propagate for retry.
				return err
			}
			result.Voted = true
			if err := tx.Model(&models.Post{}).
				Where("id = ?", postID).
				UpdateColumn("upvote_count", gorm.Expr("upvote_count + 1")).Error; err != nil {
				return fmt.Errorf("vote service: increment count: %w", err)
			}
		}

		return tx.Model(&models.Post{}).
			Select("upvote_count").
			Where("id = ?", postID).
			Scan(&result.Count).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decrementUpvoteCount decrements the cached count, clamped at zero; hitting
// the clamp means the count drifted from the voter set.
func decrementUpvoteCount(tx *gorm.DB, postID string) error {
	res := tx.Model(&models.Post{}).
		Where("id = ? AND upvote_count > 0", postID).
		UpdateColumn("upvote_count", gorm.Expr("upvote_count - 1"))
	if res.Error != nil {
		return fmt.Errorf("vote service: decrement count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.WithModule("votes").Warn("upvote count decrement below zero",
			zap.String("post_id", postID),
		)
		metrics.CounterDrift.WithLabelValues("post_upvote_count").Inc()
	}
	return nil
}
