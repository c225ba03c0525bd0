package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/models"
	apperrors "github.com/campfirehq/campfire/pkg/errors"
)

// ErrPostNotFound indicates the requested post does not exist.
var ErrPostNotFound = apperrors.New("POST_NOT_FOUND", "Post not found", http.StatusNotFound)

// CreatePostInput captures new post content. CommunityID is empty for
// personal blog posts.
type CreatePostInput struct {
	CommunityID string
	Title       string
	Content     string
	Kind        string
}

// UpdatePostInput describes mutable post fields.
type UpdatePostInput struct {
	Title   *string
	Content *string
	Kind    *string
}

// ListPostsOptions paginates and filters post listings.
type ListPostsOptions struct {
	Page    int
	PerPage int
	Kind    string
	// ViewerID, when set, marks posts the viewer has upvoted.
	ViewerID string
}

// PostView decorates a post with viewer-specific vote state.
type PostView struct {
	models.Post
	IsUpvoted bool `json:"is_upvoted"`
}

// PostService handles post lifecycle; vote state lives in VoteService.
type PostService struct {
	db          *gorm.DB
	communities *CommunityService
}

// NewPostService constructs a PostService instance.
func NewPostService(db *gorm.DB, communities *CommunityService) (*PostService, error) {
	if db == nil {
		return nil, errors.New("post service: db is required")
	}
	if communities == nil {
		return nil, errors.New("post service: community service is required")
	}
	return &PostService{db: db, communities: communities}, nil
}

// Create publishes a post. Community posts require membership; communities
// with restricted posting additionally require the admin role.
func (s *PostService) Create(ctx context.Context, authorID string, input CreatePostInput) (*models.Post, error) {
	ctx = ensureContext(ctx)

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewBadRequest("post content is required")
	}

	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = models.PostKindDiscussion
	}
	switch kind {
	case models.PostKindBlog, models.PostKindDiscussion, models.PostKindLink, models.PostKindImage:
	default:
		return nil, apperrors.NewBadRequest("kind must be one of blog, discussion, link, image")
	}

	post := &models.Post{
		AuthorID: authorID,
		Title:    strings.TrimSpace(input.Title),
		Content:  content,
		Kind:     kind,
	}

	if communityID := strings.TrimSpace(input.CommunityID); communityID != "" {
		community, err := s.communities.loadCommunity(ctx, communityID)
		if err != nil {
			return nil, err
		}
		member, err := s.communities.isMember(ctx, community.ID, authorID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, apperrors.ErrForbidden
		}
		if community.PostingRestricted {
			if err := s.communities.requireAdmin(ctx, community.ID, authorID); err != nil {
				return nil, err
			}
		}
		post.CommunityID = &community.ID
	}

	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("post service: create post: %w", err)
	}
	return post, nil
}

// Get returns one post with viewer-specific vote state.
func (s *PostService) Get(ctx context.Context, postID, viewerID string) (*PostView, error) {
	ctx = ensureContext(ctx)

	var post models.Post
	err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: get post: %w", err)
	}

	view := &PostView{Post: post}
	if viewerID != "" {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.PostUpvote{}).
			Where("post_id = ? AND user_id = ?", postID, viewerID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("post service: check upvote: %w", err)
		}
		view.IsUpvoted = count > 0
	}
	return view, nil
}

// ListByCommunity returns a community's posts, newest first.
func (s *PostService) ListByCommunity(ctx context.Context, communityID string, opts ListPostsOptions) ([]PostView, int64, error) {
	ctx = ensureContext(ctx)

	if _, err := s.communities.loadCommunity(ctx, communityID); err != nil {
		return nil, 0, err
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage <= 0 || perPage > 50 {
		perPage = 10
	}

	query := s.db.WithContext(ctx).Model(&models.Post{}).Where("community_id = ?", communityID)
	if kind := strings.TrimSpace(opts.Kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("post service: count posts: %w", err)
	}

	var posts []models.Post
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&posts).Error; err != nil {
		return nil, 0, fmt.Errorf("post service: list posts: %w", err)
	}

	upvoted := map[string]bool{}
	if opts.ViewerID != "" && len(posts) > 0 {
		ids := make([]string, 0, len(posts))
		for _, post := range posts {
			ids = append(ids, post.ID)
		}
		var votes []models.PostUpvote
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND post_id IN ?", opts.ViewerID, ids).
			Find(&votes).Error; err != nil {
			return nil, 0, fmt.Errorf("post service: load viewer upvotes: %w", err)
		}
		for _, vote := range votes {
			upvoted[vote.PostID] = true
		}
	}

	views := make([]PostView, 0, len(posts))
	for _, post := range posts {
		views = append(views, PostView{Post: post, IsUpvoted: upvoted[post.ID]})
	}
	return views, total, nil
}

// Update modifies a post. Authors only.
func (s *PostService) Update(ctx context.Context, postID, actorID string, input UpdatePostInput) (*models.Post, error) {
	ctx = ensureContext(ctx)

	var post models.Post
	err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: load post: %w", err)
	}

	if post.AuthorID != actorID {
		return nil, apperrors.ErrForbidden
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Content != nil {
		content := strings.TrimSpace(*input.Content)
		if content == "" {
			return nil, apperrors.NewBadRequest("post content must not be empty")
		}
		updates["content"] = content
	}
	if input.Kind != nil {
		kind := strings.TrimSpace(*input.Kind)
		switch kind {
		case models.PostKindBlog, models.PostKindDiscussion, models.PostKindLink, models.PostKindImage:
		default:
			return nil, apperrors.NewBadRequest("kind must be one of blog, discussion, link, image")
		}
		updates["kind"] = kind
	}

	if len(updates) == 0 {
		return &post, nil
	}

	if err := s.db.WithContext(ctx).Model(&post).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("post service: update post: %w", err)
	}
	return &post, nil
}

// Delete removes a post along with its voter set. Authors may delete their
// own posts; community admins may delete any post in their community.
func (s *PostService) Delete(ctx context.Context, postID, actorID string) error {
	ctx = ensureContext(ctx)

	var post models.Post
	err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("post service: load post: %w", err)
	}

	if post.AuthorID != actorID {
		allowed := false
		if post.CommunityID != nil {
			admin, err := s.communities.IsAdmin(ctx, *post.CommunityID, actorID)
			if err != nil {
				return err
			}
			allowed = admin
		}
		if !allowed {
			return apperrors.ErrForbidden
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostUpvote{}).Error; err != nil {
			return fmt.Errorf("post service: delete upvotes: %w", err)
		}
		if err := tx.Delete(&post).Error; err != nil {
			return fmt.Errorf("post service: delete post: %w", err)
		}
		return nil
	})
}
