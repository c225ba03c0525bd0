package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campfirehq/campfire/internal/models"
	apperrors "github.com/campfirehq/campfire/pkg/errors"
)

func TestPostCreateRequiresMembership(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	outsider := f.createUser(t, "outsider")
	community := f.createCommunity(t, owner.ID, "Writers", models.AccessOpen)

	ctx := context.Background()
	_, err := f.posts.Create(ctx, outsider.ID, CreatePostInput{
		CommunityID: community.ID,
		Content:     "hello",
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, f.communities.Join(ctx, community.ID, outsider.ID))

	post, err := f.posts.Create(ctx, outsider.ID, CreatePostInput{
		CommunityID: community.ID,
		Title:       "  First  ",
		Content:     "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "First", post.Title)
	require.Equal(t, models.PostKindDiscussion, post.Kind)
	require.NotNil(t, post.CommunityID)
	require.Equal(t, community.ID, *post.CommunityID)
}

func TestPostCreateRestrictedPostingIsAdminOnly(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")

	ctx := context.Background()
	community, err := f.communities.Create(ctx, owner.ID, CreateCommunityInput{
		Name:              "Announcements",
		PostingRestricted: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	_, err = f.posts.Create(ctx, member.ID, CreatePostInput{
		CommunityID: community.ID,
		Content:     "not allowed",
	})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.posts.Create(ctx, owner.ID, CreatePostInput{
		CommunityID: community.ID,
		Content:     "release notes",
	})
	require.NoError(t, err)
}

func TestPostCreatePersonalBlog(t *testing.T) {
	f := newFixtures(t)
	author := f.createUser(t, "author")

	post, err := f.posts.Create(context.Background(), author.ID, CreatePostInput{
		Title:   "On my own",
		Content: "no community attached",
		Kind:    models.PostKindBlog,
	})
	require.NoError(t, err)
	require.Nil(t, post.CommunityID)
	require.Equal(t, models.PostKindBlog, post.Kind)
}

func TestPostCreateValidation(t *testing.T) {
	f := newFixtures(t)
	author := f.createUser(t, "author")

	ctx := context.Background()
	_, err := f.posts.Create(ctx, author.ID, CreatePostInput{Content: "   "})
	require.Error(t, err)

	_, err = f.posts.Create(ctx, author.ID, CreatePostInput{Content: "x", Kind: "poll"})
	require.Error(t, err)
}

func TestPostUpdateAuthorOnly(t *testing.T) {
	f := newFixtures(t)
	author := f.createUser(t, "author")
	other := f.createUser(t, "other")

	ctx := context.Background()
	post, err := f.posts.Create(ctx, author.ID, CreatePostInput{Content: "draft"})
	require.NoError(t, err)

	title := "Edited"
	_, err = f.posts.Update(ctx, post.ID, other.ID, UpdatePostInput{Title: &title})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	updated, err := f.posts.Update(ctx, post.ID, author.ID, UpdatePostInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "Edited", updated.Title)

	empty := "  "
	_, err = f.posts.Update(ctx, post.ID, author.ID, UpdatePostInput{Content: &empty})
	require.Error(t, err)

	_, err = f.posts.Update(ctx, "missing", author.ID, UpdatePostInput{Title: &title})
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostDeleteByAuthorOrCommunityAdmin(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	outsider := f.createUser(t, "outsider")
	community := f.createCommunity(t, owner.ID, "Moderated", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	post, err := f.posts.Create(ctx, member.ID, CreatePostInput{
		CommunityID: community.ID,
		Content:     "spam",
	})
	require.NoError(t, err)
	_, err = f.votes.Toggle(ctx, post.ID, owner.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.posts.Delete(ctx, post.ID, outsider.ID), apperrors.ErrForbidden)

	// Community admin removes the post and its voter set together.
	require.NoError(t, f.posts.Delete(ctx, post.ID, owner.ID))
	_, err = f.posts.Get(ctx, post.ID, "")
	require.ErrorIs(t, err, ErrPostNotFound)

	var votes int64
	require.NoError(t, f.db.Model(&models.PostUpvote{}).
		Where("post_id = ?", post.ID).
		Count(&votes).Error)
	require.Zero(t, votes)

	// Authors stay able to delete personal posts with no community admin.
	personal, err := f.posts.Create(ctx, member.ID, CreatePostInput{Content: "mine"})
	require.NoError(t, err)
	require.NoError(t, f.posts.Delete(ctx, personal.ID, member.ID))
}

func TestPostListByCommunity(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	community := f.createCommunity(t, owner.ID, "Feed", models.AccessOpen)

	ctx := context.Background()
	var last *models.Post
	for i := 0; i < 3; i++ {
		post, err := f.posts.Create(ctx, owner.ID, CreatePostInput{
			CommunityID: community.ID,
			Content:     "entry",
			Kind:        models.PostKindDiscussion,
		})
		require.NoError(t, err)
		last = post
	}
	linkPost, err := f.posts.Create(ctx, owner.ID, CreatePostInput{
		CommunityID: community.ID,
		Content:     "https://example.com",
		Kind:        models.PostKindLink,
	})
	require.NoError(t, err)
	_, err = f.votes.Toggle(ctx, linkPost.ID, owner.ID)
	require.NoError(t, err)

	views, total, err := f.posts.ListByCommunity(ctx, community.ID, ListPostsOptions{ViewerID: owner.ID})
	require.NoError(t, err)
	require.Equal(t, int64(4), total)
	require.Len(t, views, 4)

	seen := map[string]PostView{}
	for _, view := range views {
		seen[view.ID] = view
	}
	require.True(t, seen[linkPost.ID].IsUpvoted)
	require.False(t, seen[last.ID].IsUpvoted)

	links, total, err := f.posts.ListByCommunity(ctx, community.ID, ListPostsOptions{Kind: models.PostKindLink})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, links, 1)
	require.Equal(t, linkPost.ID, links[0].ID)

	_, _, err = f.posts.ListByCommunity(ctx, "missing", ListPostsOptions{})
	require.ErrorIs(t, err, ErrCommunityNotFound)
}
