package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campfirehq/campfire/internal/models"
)

func (f *fixtures) createPost(t *testing.T, authorID string) *models.Post {
	t.Helper()

	post, err := f.posts.Create(context.Background(), authorID, CreatePostInput{
		Title:   "thoughts",
		Content: "some content",
		Kind:    models.PostKindBlog,
	})
	require.NoError(t, err)
	return post
}

func TestToggleIsSelfInverse(t *testing.T) {
	f := newFixtures(t)
	author := f.createUser(t, "author")
	voter := f.createUser(t, "voter")
	post := f.createPost(t, author.ID)

	ctx := context.Background()

	result, err := f.votes.Toggle(ctx, post.ID, voter.ID)
	require.NoError(t, err)
	require.True(t, result.Voted)
	require.Equal(t, int64(1), result.Count)

	result, err = f.votes.Toggle(ctx, post.ID, voter.ID)
	require.NoError(t, err)
	require.False(t, result.Voted)
	require.Equal(t, int64(0), result.Count)

	var votes int64
	require.NoError(t, f.db.Model(&models.PostUpvote{}).Where("post_id = ?", post.ID).Count(&votes).Error)
	require.Zero(t, votes)
}

func TestToggleCountsDistinctVoters(t *testing.T) {
	f := newFixtures(t)
	author := f.createUser(t, "author")
	first := f.createUser(t, "first")
	second := f.createUser(t, "second")
	post := f.createPost(t, author.ID)

	ctx := context.Background()

	_, err := f.votes.Toggle(ctx, post.ID, first.ID)
	require.NoError(t, err)
	result, err := f.votes.Toggle(ctx, post.ID, second.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Count)

	// First voter retracting does not affect the second's vote.
	result, err = f.votes.Toggle(ctx, post.ID, first.ID)
	require.NoError(t, err)
	require.False(t, result.Voted)
	require.Equal(t, int64(1), result.Count)

	view, err := f.posts.Get(ctx, post.ID, second.ID)
	require.NoError(t, err)
	require.True(t, view.IsUpvoted)
	require.Equal(t, int64(1), view.UpvoteCount)
}

func TestToggleUnknownPost(t *testing.T) {
	f := newFixtures(t)
	voter := f.createUser(t, "voter")

	_, err := f.votes.Toggle(context.Background(), "missing", voter.ID)
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestToggleDecrementClampsAtZero(t *testing.T) {
	f := newFixtures(t)
	author := f.createUser(t, "author")
	voter := f.createUser(t, "voter")
	post := f.createPost(t, author.ID)

	ctx := context.Background()
	_, err := f.votes.Toggle(ctx, post.ID, voter.ID)
	require.NoError(t, err)

	// Simulate drift: the cached count lost the increment.
	require.NoError(t, f.db.Model(&models.Post{}).
		Where("id = ?", post.ID).
		UpdateColumn("upvote_count", 0).Error)

	result, err := f.votes.Toggle(ctx, post.ID, voter.ID)
	require.NoError(t, err)
	require.False(t, result.Voted)
	require.Equal(t, int64(0), result.Count)
}
