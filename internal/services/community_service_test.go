package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campfirehq/campfire/internal/database/testutil"
	"github.com/campfirehq/campfire/internal/models"
)

func TestCommunityCreateGrantsOwnerMembership(t *testing.T) {
	f := newFixtures(t, testutil.WithSeedData())
	owner := f.createUser(t, "owner")

	categories, err := f.categories.List(context.Background(), false)
	require.NoError(t, err)
	require.NotEmpty(t, categories)
	picked := []string{categories[0].ID, categories[1].ID}

	community, err := f.communities.Create(context.Background(), owner.ID, CreateCommunityInput{
		Name:        "Go Enthusiasts",
		Description: "  all things Go  ",
		CategoryIDs: picked,
	})
	require.NoError(t, err)
	require.Equal(t, models.AccessOpen, community.Access)
	require.Equal(t, "all things Go", community.Description)
	require.Equal(t, int64(1), community.MemberCount)

	var membership models.Membership
	require.NoError(t, f.db.First(&membership, "community_id = ? AND user_id = ?", community.ID, owner.ID).Error)
	require.Equal(t, models.RoleAdmin, membership.Role)

	for _, id := range picked {
		var category models.Category
		require.NoError(t, f.db.First(&category, "id = ?", id).Error)
		require.Equal(t, int64(1), category.CommunityCount)
	}
}

func TestCommunityCreateRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")

	f.createCommunity(t, owner.ID, "Book Club", models.AccessOpen)

	_, err := f.communities.Create(context.Background(), owner.ID, CreateCommunityInput{Name: "book club"})
	require.ErrorIs(t, err, ErrDuplicateCommunityName)
}

func TestCommunityNameIndexArbitratesCasingRace(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")

	f.createCommunity(t, owner.ID, "Foo", models.AccessOpen)

	// A writer that raced past the availability pre-check still collides on
	// the lowercased name_key unique index.
	err := f.db.Create(&models.Community{
		Name:      "foo",
		Access:    models.AccessOpen,
		CreatorID: owner.ID,
	}).Error
	require.Error(t, err)
	require.True(t, isUniqueConstraintError(err))

	var count int64
	require.NoError(t, f.db.Model(&models.Community{}).
		Where("LOWER(name) = ?", "foo").
		Count(&count).Error)
	require.Equal(t, int64(1), count)

	// Renames keep the key in sync, so the index guards updates too.
	other := f.createCommunity(t, owner.ID, "Bar", models.AccessOpen)
	name := "FOO"
	_, err = f.communities.Update(context.Background(), other.ID, owner.ID, UpdateCommunityInput{Name: &name})
	require.ErrorIs(t, err, ErrDuplicateCommunityName)
}

func TestCommunityCreatePaidRequiresPrice(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")

	_, err := f.communities.Create(context.Background(), owner.ID, CreateCommunityInput{
		Name:   "Premium Circle",
		Access: models.AccessPaid,
	})
	require.Error(t, err)

	price := 9.99
	community, err := f.communities.Create(context.Background(), owner.ID, CreateCommunityInput{
		Name:   "Premium Circle",
		Access: models.AccessPaid,
		Price:  &price,
	})
	require.NoError(t, err)
	require.NotNil(t, community.Price)
}

func TestCommunityJoinLeaveKeepsCountInSync(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	community := f.createCommunity(t, owner.ID, "Hikers", models.AccessOpen)

	ctx := context.Background()
	const joiners = 5
	users := make([]*models.User, 0, joiners)
	for i := 0; i < joiners; i++ {
		user := f.createUser(t, fmt.Sprintf("member%d", i))
		users = append(users, user)
		require.NoError(t, f.communities.Join(ctx, community.ID, user.ID))
	}

	require.Equal(t, int64(1+joiners), f.memberCount(t, community.ID))
	require.Equal(t, f.membershipCount(t, community.ID), f.memberCount(t, community.ID))

	require.NoError(t, f.communities.Leave(ctx, community.ID, users[0].ID))
	require.NoError(t, f.communities.Leave(ctx, community.ID, users[1].ID))

	require.Equal(t, int64(1+joiners-2), f.memberCount(t, community.ID))
	require.Equal(t, f.membershipCount(t, community.ID), f.memberCount(t, community.ID))
}

func TestCommunityJoinIsIdempotentlyRejected(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	community := f.createCommunity(t, owner.ID, "Runners", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))
	require.ErrorIs(t, f.communities.Join(ctx, community.ID, member.ID), ErrAlreadyMember)

	// The failed join must not bump the counter.
	require.Equal(t, int64(2), f.memberCount(t, community.ID))
}

func TestCommunityJoinRejectsGatedAccess(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	outsider := f.createUser(t, "outsider")

	invite := f.createCommunity(t, owner.ID, "Secret Society", models.AccessInvite)
	require.ErrorIs(t, f.communities.Join(context.Background(), invite.ID, outsider.ID), ErrAccessDenied)

	price := 5.0
	paid, err := f.communities.Create(context.Background(), owner.ID, CreateCommunityInput{
		Name:   "Paid Society",
		Access: models.AccessPaid,
		Price:  &price,
	})
	require.NoError(t, err)
	require.ErrorIs(t, f.communities.Join(context.Background(), paid.ID, outsider.ID), ErrAccessDenied)
}

func TestCommunityLeaveGuards(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	stranger := f.createUser(t, "stranger")
	community := f.createCommunity(t, owner.ID, "Writers", models.AccessOpen)

	ctx := context.Background()
	require.ErrorIs(t, f.communities.Leave(ctx, community.ID, owner.ID), ErrCannotLeaveAsOwner)
	require.ErrorIs(t, f.communities.Leave(ctx, community.ID, stranger.ID), ErrNotMember)
	require.Equal(t, int64(1), f.memberCount(t, community.ID))
}

func TestCommunityUpdateReplacesCategories(t *testing.T) {
	f := newFixtures(t, testutil.WithSeedData())
	owner := f.createUser(t, "owner")

	categories, err := f.categories.List(context.Background(), false)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(categories), 3)

	first, second, third := categories[0], categories[1], categories[2]

	community, err := f.communities.Create(context.Background(), owner.ID, CreateCommunityInput{
		Name:        "Polyglots",
		CategoryIDs: []string{first.ID, second.ID},
	})
	require.NoError(t, err)

	_, err = f.communities.Update(context.Background(), community.ID, owner.ID, UpdateCommunityInput{
		CategoryIDs: []string{second.ID, third.ID},
	})
	require.NoError(t, err)

	counts := map[string]int64{}
	for _, id := range []string{first.ID, second.ID, third.ID} {
		var category models.Category
		require.NoError(t, f.db.First(&category, "id = ?", id).Error)
		counts[id] = category.CommunityCount
	}
	require.Equal(t, int64(0), counts[first.ID])
	require.Equal(t, int64(1), counts[second.ID])
	require.Equal(t, int64(1), counts[third.ID])
}

func TestCommunityUpdateRequiresAdmin(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	community := f.createCommunity(t, owner.ID, "Readers", models.AccessOpen)

	require.NoError(t, f.communities.Join(context.Background(), community.ID, member.ID))

	name := "Renamed"
	_, err := f.communities.Update(context.Background(), community.ID, member.ID, UpdateCommunityInput{Name: &name})
	require.Error(t, err)
}

func TestCommunityDeleteCascades(t *testing.T) {
	f := newFixtures(t, testutil.WithSeedData())
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")

	categories, err := f.categories.List(context.Background(), false)
	require.NoError(t, err)
	category := categories[0]

	ctx := context.Background()
	community, err := f.communities.Create(ctx, owner.ID, CreateCommunityInput{
		Name:        "Ephemeral",
		CategoryIDs: []string{category.ID},
	})
	require.NoError(t, err)
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	invite, err := f.invites.Generate(ctx, community.ID, owner.ID, 0, 5)
	require.NoError(t, err)

	post, err := f.posts.Create(ctx, member.ID, CreatePostInput{
		CommunityID: community.ID,
		Title:       "hello",
		Content:     "first post",
	})
	require.NoError(t, err)
	_, err = f.votes.Toggle(ctx, post.ID, owner.ID)
	require.NoError(t, err)

	require.NoError(t, f.communities.Delete(ctx, community.ID, owner.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.Membership{}).Where("community_id = ?", community.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Model(&models.Invite{}).Where("code = ?", invite.Code).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Model(&models.Post{}).Where("community_id = ?", community.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Model(&models.PostUpvote{}).Where("post_id = ?", post.ID).Count(&count).Error)
	require.Zero(t, count)

	var refreshed models.Category
	require.NoError(t, f.db.First(&refreshed, "id = ?", category.ID).Error)
	require.Equal(t, int64(0), refreshed.CommunityCount)
}

func TestCommunityListViewerState(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	viewer := f.createUser(t, "viewer")

	ctx := context.Background()
	joined := f.createCommunity(t, owner.ID, "Joined Club", models.AccessOpen)
	f.createCommunity(t, owner.ID, "Other Club", models.AccessOpen)
	require.NoError(t, f.communities.Join(ctx, joined.ID, viewer.ID))

	views, total, err := f.communities.List(ctx, ListCommunitiesOptions{ViewerID: viewer.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)

	byName := map[string]bool{}
	for _, view := range views {
		byName[view.Name] = view.IsJoined
	}
	require.True(t, byName["Joined Club"])
	require.False(t, byName["Other Club"])
}

func TestCommunityMembersListsRolesInJoinOrder(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	community := f.createCommunity(t, owner.ID, "Ordered", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	members, total, err := f.communities.Members(ctx, community.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, members, 2)
	require.Equal(t, owner.ID, members[0].UserID)
	require.Equal(t, models.RoleAdmin, members[0].Role)
	require.Equal(t, member.ID, members[1].UserID)
	require.Equal(t, models.RoleMember, members[1].Role)
}
