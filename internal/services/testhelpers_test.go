package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campfirehq/campfire/internal/database/testutil"
	"github.com/campfirehq/campfire/internal/models"
	"github.com/campfirehq/campfire/pkg/crypto"
)

// fixtures bundles the services most tests need against one database.
type fixtures struct {
	db          *gorm.DB
	audit       *AuditService
	users       *UserService
	communities *CommunityService
	invites     *InviteService
	categories  *CategoryService
	channels    *ChannelService
	posts       *PostService
	votes       *VoteService
}

func newFixtures(t *testing.T, opts ...testutil.TestDBOption) *fixtures {
	t.Helper()

	if len(opts) == 0 {
		opts = []testutil.TestDBOption{testutil.WithAutoMigrate()}
	}
	db := testutil.MustOpenTestDB(t, opts...)

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	users, err := NewUserService(db)
	require.NoError(t, err)
	communities, err := NewCommunityService(db, audit)
	require.NoError(t, err)
	invites, err := NewInviteService(db, communities, audit)
	require.NoError(t, err)
	categories, err := NewCategoryService(db, audit)
	require.NoError(t, err)
	channels, err := NewChannelService(db, communities, audit)
	require.NoError(t, err)
	posts, err := NewPostService(db, communities)
	require.NoError(t, err)
	votes, err := NewVoteService(db)
	require.NoError(t, err)

	return &fixtures{
		db:          db,
		audit:       audit,
		users:       users,
		communities: communities,
		invites:     invites,
		categories:  categories,
		channels:    channels,
		posts:       posts,
		votes:       votes,
	}
}

func (f *fixtures) createUser(t *testing.T, username string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("secret123!")
	require.NoError(t, err)

	user := &models.User{
		Username:    username,
		Email:       fmt.Sprintf("%s@example.com", username),
		Password:    hashed,
		DisplayName: username,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixtures) createCommunity(t *testing.T, creatorID, name, access string) *models.Community {
	t.Helper()

	community, err := f.communities.Create(context.Background(), creatorID, CreateCommunityInput{
		Name:   name,
		Access: access,
	})
	require.NoError(t, err)
	return community
}

func (f *fixtures) membershipCount(t *testing.T, communityID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&models.Membership{}).
		Where("community_id = ?", communityID).
		Count(&count).Error)
	return count
}

func (f *fixtures) memberCount(t *testing.T, communityID string) int64 {
	t.Helper()

	var community models.Community
	require.NoError(t, f.db.First(&community, "id = ?", communityID).Error)
	return community.MemberCount
}
