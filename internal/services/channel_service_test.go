package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campfirehq/campfire/internal/models"
)

func TestCommunityCreateSeedsDefaultChannels(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	channels, total, err := f.channels.List(ctx, community.ID, member.ID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "general", channels[0].Name)
	require.Equal(t, models.ChannelKindGeneral, channels[0].Kind)
	require.Equal(t, "announcements", channels[1].Name)
	require.Equal(t, models.ChannelKindAnnouncement, channels[1].Kind)
	require.Nil(t, channels[0].LastMessageAt)
}

func TestChannelCreateRequiresAdminAndCanonicalName(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	_, err := f.channels.Create(ctx, community.ID, member.ID, CreateChannelInput{Name: "dev-updates"})
	require.Error(t, err)

	_, err = f.channels.Create(ctx, community.ID, owner.ID, CreateChannelInput{Name: "Dev Updates"})
	require.Error(t, err)

	channel, err := f.channels.Create(ctx, community.ID, owner.ID, CreateChannelInput{
		Name:        "dev-updates",
		Description: "  release notes  ",
	})
	require.NoError(t, err)
	require.Equal(t, models.ChannelKindText, channel.Kind)
	require.Equal(t, "release notes", channel.Description)

	// Names are unique per community, not globally.
	_, err = f.channels.Create(ctx, community.ID, owner.ID, CreateChannelInput{Name: "dev-updates"})
	require.ErrorIs(t, err, ErrDuplicateChannelName)

	other := f.createCommunity(t, owner.ID, "Second Home", models.AccessOpen)
	_, err = f.channels.Create(ctx, other.ID, owner.ID, CreateChannelInput{Name: "dev-updates"})
	require.NoError(t, err)
}

func TestChannelUpdateAndRenameCollision(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	channel, err := f.channels.Create(ctx, community.ID, owner.ID, CreateChannelInput{Name: "ideas"})
	require.NoError(t, err)

	description := "half-baked plans"
	updated, err := f.channels.Update(ctx, community.ID, channel.ID, owner.ID, UpdateChannelInput{Description: &description})
	require.NoError(t, err)
	require.Equal(t, description, updated.Description)

	name := "general"
	_, err = f.channels.Update(ctx, community.ID, channel.ID, owner.ID, UpdateChannelInput{Name: &name})
	require.ErrorIs(t, err, ErrDuplicateChannelName)

	_, err = f.channels.Update(ctx, community.ID, "missing", owner.ID, UpdateChannelInput{Description: &description})
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func TestChannelDeleteGuardsGeneralAndRemovesMessages(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	require.ErrorIs(t, f.channels.Delete(ctx, community.ID, "general", owner.ID), ErrCannotDeleteGeneral)

	channel, err := f.channels.Create(ctx, community.ID, owner.ID, CreateChannelInput{Name: "ephemeral"})
	require.NoError(t, err)
	_, err = f.channels.PostMessage(ctx, community.ID, channel.ID, owner.ID, PostMessageInput{Content: "soon gone"})
	require.NoError(t, err)

	require.NoError(t, f.channels.Delete(ctx, community.ID, channel.ID, owner.ID))

	var messages int64
	require.NoError(t, f.db.Model(&models.ChannelMessage{}).
		Where("channel_id = ?", channel.ID).
		Count(&messages).Error)
	require.Zero(t, messages)

	require.ErrorIs(t, f.channels.Delete(ctx, community.ID, channel.ID, owner.ID), ErrChannelNotFound)
}

func TestChannelMessagesRequireMembership(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	outsider := f.createUser(t, "outsider")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	_, _, err := f.channels.Messages(ctx, community.ID, "general", outsider.ID, 1, 20)
	require.Error(t, err)

	_, err = f.channels.PostMessage(ctx, community.ID, "general", outsider.ID, PostMessageInput{Content: "hi"})
	require.Error(t, err)

	require.NoError(t, f.communities.Join(ctx, community.ID, outsider.ID))
	posted, err := f.channels.PostMessage(ctx, community.ID, "general", outsider.ID, PostMessageInput{Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, models.MessageKindMessage, posted.Kind)
	require.Equal(t, "outsider", posted.Author.Username)

	messages, total, err := f.channels.Messages(ctx, community.ID, "general", outsider.ID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "hi", messages[0].Content)
	require.Equal(t, "outsider", messages[0].Author.Username)

	// The channel list now reflects stream activity.
	channels, _, err := f.channels.List(ctx, community.ID, outsider.ID, 1, 20)
	require.NoError(t, err)
	require.NotNil(t, channels[0].LastMessageAt)
}

func TestChannelAnnouncementsRestrictedToAdmins(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	member := f.createUser(t, "member")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, member.ID))

	// Plain messages are open to every member, announcement messages in the
	// announcements channel are not.
	_, err := f.channels.PostMessage(ctx, community.ID, "announcements", member.ID, PostMessageInput{Content: "psst"})
	require.NoError(t, err)

	_, err = f.channels.PostMessage(ctx, community.ID, "announcements", member.ID, PostMessageInput{
		Content: "big news",
		Kind:    models.MessageKindAnnouncement,
	})
	require.Error(t, err)

	posted, err := f.channels.PostMessage(ctx, community.ID, "announcements", owner.ID, PostMessageInput{
		Content: "big news",
		Kind:    models.MessageKindAnnouncement,
	})
	require.NoError(t, err)
	require.Equal(t, models.MessageKindAnnouncement, posted.Kind)
}

func TestPrivateChannelVisibility(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	insider := f.createUser(t, "insider")
	bystander := f.createUser(t, "bystander")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	require.NoError(t, f.communities.Join(ctx, community.ID, insider.ID))
	require.NoError(t, f.communities.Join(ctx, community.ID, bystander.ID))

	private, err := f.channels.Create(ctx, community.ID, owner.ID, CreateChannelInput{
		Name:           "war-room",
		IsPrivate:      true,
		AllowedUserIDs: []string{insider.ID},
	})
	require.NoError(t, err)

	// Grantees and admins see the channel, other members do not.
	channels, _, err := f.channels.List(ctx, community.ID, insider.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, channels, 3)

	channels, _, err = f.channels.List(ctx, community.ID, bystander.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	_, err = f.channels.PostMessage(ctx, community.ID, private.ID, insider.ID, PostMessageInput{Content: "in here"})
	require.NoError(t, err)

	_, err = f.channels.PostMessage(ctx, community.ID, private.ID, bystander.ID, PostMessageInput{Content: "let me in"})
	require.Error(t, err)

	_, total, err := f.channels.Messages(ctx, community.ID, private.ID, owner.ID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestChannelReplyTargetsMustExistInChannel(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	root, err := f.channels.PostMessage(ctx, community.ID, "general", owner.ID, PostMessageInput{Content: "root"})
	require.NoError(t, err)

	reply, err := f.channels.PostMessage(ctx, community.ID, "general", owner.ID, PostMessageInput{
		Content: "reply",
		ReplyTo: &root.ID,
	})
	require.NoError(t, err)
	require.Equal(t, root.ID, *reply.ReplyTo)

	// Referencing a message from a different channel fails.
	_, err = f.channels.PostMessage(ctx, community.ID, "announcements", owner.ID, PostMessageInput{
		Content: "cross-stream",
		ReplyTo: &root.ID,
	})
	require.Error(t, err)
}

func TestCommunityDeleteRemovesChannels(t *testing.T) {
	f := newFixtures(t)
	owner := f.createUser(t, "owner")
	community := f.createCommunity(t, owner.ID, "Chatty", models.AccessOpen)

	ctx := context.Background()
	_, err := f.channels.PostMessage(ctx, community.ID, "general", owner.ID, PostMessageInput{Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, f.communities.Delete(ctx, community.ID, owner.ID))

	var channels int64
	require.NoError(t, f.db.Model(&models.Channel{}).
		Where("community_id = ?", community.ID).
		Count(&channels).Error)
	require.Zero(t, channels)

	var messages int64
	require.NoError(t, f.db.Model(&models.ChannelMessage{}).Count(&messages).Error)
	require.Zero(t, messages)
}
