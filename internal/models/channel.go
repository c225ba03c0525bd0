package models

// Channel kinds.
const (
	ChannelKindGeneral      = "general"
	ChannelKindText         = "text"
	ChannelKindAnnouncement = "announcement"
)

// Channel message kinds. System messages are written internally and cannot be
// posted through the API.
const (
	MessageKindMessage      = "message"
	MessageKindAnnouncement = "announcement"
	MessageKindSystem       = "system"
)

// Channel is a named message stream inside a community. Names are canonical
// lowercase slugs; the composite unique index arbitrates concurrent creates
// of the same name within one community. Private channels are visible only to
// granted users, the channel creator and community admins.
type Channel struct {
	BaseModel

	CommunityID string `gorm:"type:uuid;not null;uniqueIndex:idx_channel_name" json:"community_id"`
	Name        string `gorm:"not null;uniqueIndex:idx_channel_name" json:"name"`
	Description string `json:"description"`
	Kind        string `gorm:"not null;default:text" json:"kind"`
	IsPrivate   bool   `gorm:"not null;default:false" json:"is_private"`
	CreatedBy   string `gorm:"type:uuid;not null" json:"created_by"`
}

// ChannelGrant admits one user into a private channel.
type ChannelGrant struct {
	BaseModel

	ChannelID string `gorm:"type:uuid;not null;uniqueIndex:idx_channel_grant" json:"channel_id"`
	UserID    string `gorm:"type:uuid;not null;uniqueIndex:idx_channel_grant" json:"user_id"`
}

// ChannelMessage is one entry in a channel's stream. ReplyTo references
// another message in the same channel.
type ChannelMessage struct {
	BaseModel

	ChannelID string  `gorm:"type:uuid;index;not null" json:"channel_id"`
	AuthorID  string  `gorm:"type:uuid;not null" json:"author_id"`
	Content   string  `gorm:"not null" json:"content"`
	Kind      string  `gorm:"not null;default:message" json:"kind"`
	ReplyTo   *string `gorm:"type:uuid" json:"reply_to,omitempty"`
}
