package models

// Post kinds.
const (
	PostKindBlog       = "blog"
	PostKindDiscussion = "discussion"
	PostKindLink       = "link"
	PostKindImage      = "image"
)

// Post is votable content: a community post when CommunityID is set, a
// personal blog post otherwise. UpvoteCount caches the size of the voter set
// in post_upvotes and is updated in the same transaction as every set change.
type Post struct {
	BaseModel

	AuthorID    string  `gorm:"type:uuid;index;not null" json:"author_id"`
	CommunityID *string `gorm:"type:uuid;index" json:"community_id,omitempty"`
	Title       string  `json:"title"`
	Content     string  `gorm:"not null" json:"content"`
	Kind        string  `gorm:"not null;default:discussion" json:"kind"`
	UpvoteCount int64   `gorm:"not null;default:0" json:"upvote_count"`
}

// PostUpvote is one entry in a post's voter set. The composite unique index
// serializes concurrent toggles by the same user.
type PostUpvote struct {
	BaseModel

	PostID string `gorm:"type:uuid;not null;uniqueIndex:idx_post_voter" json:"post_id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_post_voter" json:"user_id"`
}
