package interactions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/galleria/internal/store"
	"github.com/rivo/uniseg"
)

// FeedItemType enumerates the events mirrored into the activity feed.
type FeedItemType string

const (
	// FeedItemTypeReaction marks a feed entry created alongside a Reaction.
	FeedItemTypeReaction FeedItemType = "reaction"
	// FeedItemTypeComment marks a feed entry created alongside a Comment.
	FeedItemTypeComment FeedItemType = "comment"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidImageID indicates that an image identifier is empty or exceeds storage bounds.
	ErrInvalidImageID = errors.New("interactions: invalid image id")
	// ErrInvalidEmoji indicates that an emoji is not a single palette grapheme.
	ErrInvalidEmoji = errors.New("interactions: invalid emoji")
	// ErrEmptyComment indicates that comment text is empty after trimming.
	ErrEmptyComment = errors.New("interactions: empty comment")
)

// Reaction is one emoji response by one user on one image.
type Reaction struct {
	ID          string `gorm:"column:id;primaryKey;size:64" json:"id"`
	ImageID     string `gorm:"column:image_id;size:190;not null;index" json:"imageId"`
	Emoji       string `gorm:"column:emoji;size:32;not null" json:"emoji"`
	UserID      string `gorm:"column:user_id;size:190;not null" json:"userId"`
	Username    string `gorm:"column:username;size:190;not null" json:"username"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null;index" json:"createdAt"`
}

func (Reaction) TableName() string {
	return string(store.CollectionReactions)
}

func (r Reaction) RecordID() string {
	return r.ID
}

func (r Reaction) ScopeID() string {
	return r.ImageID
}

// Comment is a free-text note by one user on one image.
type Comment struct {
	ID          string `gorm:"column:id;primaryKey;size:64" json:"id"`
	ImageID     string `gorm:"column:image_id;size:190;not null;index" json:"imageId"`
	Text        string `gorm:"column:text;type:text;not null" json:"text"`
	UserID      string `gorm:"column:user_id;size:190;not null" json:"userId"`
	Username    string `gorm:"column:username;size:190;not null" json:"username"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null;index" json:"createdAt"`
}

func (Comment) TableName() string {
	return string(store.CollectionComments)
}

func (c Comment) RecordID() string {
	return c.ID
}

func (c Comment) ScopeID() string {
	return c.ImageID
}

// FeedItem is the append-only activity entry mirroring a Reaction or Comment creation.
type FeedItem struct {
	ID          string       `gorm:"column:id;primaryKey;size:64" json:"id"`
	Type        FeedItemType `gorm:"column:type;size:16;not null" json:"type"`
	ImageID     string       `gorm:"column:image_id;size:190;not null;index" json:"imageId"`
	ImageTitle  string       `gorm:"column:image_title;type:text;not null" json:"imageTitle"`
	UserID      string       `gorm:"column:user_id;size:190;not null" json:"userId"`
	Username    string       `gorm:"column:username;size:190;not null" json:"username"`
	CreatedAtMs int64        `gorm:"column:created_at_ms;not null;index" json:"createdAt"`
	Emoji       string       `gorm:"column:emoji;size:32" json:"emoji,omitempty"`
	CommentText string       `gorm:"column:comment_text;type:text" json:"commentText,omitempty"`
}

func (FeedItem) TableName() string {
	return string(store.CollectionFeedItems)
}

func (f FeedItem) RecordID() string {
	return f.ID
}

func (f FeedItem) ScopeID() string {
	return f.ImageID
}

// ImageID is a validated remote image identifier.
type ImageID string

// NewImageID validates raw input and returns an ImageID.
func NewImageID(rawInput string) (ImageID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidImageID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidImageID, maxIdentifierLength)
	}
	return ImageID(trimmed), nil
}

func (id ImageID) String() string {
	return string(id)
}

// Emoji is a single grapheme drawn from the reaction palette.
type Emoji string

// NewEmoji validates raw input and returns an Emoji.
func NewEmoji(rawInput string) (Emoji, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEmoji)
	}
	if count := uniseg.GraphemeClusterCount(trimmed); count != 1 {
		return "", fmt.Errorf("%w: expected one grapheme, got %d", ErrInvalidEmoji, count)
	}
	if !InPalette(trimmed) {
		return "", fmt.Errorf("%w: %q is not in the palette", ErrInvalidEmoji, trimmed)
	}
	return Emoji(trimmed), nil
}

func (e Emoji) String() string {
	return string(e)
}

// CommentText is comment text that is non-empty after trimming.
type CommentText string

// NewCommentText trims raw input and rejects whitespace-only text.
func NewCommentText(rawInput string) (CommentText, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", ErrEmptyComment
	}
	return CommentText(trimmed), nil
}

func (t CommentText) String() string {
	return string(t)
}
