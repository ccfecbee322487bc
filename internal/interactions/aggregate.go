package interactions

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/galleria/internal/images"
)

// ReactionGroup is the partition of an image's reactions sharing one emoji.
type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// GroupByEmoji partitions reactions by exact emoji value. Groups follow the order in which
// each emoji first occurs; UserIDs keeps one entry per reaction, duplicates included.
func GroupByEmoji(reactions []Reaction) []ReactionGroup {
	groups := make([]ReactionGroup, 0)
	positions := make(map[string]int)
	for _, reaction := range reactions {
		index, ok := positions[reaction.Emoji]
		if !ok {
			index = len(groups)
			positions[reaction.Emoji] = index
			groups = append(groups, ReactionGroup{Emoji: reaction.Emoji, UserIDs: []string{}})
		}
		groups[index].Count++
		groups[index].UserIDs = append(groups[index].UserIDs, reaction.UserID)
	}
	return groups
}

// SortFeedNewestFirst returns a copy of items ordered by creation time descending. Items
// created in the same millisecond keep their relative order.
func SortFeedNewestFirst(items []FeedItem) []FeedItem {
	sorted := slices.Clone(items)
	if sorted == nil {
		sorted = []FeedItem{}
	}
	slices.SortStableFunc(sorted, func(a, b FeedItem) int {
		switch {
		case a.CreatedAtMs > b.CreatedAtMs:
			return -1
		case a.CreatedAtMs < b.CreatedAtMs:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// ActivityText renders the human-readable line shown for a feed entry.
func ActivityText(item FeedItem) string {
	title := strings.TrimSpace(item.ImageTitle)
	if title == "" {
		title = images.UntitledImage
	}
	switch item.Type {
	case FeedItemTypeReaction:
		return fmt.Sprintf("%s reacted %s on \"%s\"", item.Username, item.Emoji, title)
	case FeedItemTypeComment:
		return fmt.Sprintf("%s commented on \"%s\": \"%s\"", item.Username, title, item.CommentText)
	default:
		return ""
	}
}
