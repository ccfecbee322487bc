package interactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/galleria/internal/store"
)

// ErrNotFound indicates that no reaction or comment carries the requested identifier.
var ErrNotFound = store.ErrNotFound

// Reader performs one-shot reads over the interaction collections.
type Reader struct {
	store *store.Store
}

func NewReader(s *store.Store) (*Reader, error) {
	if s == nil {
		return nil, errMissingStore
	}
	return &Reader{store: s}, nil
}

// Reactions returns the reactions on imageID, oldest first.
func (r *Reader) Reactions(ctx context.Context, imageID string) ([]Reaction, error) {
	reactions, err := store.Find[Reaction](ctx, r.store, store.Query{Collection: store.CollectionReactions, ImageID: imageID})
	if err != nil {
		return nil, fmt.Errorf("interactions: list reactions: %w", err)
	}
	return reactions, nil
}

// Comments returns the comments on imageID, oldest first.
func (r *Reader) Comments(ctx context.Context, imageID string) ([]Comment, error) {
	comments, err := store.Find[Comment](ctx, r.store, store.Query{Collection: store.CollectionComments, ImageID: imageID})
	if err != nil {
		return nil, fmt.Errorf("interactions: list comments: %w", err)
	}
	return comments, nil
}

// Feed returns every feed entry in storage order. Callers sort with SortFeedNewestFirst.
func (r *Reader) Feed(ctx context.Context) ([]FeedItem, error) {
	items, err := store.Find[FeedItem](ctx, r.store, store.Query{Collection: store.CollectionFeedItems})
	if err != nil {
		return nil, fmt.Errorf("interactions: list feed: %w", err)
	}
	return items, nil
}

func (r *Reader) Reaction(ctx context.Context, reactionID string) (Reaction, error) {
	reaction, err := store.Get[Reaction](ctx, r.store, store.CollectionReactions, reactionID)
	if err != nil {
		return Reaction{}, wrapLookup("reaction", err)
	}
	return reaction, nil
}

func (r *Reader) Comment(ctx context.Context, commentID string) (Comment, error) {
	comment, err := store.Get[Comment](ctx, r.store, store.CollectionComments, commentID)
	if err != nil {
		return Comment{}, wrapLookup("comment", err)
	}
	return comment, nil
}

func wrapLookup(kind string, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrMissingRecordID) {
		return fmt.Errorf("interactions: %s: %w", kind, ErrNotFound)
	}
	return fmt.Errorf("interactions: get %s: %w", kind, err)
}
