package interactions

import (
	"context"

	"github.com/MarcoPoloResearchLab/galleria/internal/store"
	"go.uber.org/zap"
)

// Snapshot is the complete result set of a live query at one point in time. Err is set when
// the re-read failed; Items is then nil.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// Live serves push-based views over the interaction collections. Every change in a query's
// scope delivers a fresh full result set.
type Live struct {
	store  *store.Store
	reader *Reader
	logger *zap.Logger
}

func NewLive(s *store.Store, logger *zap.Logger) (*Live, error) {
	reader, err := NewReader(s)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &Live{store: s, reader: reader, logger: logger}, nil
}

// SubscribeReactions streams the reactions on imageID. The channel closes after cleanup runs
// or ctx is done.
func (l *Live) SubscribeReactions(ctx context.Context, imageID string) (<-chan Snapshot[Reaction], func()) {
	query := store.Query{Collection: store.CollectionReactions, ImageID: imageID}
	return subscribe(ctx, l, query, func(ctx context.Context) ([]Reaction, error) {
		return l.reader.Reactions(ctx, imageID)
	})
}

// SubscribeReactionGroups streams GroupByEmoji over the reactions on imageID, recomputed
// from scratch on every change.
func (l *Live) SubscribeReactionGroups(ctx context.Context, imageID string) (<-chan Snapshot[ReactionGroup], func()) {
	query := store.Query{Collection: store.CollectionReactions, ImageID: imageID}
	return subscribe(ctx, l, query, func(ctx context.Context) ([]ReactionGroup, error) {
		reactions, err := l.reader.Reactions(ctx, imageID)
		if err != nil {
			return nil, err
		}
		return GroupByEmoji(reactions), nil
	})
}

func (l *Live) SubscribeComments(ctx context.Context, imageID string) (<-chan Snapshot[Comment], func()) {
	query := store.Query{Collection: store.CollectionComments, ImageID: imageID}
	return subscribe(ctx, l, query, func(ctx context.Context) ([]Comment, error) {
		return l.reader.Comments(ctx, imageID)
	})
}

// SubscribeFeed streams the global feed in storage order.
func (l *Live) SubscribeFeed(ctx context.Context) (<-chan Snapshot[FeedItem], func()) {
	query := store.Query{Collection: store.CollectionFeedItems}
	return subscribe(ctx, l, query, func(ctx context.Context) ([]FeedItem, error) {
		return l.reader.Feed(ctx)
	})
}

func subscribe[T any](parent context.Context, l *Live, query store.Query, load func(context.Context) ([]T, error)) (<-chan Snapshot[T], func()) {
	ctx, cancel := context.WithCancel(parent)
	// Watch before the first read so a change racing the initial load still triggers a re-read.
	changes, unwatch := l.store.Watch(ctx, query)
	snapshots := make(chan Snapshot[T], 1)

	go func() {
		defer close(snapshots)
		defer unwatch()
		for {
			items, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				l.logger.Warn("live query read failed",
					zap.String("topic", query.Topic()),
					zap.Error(err))
			}
			select {
			case snapshots <- Snapshot[T]{Items: items, Err: err}:
			case <-ctx.Done():
				return
			}
			// The watcher merges bursts into one pending notification, so one receive
			// covers every change since the last read.
			if _, ok := <-changes; !ok {
				return
			}
		}
	}()

	return snapshots, cancel
}
