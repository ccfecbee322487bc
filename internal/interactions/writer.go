package interactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/identity"
	"github.com/MarcoPoloResearchLab/galleria/internal/images"
	"github.com/MarcoPoloResearchLab/galleria/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingRecordID   = errors.New("record identifier is required")
	noOpLogger           = zap.NewNop()
)

// WriteError reports a failed interaction write. Code is stable and has the form
// interactions.<operation>.<reason>.
type WriteError struct {
	code string
	err  error
}

func (e *WriteError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *WriteError) Unwrap() error {
	return e.err
}

func (e *WriteError) Code() string {
	return e.code
}

const (
	opWriterNew      = "interactions.writer.new"
	opAddReaction    = "interactions.add_reaction"
	opAddComment     = "interactions.add_comment"
	opDeleteReaction = "interactions.delete_reaction"
	opDeleteComment  = "interactions.delete_comment"
)

func newWriteError(operation, reason string, cause error) error {
	return &WriteError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

type WriterConfig struct {
	Store      *store.Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Writer creates reactions and comments together with their feed entries, and deletes
// reactions and comments on request.
type Writer struct {
	store      *store.Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Store == nil {
		return nil, newWriteError(opWriterNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newWriteError(opWriterNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Writer{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// AddReaction writes a Reaction and its FeedItem in one transaction. The feed entry carries
// the title of image at write time; a nil image yields the untitled fallback.
func (w *Writer) AddReaction(ctx context.Context, imageID ImageID, emoji Emoji, who identity.Identity, image *images.Image) (Reaction, error) {
	if err := who.Validate(); err != nil {
		w.logError(opAddReaction, "invalid_identity", err, zap.String("image_id", imageID.String()))
		return Reaction{}, newWriteError(opAddReaction, "invalid_identity", err)
	}
	reactionID, feedID, err := w.newIDPair()
	if err != nil {
		w.logError(opAddReaction, "id_generation_failed", err, zap.String("image_id", imageID.String()))
		return Reaction{}, newWriteError(opAddReaction, "id_generation_failed", err)
	}

	createdAt := w.clock().UTC().UnixMilli()
	reaction := Reaction{
		ID:          reactionID,
		ImageID:     imageID.String(),
		Emoji:       emoji.String(),
		UserID:      who.UserID,
		Username:    who.Username,
		CreatedAtMs: createdAt,
	}
	feedItem := FeedItem{
		ID:          feedID,
		Type:        FeedItemTypeReaction,
		ImageID:     imageID.String(),
		ImageTitle:  images.TitleOf(image),
		UserID:      who.UserID,
		Username:    who.Username,
		CreatedAtMs: createdAt,
		Emoji:       emoji.String(),
	}

	if err := w.store.Transact(ctx, store.Create(&reaction), store.Create(&feedItem)); err != nil {
		w.logError(opAddReaction, "transaction_failed", err,
			zap.String("image_id", imageID.String()),
			zap.String("user_id", who.UserID))
		return Reaction{}, newWriteError(opAddReaction, "transaction_failed", err)
	}
	return reaction, nil
}

// AddComment writes a Comment and its FeedItem in one transaction.
func (w *Writer) AddComment(ctx context.Context, imageID ImageID, text CommentText, who identity.Identity, image *images.Image) (Comment, error) {
	if text == "" {
		w.logError(opAddComment, "empty_comment", ErrEmptyComment, zap.String("image_id", imageID.String()))
		return Comment{}, newWriteError(opAddComment, "empty_comment", ErrEmptyComment)
	}
	if err := who.Validate(); err != nil {
		w.logError(opAddComment, "invalid_identity", err, zap.String("image_id", imageID.String()))
		return Comment{}, newWriteError(opAddComment, "invalid_identity", err)
	}
	commentID, feedID, err := w.newIDPair()
	if err != nil {
		w.logError(opAddComment, "id_generation_failed", err, zap.String("image_id", imageID.String()))
		return Comment{}, newWriteError(opAddComment, "id_generation_failed", err)
	}

	createdAt := w.clock().UTC().UnixMilli()
	comment := Comment{
		ID:          commentID,
		ImageID:     imageID.String(),
		Text:        text.String(),
		UserID:      who.UserID,
		Username:    who.Username,
		CreatedAtMs: createdAt,
	}
	feedItem := FeedItem{
		ID:          feedID,
		Type:        FeedItemTypeComment,
		ImageID:     imageID.String(),
		ImageTitle:  images.TitleOf(image),
		UserID:      who.UserID,
		Username:    who.Username,
		CreatedAtMs: createdAt,
		CommentText: text.String(),
	}

	if err := w.store.Transact(ctx, store.Create(&comment), store.Create(&feedItem)); err != nil {
		w.logError(opAddComment, "transaction_failed", err,
			zap.String("image_id", imageID.String()),
			zap.String("user_id", who.UserID))
		return Comment{}, newWriteError(opAddComment, "transaction_failed", err)
	}
	return comment, nil
}

// DeleteReaction removes exactly the named reaction. Feed entries are left in place.
func (w *Writer) DeleteReaction(ctx context.Context, reactionID string) error {
	return w.deleteRecord(ctx, opDeleteReaction, &Reaction{ID: reactionID})
}

// DeleteComment removes exactly the named comment. Feed entries are left in place.
func (w *Writer) DeleteComment(ctx context.Context, commentID string) error {
	return w.deleteRecord(ctx, opDeleteComment, &Comment{ID: commentID})
}

func (w *Writer) deleteRecord(ctx context.Context, operation string, record store.Record) error {
	if record.RecordID() == "" {
		w.logError(operation, "missing_record_id", errMissingRecordID)
		return newWriteError(operation, "missing_record_id", errMissingRecordID)
	}
	if err := w.store.Transact(ctx, store.Delete(record)); err != nil {
		w.logError(operation, "transaction_failed", err, zap.String("record_id", record.RecordID()))
		return newWriteError(operation, "transaction_failed", err)
	}
	return nil
}

func (w *Writer) newIDPair() (string, string, error) {
	recordID, err := w.idProvider.NewID()
	if err != nil {
		return "", "", err
	}
	feedID, err := w.idProvider.NewID()
	if err != nil {
		return "", "", err
	}
	return recordID, feedID, nil
}

func (w *Writer) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if w != nil && w.logger != nil {
		logger = w.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("interaction write failed", attrs...)
}
