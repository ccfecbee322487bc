package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Collection names a record set in the store. The value doubles as the table name.
type Collection string

const (
	CollectionReactions Collection = "reactions"
	CollectionComments  Collection = "comments"
	CollectionFeedItems Collection = "feed_items"
)

var (
	// ErrMissingDatabase indicates the store was built without a database handle.
	ErrMissingDatabase = errors.New("store: database handle is required")
	// ErrMissingRecordID indicates an operation on a record without an identifier.
	ErrMissingRecordID = errors.New("store: record id is required")
	// ErrNotFound indicates that no record matched the requested identifier.
	ErrNotFound = errors.New("store: record not found")
	// ErrUnknownOperation indicates a zero-value Operation was submitted.
	ErrUnknownOperation = errors.New("store: unknown operation")
)

// Record is a row that belongs to one collection and is scoped to one image.
type Record interface {
	TableName() string
	RecordID() string
	ScopeID() string
}

// Query selects a collection, optionally narrowed to one image.
type Query struct {
	Collection Collection
	ImageID    string
}

// Topic renders the query for logs.
func (q Query) Topic() string {
	if q.ImageID == "" {
		return string(q.Collection)
	}
	return string(q.Collection) + ":" + q.ImageID
}

type operationKind int

const (
	operationCreate operationKind = iota + 1
	operationDelete
)

// Operation is one create or delete inside a transaction.
type Operation struct {
	kind   operationKind
	record Record
}

// Create inserts record. Its identifier must already be assigned.
func Create(record Record) Operation {
	return Operation{kind: operationCreate, record: record}
}

// Delete removes the record with the identifier carried by record. A missing record is a no-op.
func Delete(record Record) Operation {
	return Operation{kind: operationDelete, record: record}
}

// Config describes the dependencies of a Store.
type Config struct {
	Database   *gorm.DB
	Dispatcher *Dispatcher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store applies atomic transactions and notifies live queries of the scopes they touched.
type Store struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	clock      func() time.Time
	logger     *zap.Logger
}

// New constructs a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, ErrMissingDatabase
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:         cfg.Database,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}, nil
}

type change struct {
	collection Collection
	imageID    string
	recordID   string
}

// Transact applies every operation in one database transaction. Watchers are notified only
// after a successful commit.
func (s *Store) Transact(ctx context.Context, operations ...Operation) error {
	if s == nil || s.db == nil {
		return ErrMissingDatabase
	}
	if len(operations) == 0 {
		return nil
	}

	changes := make([]change, 0, len(operations))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, operation := range operations {
			if operation.record == nil {
				return ErrUnknownOperation
			}
			collection := Collection(operation.record.TableName())
			recordID := operation.record.RecordID()
			if recordID == "" {
				return ErrMissingRecordID
			}

			switch operation.kind {
			case operationCreate:
				if err := tx.Create(operation.record).Error; err != nil {
					return fmt.Errorf("create %s: %w", collection, err)
				}
				changes = append(changes, change{
					collection: collection,
					imageID:    operation.record.ScopeID(),
					recordID:   recordID,
				})
			case operationDelete:
				var scope struct {
					ImageID string
				}
				lookup := tx.Table(string(collection)).
					Select("image_id").
					Where("id = ?", recordID).
					Limit(1).
					Scan(&scope)
				if lookup.Error != nil {
					return fmt.Errorf("lookup %s: %w", collection, lookup.Error)
				}
				if lookup.RowsAffected == 0 {
					continue
				}
				if err := tx.Table(string(collection)).Where("id = ?", recordID).Delete(operation.record).Error; err != nil {
					return fmt.Errorf("delete %s: %w", collection, err)
				}
				changes = append(changes, change{
					collection: collection,
					imageID:    scope.ImageID,
					recordID:   recordID,
				})
			default:
				return ErrUnknownOperation
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(changes)
	return nil
}

// Watch subscribes to change notifications for the query scope.
func (s *Store) Watch(ctx context.Context, query Query) (<-chan Notification, func()) {
	return s.dispatcher.Subscribe(ctx, query)
}

// Dispatcher exposes the change bus backing Watch.
func (s *Store) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Find returns every record matching query, oldest first with insertion order on ties.
func Find[T Record](ctx context.Context, s *Store, query Query) ([]T, error) {
	if s == nil || s.db == nil {
		return nil, ErrMissingDatabase
	}
	records := []T{}
	tx := s.db.WithContext(ctx).Table(string(query.Collection))
	if query.ImageID != "" {
		tx = tx.Where("image_id = ?", query.ImageID)
	}
	if err := tx.Order("created_at_ms ASC").Order("rowid ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", query.Collection, err)
	}
	return records, nil
}

// Get returns the record with the given identifier, or ErrNotFound.
func Get[T Record](ctx context.Context, s *Store, collection Collection, recordID string) (T, error) {
	var record T
	if s == nil || s.db == nil {
		return record, ErrMissingDatabase
	}
	if recordID == "" {
		return record, ErrMissingRecordID
	}
	err := s.db.WithContext(ctx).Table(string(collection)).Where("id = ?", recordID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record, ErrNotFound
	}
	if err != nil {
		return record, fmt.Errorf("get %s: %w", collection, err)
	}
	return record, nil
}

func (s *Store) notify(changes []change) {
	if len(changes) == 0 {
		return
	}
	now := s.clock().UTC()
	grouped := make(map[Query]*Notification)
	order := make([]Query, 0, len(changes)*2)
	for _, item := range changes {
		queries := []Query{{Collection: item.collection}}
		if item.imageID != "" {
			queries = append(queries, Query{Collection: item.collection, ImageID: item.imageID})
		}
		for _, query := range queries {
			notification, ok := grouped[query]
			if !ok {
				notification = &Notification{Query: query, Timestamp: now}
				grouped[query] = notification
				order = append(order, query)
			}
			notification.RecordIDs = append(notification.RecordIDs, item.recordID)
		}
	}
	for _, query := range order {
		notification := grouped[query]
		s.dispatcher.Publish(*notification)
		s.logger.Debug("store change published",
			zap.String("topic", query.Topic()),
			zap.Int("records", len(notification.RecordIDs)))
	}
}
