package interactions

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/identity"
	"github.com/MarcoPoloResearchLab/galleria/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sequenceIDs struct {
	mu     sync.Mutex
	values []string
	next   int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.values) {
		return "", errors.New("id sequence exhausted")
	}
	value := s.values[s.next]
	s.next++
	return value, nil
}

type counterIDs struct {
	mu   sync.Mutex
	next int
}

func (c *counterIDs) NewID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return fmt.Sprintf("id-%04d", c.next), nil
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(time.Millisecond)
	return current
}

func newStepClock() *steppingClock {
	return &steppingClock{now: time.UnixMilli(1_700_000_000_000).UTC()}
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Reaction{}, &Comment{}, &FeedItem{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{Database: openTestDatabase(t)})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return s
}

type harness struct {
	store  *store.Store
	writer *Writer
	reader *Reader
	live   *Live
}

func newHarness(t *testing.T, ids IDProvider, logger *zap.Logger) harness {
	t.Helper()
	s := newTestStore(t)
	if ids == nil {
		ids = &counterIDs{}
	}
	clock := newStepClock()
	writer, err := NewWriter(WriterConfig{Store: s, Clock: clock.Now, IDProvider: ids, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	reader, err := NewReader(s)
	if err != nil {
		t.Fatalf("failed to build reader: %v", err)
	}
	live, err := NewLive(s, logger)
	if err != nil {
		t.Fatalf("failed to build live: %v", err)
	}
	return harness{store: s, writer: writer, reader: reader, live: live}
}

func mustImageID(t *testing.T, value string) ImageID {
	t.Helper()
	id, err := NewImageID(value)
	if err != nil {
		t.Fatalf("unexpected image id error: %v", err)
	}
	return id
}

func mustEmoji(t *testing.T, value string) Emoji {
	t.Helper()
	emoji, err := NewEmoji(value)
	if err != nil {
		t.Fatalf("unexpected emoji error: %v", err)
	}
	return emoji
}

func mustCommentText(t *testing.T, value string) CommentText {
	t.Helper()
	text, err := NewCommentText(value)
	if err != nil {
		t.Fatalf("unexpected comment text error: %v", err)
	}
	return text
}

func alice() identity.Identity {
	return identity.Identity{UserID: "user-alice", Username: "RedFox"}
}

func bob() identity.Identity {
	return identity.Identity{UserID: "user-bob", Username: "BlueShark"}
}

func receive[T any](t *testing.T, stream <-chan Snapshot[T]) Snapshot[T] {
	t.Helper()
	select {
	case snapshot, ok := <-stream:
		if !ok {
			t.Fatal("snapshot stream closed unexpectedly")
		}
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("expected snapshot within deadline")
	}
	return Snapshot[T]{}
}

// receiveUntil reads snapshots until match accepts one. Intermediate snapshots may be skipped
// when notifications coalesce.
func receiveUntil[T any](t *testing.T, stream <-chan Snapshot[T], match func(Snapshot[T]) bool) Snapshot[T] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot, ok := <-stream:
			if !ok {
				t.Fatal("snapshot stream closed unexpectedly")
			}
			if match(snapshot) {
				return snapshot
			}
		case <-deadline:
			t.Fatal("expected matching snapshot within deadline")
			return Snapshot[T]{}
		}
	}
}

func expectNoSnapshot[T any](t *testing.T, stream <-chan Snapshot[T]) {
	t.Helper()
	select {
	case snapshot := <-stream:
		t.Fatalf("did not expect snapshot, got %#v", snapshot)
	case <-time.After(150 * time.Millisecond):
	}
}
