package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const (
	// KeyUserID is the storage key holding the persisted user id.
	KeyUserID = "userId"
	// KeyUsername is the storage key holding the persisted display name.
	KeyUsername = "username"
)

// ErrInvalidIdentity indicates that an identity is missing its id or display name.
var ErrInvalidIdentity = errors.New("identity: invalid identity")

// Identity is the stable per-client pair attached to every interaction.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Validate reports whether both fields are populated.
func (i Identity) Validate() error {
	if normalize(i.UserID) == "" || normalize(i.Username) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// Storage persists identity values for one client context.
type Storage interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value string) error
}

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Load(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemoryStorage) Save(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
