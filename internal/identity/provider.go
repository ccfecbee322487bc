package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var errMissingStorage = errors.New("identity: storage required")

// ProviderConfig describes the dependencies of a Provider.
type ProviderConfig struct {
	Storage     Storage
	Random      RandomSource
	IDGenerator func() (string, error)
}

// Provider resolves the identity of one client context, creating and persisting it on first use.
// The resolved identity is memoized; a Provider is safe for concurrent use.
type Provider struct {
	storage     Storage
	random      RandomSource
	idGenerator func() (string, error)

	mu       sync.Mutex
	resolved *Identity
}

// NewProvider constructs a Provider over the given storage.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.Storage == nil {
		return nil, errMissingStorage
	}
	random := cfg.Random
	if random == nil {
		random = defaultRandomSource()
	}
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = newUserID
	}
	return &Provider{
		storage:     cfg.Storage,
		random:      random,
		idGenerator: idGenerator,
	}, nil
}

// GetOrCreate returns the persisted identity, generating and saving any missing value.
func (p *Provider) GetOrCreate(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved != nil {
		return *p.resolved, nil
	}

	userID, err := p.loadOrCreate(ctx, KeyUserID, p.idGenerator)
	if err != nil {
		return Identity{}, err
	}
	username, err := p.loadOrCreate(ctx, KeyUsername, func() (string, error) {
		return GenerateUsername(p.random), nil
	})
	if err != nil {
		return Identity{}, err
	}

	resolved := Identity{UserID: userID, Username: username}
	if err := resolved.Validate(); err != nil {
		return Identity{}, err
	}
	p.resolved = &resolved
	return resolved, nil
}

func (p *Provider) loadOrCreate(ctx context.Context, key string, generate func() (string, error)) (string, error) {
	stored, ok, err := p.storage.Load(ctx, key)
	if err != nil {
		return "", fmt.Errorf("identity: load %s: %w", key, err)
	}
	if ok && normalize(stored) != "" {
		return normalize(stored), nil
	}
	generated, err := generate()
	if err != nil {
		return "", fmt.Errorf("identity: generate %s: %w", key, err)
	}
	if err := p.storage.Save(ctx, key, generated); err != nil {
		return "", fmt.Errorf("identity: save %s: %w", key, err)
	}
	return generated, nil
}

func newUserID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
