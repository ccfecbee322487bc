package images

import (
	"context"
	"sync"
	"time"
)

type cachedImage struct {
	image     Image
	expiresAt time.Time
}

// CachingSource memoizes FetchByID results for a fixed TTL. Fetched pages prime the
// cache; searches and failures pass through.
type CachingSource struct {
	source Source
	ttl    time.Duration
	clock  func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedImage
}

// NewCachingSource wraps source. A non-positive ttl disables caching.
func NewCachingSource(source Source, ttl time.Duration, clock func() time.Time) *CachingSource {
	if clock == nil {
		clock = time.Now
	}
	return &CachingSource{
		source:  source,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cachedImage),
	}
}

func (s *CachingSource) FetchPage(ctx context.Context, page, perPage int) ([]Image, error) {
	images, err := s.source.FetchPage(ctx, page, perPage)
	if err != nil {
		return nil, err
	}
	s.storeAll(images)
	return images, nil
}

func (s *CachingSource) FetchByID(ctx context.Context, imageID string) (Image, error) {
	if image, ok := s.lookup(imageID); ok {
		return image, nil
	}
	image, err := s.source.FetchByID(ctx, imageID)
	if err != nil {
		return Image{}, err
	}
	s.storeAll([]Image{image})
	return image, nil
}

func (s *CachingSource) Search(ctx context.Context, query string, page int) (SearchResult, error) {
	return s.source.Search(ctx, query, page)
}

func (s *CachingSource) lookup(imageID string) (Image, bool) {
	if s.ttl <= 0 {
		return Image{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[imageID]
	if !ok || !s.clock().Before(entry.expiresAt) {
		return Image{}, false
	}
	return entry.image, true
}

func (s *CachingSource) storeAll(images []Image) {
	if s.ttl <= 0 || len(images) == 0 {
		return
	}
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
	for _, image := range images {
		if image.ID == "" {
			continue
		}
		s.entries[image.ID] = cachedImage{image: image, expiresAt: now.Add(s.ttl)}
	}
}
