package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/MarcoPoloResearchLab/galleria/internal/auth"
	"github.com/MarcoPoloResearchLab/galleria/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityContextKey = "galleria_identity"

// cookieStorage is the identity.Storage for one request, seeded from the session cookie.
// Saved values are written back as a fresh cookie once identity resolution finishes.
type cookieStorage struct {
	mu     sync.Mutex
	values map[string]string
	dirty  bool
}

func newCookieStorage(values map[string]string) *cookieStorage {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return &cookieStorage{values: copied}
}

func (s *cookieStorage) Load(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *cookieStorage) Save(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] != value {
		s.values[key] = value
		s.dirty = true
	}
	return nil
}

func (s *cookieStorage) changed() (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil, false
	}
	copied := make(map[string]string, len(s.values))
	for key, value := range s.values {
		copied[key] = value
	}
	return copied, true
}

func (h *httpHandler) sessionMiddleware(c *gin.Context) {
	values, err := h.sessions.ReadRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session cookie expired", zap.Error(err))
		default:
			h.logger.Warn("session cookie rejected", zap.Error(err))
		}
		values = nil
	}

	storage := newCookieStorage(values)
	provider, err := identity.NewProvider(identity.ProviderConfig{Storage: storage, Random: h.random})
	if err != nil {
		h.logger.Error("identity provider construction failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "session_failed")
		return
	}
	who, err := provider.GetOrCreate(c.Request.Context())
	if err != nil {
		h.logger.Error("identity resolution failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "session_failed")
		return
	}

	if updated, ok := storage.changed(); ok {
		if err := h.sessions.WriteCookie(c.Writer, updated); err != nil {
			h.logger.Error("session cookie issue failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "session_failed")
			return
		}
	}

	c.Set(identityContextKey, who)
	c.Next()
}

func currentIdentity(c *gin.Context) (identity.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return identity.Identity{}, false
	}
	who, ok := value.(identity.Identity)
	return who, ok
}

func (h *httpHandler) handleSession(c *gin.Context) {
	who, ok := currentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	c.JSON(http.StatusOK, who)
}
