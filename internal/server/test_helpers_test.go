package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/auth"
	"github.com/MarcoPoloResearchLab/galleria/internal/images"
	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	"github.com/MarcoPoloResearchLab/galleria/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret"

type stubImageSource struct {
	mu        sync.Mutex
	images    map[string]images.Image
	pages     map[int][]images.Image
	pageCalls []int
	failAll   bool
}

func (s *stubImageSource) FetchPage(_ context.Context, page, _ int) ([]images.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls = append(s.pageCalls, page)
	if s.failAll {
		return nil, &images.FetchError{Operation: "images.fetch_page", StatusCode: http.StatusInternalServerError, Err: errors.New("upstream down")}
	}
	return s.pages[page], nil
}

func (s *stubImageSource) FetchByID(_ context.Context, imageID string) (images.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.images[imageID]
	if !ok || s.failAll {
		return images.Image{}, &images.FetchError{Operation: "images.fetch_by_id", StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return image, nil
}

func (s *stubImageSource) Search(_ context.Context, query string, _ int) (images.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]images.Image, 0)
	for _, image := range s.images {
		if strings.Contains(image.AltDescription, query) {
			results = append(results, image)
		}
	}
	return images.SearchResult{Total: len(results), TotalPages: 1, Results: results}, nil
}

type testEnv struct {
	handler  http.Handler
	store    *store.Store
	reader   *interactions.Reader
	sessions *auth.SessionManager
	source   *stubImageSource
}

type testEnvOptions struct {
	writesPerMinute int
	heartbeat       time.Duration
	allowedOrigins  []string
	logger          *zap.Logger
}

func newTestEnv(t *testing.T, options testEnvOptions) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&interactions.Reaction{}, &interactions.Comment{}, &interactions.FeedItem{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtimeStore, err := store.New(store.Config{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	writer, err := interactions.NewWriter(interactions.WriterConfig{
		Store:      realtimeStore,
		IDProvider: interactions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to build writer: %v", err)
	}
	reader, err := interactions.NewReader(realtimeStore)
	if err != nil {
		t.Fatalf("failed to build reader: %v", err)
	}
	live, err := interactions.NewLive(realtimeStore, logger)
	if err != nil {
		t.Fatalf("failed to build live: %v", err)
	}
	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    "galleria_session",
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}

	source := &stubImageSource{
		images: map[string]images.Image{
			"img-1": {ID: "img-1", AltDescription: "foggy harbor"},
			"img-2": {ID: "img-2"},
		},
		pages: map[int][]images.Image{},
	}

	handler, err := NewHTTPHandler(Dependencies{
		Images:            source,
		Writer:            writer,
		Reader:            reader,
		Live:              live,
		Sessions:          sessions,
		AllowedOrigins:    options.allowedOrigins,
		WritesPerMinute:   options.writesPerMinute,
		HeartbeatInterval: options.heartbeat,
		Logger:            logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testEnv{handler: handler, store: realtimeStore, reader: reader, sessions: sessions, source: source}
}

// browser is an HTTP client with its own cookie jar, standing in for one client context.
type browser struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func newBrowser(t *testing.T, server *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &browser{t: t, server: server, client: &http.Client{Jar: jar}}
}

func (b *browser) do(method, path, body string) (int, []byte) {
	b.t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request, err := http.NewRequest(method, b.server.URL+path, reader)
	if err != nil {
		b.t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := b.client.Do(request)
	if err != nil {
		b.t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		b.t.Fatalf("failed to read response: %v", err)
	}
	return response.StatusCode, payload
}

func (b *browser) identity() (string, string) {
	b.t.Helper()
	status, body := b.do(http.MethodGet, "/session", "")
	if status != http.StatusOK {
		b.t.Fatalf("unexpected session status %d: %s", status, body)
	}
	var payload struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}
	decodeJSON(b.t, body, &payload)
	return payload.UserID, payload.Username
}

func decodeJSON(t *testing.T, body []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("failed to decode %s: %v", body, err)
	}
}

func expectErrorBody(t *testing.T, body []byte, reason string) {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	decodeJSON(t, body, &payload)
	if payload.Error != reason {
		t.Fatalf("expected error %q, got %q", reason, payload.Error)
	}
}
