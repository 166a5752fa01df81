package handlers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tinylink/internal/config"
	"tinylink/internal/domain"
	"tinylink/internal/logger"
	"tinylink/internal/service"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock LinkService for testing
type mockLinkService struct {
	links     map[string]*domain.Link
	createErr error
	healthErr error
	storeErr  error
}

func (m *mockLinkService) CreateLink(ctx context.Context, originalURL, customCode string) (*domain.Link, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if !strings.HasPrefix(originalURL, "http://") && !strings.HasPrefix(originalURL, "https://") {
		return nil, service.ErrInvalidURL
	}
	code := customCode
	if code == "" {
		code = "gen123"
	}
	if _, ok := m.links[code]; ok {
		return nil, service.ErrCodeConflict
	}
	link := &domain.Link{OriginalURL: originalURL, ShortCode: code}
	m.links[code] = link
	return link, nil
}

func (m *mockLinkService) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	if link, ok := m.links[code]; ok {
		return link, nil
	}
	return nil, service.ErrNotFound
}

func (m *mockLinkService) DeleteLink(ctx context.Context, code string) (bool, error) {
	if _, ok := m.links[code]; !ok {
		return false, service.ErrNotFound
	}
	delete(m.links, code)
	return true, nil
}

func (m *mockLinkService) ResolveRedirect(ctx context.Context, code string) (string, error) {
	if m.storeErr != nil {
		return "", m.storeErr
	}
	link, ok := m.links[code]
	if !ok {
		return "", service.ErrNotFound
	}
	link.Clicks++
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	link.LastClicked = &now
	return link.OriginalURL, nil
}

func (m *mockLinkService) ListLinks(ctx context.Context) ([]domain.Link, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	links := []domain.Link{}
	for _, link := range m.links {
		links = append(links, *link)
	}
	return links, nil
}

func (m *mockLinkService) Health(ctx context.Context) error {
	return m.healthErr
}

func setupTestHandler() (*Handler, *mockLinkService) {
	cfg := &config.Config{
		CORSOrigin:     "http://localhost:3000",
		RequestTimeout: 5 * time.Second,
	}

	mockService := &mockLinkService{
		links: map[string]*domain.Link{
			"docsite": {OriginalURL: "https://docs.example.com", ShortCode: "docsite"},
		},
	}

	return NewHandler(mockService, nil, cfg, logger.Discard()), mockService
}

func setupRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHandler_CreateLinkHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupError     error
		expectedStatus int
		expectedError  string
		expectedCode   string
	}{
		{
			name:           "custom code",
			body:           `{"originalUrl":"https://example.com","customCode":"mycode"}`,
			expectedStatus: http.StatusOK,
			expectedCode:   "mycode",
		},
		{
			name:           "generated code",
			body:           `{"originalUrl":"http://example.com/a"}`,
			expectedStatus: http.StatusOK,
			expectedCode:   "gen123",
		},
		{
			name:           "invalid URL",
			body:           `{"originalUrl":"not-a-url"}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid URL format",
		},
		{
			name:           "duplicate custom code",
			body:           `{"originalUrl":"https://example.com","customCode":"docsite"}`,
			expectedStatus: http.StatusConflict,
			expectedError:  "Custom code already exists",
		},
		{
			name:           "invalid JSON",
			body:           `invalid json`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid request body",
		},
		{
			name:           "invalid custom code",
			body:           `{"originalUrl":"https://example.com","customCode":"a/b"}`,
			setupError:     service.ErrInvalidCode,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid custom code",
		},
		{
			name:           "code space exhausted",
			body:           `{"originalUrl":"https://example.com"}`,
			setupError:     service.ErrCodeSpaceExhausted,
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "Could not allocate a short code",
		},
		{
			name:           "storage failure",
			body:           `{"originalUrl":"https://example.com"}`,
			setupError:     errors.New("disk I/O error"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mockService := setupTestHandler()
			mockService.createErr = tt.setupError

			req := httptest.NewRequest("POST", "http://sho.rt/api/links", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			setupRouter(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				var body map[string]string
				decodeJSON(t, w, &body)
				assert.Equal(t, tt.expectedError, body["error"])
				return
			}

			var view map[string]any
			decodeJSON(t, w, &view)
			assert.Equal(t, tt.expectedCode, view["shortId"])
			assert.Equal(t, "http://sho.rt/"+tt.expectedCode, view["shortUrl"])
			assert.Equal(t, float64(0), view["clicks"])
			assert.Contains(t, view, "lastClicked")
			assert.Nil(t, view["lastClicked"])
		})
	}
}

func TestHandler_RedirectHandler(t *testing.T) {
	tests := []struct {
		name             string
		path             string
		storeErr         error
		expectedStatus   int
		expectedLocation string
		expectedBody     string
	}{
		{
			name:             "successful redirect",
			path:             "/docsite",
			expectedStatus:   http.StatusFound,
			expectedLocation: "https://docs.example.com",
		},
		{
			name:           "unknown code",
			path:           "/nonexistent",
			expectedStatus: http.StatusNotFound,
			expectedBody:   "URL not found",
		},
		{
			name:           "storage failure",
			path:           "/docsite",
			storeErr:       errors.New("database is locked"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mockService := setupTestHandler()
			mockService.storeErr = tt.storeErr

			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			setupRouter(handler).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedLocation != "" {
				assert.Equal(t, tt.expectedLocation, w.Header().Get("Location"))
			}
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, strings.TrimSpace(w.Body.String()))
				assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
			}
		})
	}
}

func TestHandler_RedirectCountsClick(t *testing.T) {
	handler, _ := setupTestHandler()
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/docsite", nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "http://sho.rt/api/links/docsite", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var view domain.LinkView
	decodeJSON(t, w, &view)
	assert.Equal(t, int64(1), view.Clicks)
	require.NotNil(t, view.LastClicked)
	assert.Equal(t, "http://sho.rt/docsite", view.ShortURL)
}

func TestHandler_GetLinkHandler_NotFound(t *testing.T) {
	handler, _ := setupTestHandler()

	w := httptest.NewRecorder()
	setupRouter(handler).ServeHTTP(w, httptest.NewRequest("GET", "/api/links/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	decodeJSON(t, w, &body)
	assert.Equal(t, "Not found", body["error"])
}

func TestHandler_DeleteLinkHandler(t *testing.T) {
	handler, mockService := setupTestHandler()
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/links/docsite", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]bool
	decodeJSON(t, w, &body)
	assert.True(t, body["ok"])
	assert.NotContains(t, mockService.links, "docsite")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/links/docsite", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/docsite", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ListLinksHandler(t *testing.T) {
	handler, mockService := setupTestHandler()
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "http://sho.rt/api/urls", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var views []domain.LinkView
	decodeJSON(t, w, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "https://docs.example.com", views[0].OriginalURL)
	assert.Equal(t, "http://sho.rt/docsite", views[0].ShortURL)

	// an empty store is an empty array, never null
	mockService.links = map[string]*domain.Link{}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/urls", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	mockService.storeErr = errors.New("connection reset")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/urls", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_HealthHandler(t *testing.T) {
	handler, mockService := setupTestHandler()
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var health domain.Health
	decodeJSON(t, w, &health)
	assert.Equal(t, domain.Health{OK: true, Version: "1.0"}, health)

	mockService.healthErr = errors.New("link store unavailable: sql: database is closed")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	health = domain.Health{}
	decodeJSON(t, w, &health)
	assert.False(t, health.OK)
	assert.Contains(t, health.Error, "database is closed")
}

func TestHandler_baseURL(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		tls        bool
		headers    map[string]string
		expected   string
	}{
		{name: "plain http", expected: "http://sho.rt"},
		{name: "tls", tls: true, expected: "https://sho.rt"},
		{
			name:     "forwarded headers ignored by default",
			headers:  map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "public.example"},
			expected: "http://sho.rt",
		},
		{
			name:       "forwarded headers trusted",
			trustProxy: true,
			headers:    map[string]string{"X-Forwarded-Proto": "HTTPS, http", "X-Forwarded-Host": "public.example, proxy.internal"},
			expected:   "https://public.example",
		},
		{name: "trusted without headers", trustProxy: true, expected: "http://sho.rt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupTestHandler()
			handler.config.TrustProxy = tt.trustProxy

			req := httptest.NewRequest("GET", "http://sho.rt/api/urls", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.expected, handler.baseURL(req))
		})
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	handler, _ := setupTestHandler()
	router := setupRouter(handler)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/", http.StatusFound},                // Root redirect
		{"GET", "/healthz", http.StatusOK},            // Health
		{"GET", "/api/urls", http.StatusOK},           // List
		{"GET", "/api/links/docsite", http.StatusOK},  // Get
		{"POST", "/api/links", http.StatusBadRequest}, // Create (no body)
		{"GET", "/docsite", http.StatusFound},         // Short code redirect
		{"GET", "/api/events", http.StatusNotFound},   // Events disabled
		{"PUT", "/api/links/docsite", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, "%s %s", tt.method, tt.path)
		})
	}
}

func TestHandler_EventsRoute(t *testing.T) {
	cfg := &config.Config{}
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := NewHandler(&mockLinkService{links: map[string]*domain.Link{}}, events, cfg, logger.Discard())

	w := httptest.NewRecorder()
	setupRouter(handler).ServeHTTP(w, httptest.NewRequest("GET", "/api/events", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}
