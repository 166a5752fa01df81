package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tinylink/internal/config"
	"tinylink/internal/domain"
	"tinylink/internal/logger"
	"tinylink/internal/service"

	"github.com/gorilla/mux"
)

// Version is reported by the health endpoint
const Version = "1.0"

// LinkService interface for link operations
type LinkService interface {
	CreateLink(ctx context.Context, originalURL, customCode string) (*domain.Link, error)
	GetLink(ctx context.Context, code string) (*domain.Link, error)
	DeleteLink(ctx context.Context, code string) (bool, error)
	ResolveRedirect(ctx context.Context, code string) (string, error)
	ListLinks(ctx context.Context) ([]domain.Link, error)
	Health(ctx context.Context) error
}

// Handler holds the HTTP handlers
type Handler struct {
	linkService LinkService
	events      http.Handler
	config      *config.Config
	logger      *logger.Logger
}

// NewHandler creates a new handler. events may be nil, in which case
// /api/events is not served.
func NewHandler(linkService LinkService, events http.Handler, cfg *config.Config, log *logger.Logger) *Handler {
	log.Info("Handler initialized (events enabled: %t)", events != nil)

	return &Handler{
		linkService: linkService,
		events:      events,
		config:      cfg,
		logger:      log,
	}
}

// RegisterRoutes registers all HTTP routes. It must run after every other
// route registration since /{shortCode} matches any single path segment.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.HealthHandler).Methods("GET")

	// API routes
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/urls", h.ListLinksHandler).Methods("GET")
	api.HandleFunc("/links", h.CreateLinkHandler).Methods("POST")
	api.HandleFunc("/links/{code}", h.GetLinkHandler).Methods("GET")
	api.HandleFunc("/links/{code}", h.DeleteLinkHandler).Methods("DELETE")
	if h.events != nil {
		api.Handle("/events", h.events).Methods("GET")
	}

	// Root redirect to the documentation index
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/", http.StatusFound)
	}).Methods("GET")

	router.HandleFunc("/{shortCode}", h.RedirectHandler).Methods("GET")
}

// HealthHandler reports liveness and whether the link store answers
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.linkService.Health(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, domain.Health{OK: false, Version: Version, Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, domain.Health{OK: true, Version: Version})
}

// ListLinksHandler returns every link, newest first
func (h *Handler) ListLinksHandler(w http.ResponseWriter, r *http.Request) {
	links, err := h.linkService.ListLinks(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	base := h.baseURL(r)
	views := make([]domain.LinkView, 0, len(links))
	for _, link := range links {
		views = append(views, domain.NewLinkView(link, base))
	}

	h.logger.Debug("Listing %d links", len(views))
	h.writeJSON(w, http.StatusOK, views)
}

// CreateLinkHandler shortens a URL
func (h *Handler) CreateLinkHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in create request: %v", err)
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}

	link, err := h.linkService.CreateLink(r.Context(), req.OriginalURL, req.CustomCode)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, domain.NewLinkView(*link, h.baseURL(r)))
}

// GetLinkHandler returns a single link without counting a click
func (h *Handler) GetLinkHandler(w http.ResponseWriter, r *http.Request) {
	link, err := h.linkService.GetLink(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.NewLinkView(*link, h.baseURL(r)))
}

// DeleteLinkHandler removes a link
func (h *Handler) DeleteLinkHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.linkService.DeleteLink(r.Context(), mux.Vars(r)["code"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// RedirectHandler counts a click and redirects to the original URL
func (h *Handler) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["shortCode"]

	targetURL, err := h.linkService.ResolveRedirect(r.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.logger.Info("Unknown short code '%s'", code)
			http.Error(w, "URL not found", http.StatusNotFound)
			return
		}

		h.logger.Error("Failed to resolve '%s': %v", code, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, targetURL, http.StatusFound)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps service errors to API responses
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid URL format"})
	case errors.Is(err, service.ErrInvalidCode):
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid custom code"})
	case errors.Is(err, service.ErrCodeConflict):
		h.writeJSON(w, http.StatusConflict, errorBody{Error: "Custom code already exists"})
	case errors.Is(err, service.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	case errors.Is(err, service.ErrCodeSpaceExhausted):
		h.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Could not allocate a short code"})
	default:
		h.logger.Error("Request failed: %v", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write response: %v", err)
	}
}

// baseURL is the scheme and host clients used to reach this server
func (h *Handler) baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if h.config.TrustProxy {
		if proto := firstHeaderValue(r, "X-Forwarded-Proto"); proto != "" {
			scheme = strings.ToLower(proto)
		}
		if fwdHost := firstHeaderValue(r, "X-Forwarded-Host"); fwdHost != "" {
			host = fwdHost
		}
	}

	return scheme + "://" + host
}

// firstHeaderValue returns the client-most entry of a comma separated header
func firstHeaderValue(r *http.Request, name string) string {
	value, _, _ := strings.Cut(r.Header.Get(name), ",")
	return strings.TrimSpace(value)
}
