package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"tinylink/internal/logger"
	"tinylink/internal/service"

	"github.com/gorilla/mux"
)

// DocumentService interface for the bundled documentation
type DocumentService interface {
	GetDocument(ctx context.Context, name string) (*service.RenderResult, error)
	ListDocuments(ctx context.Context) ([]service.DocumentInfo, error)
}

// DocumentHandler handles document-related HTTP requests
type DocumentHandler struct {
	docService DocumentService
	page       *template.Template
	logger     *logger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docService DocumentService, log *logger.Logger) *DocumentHandler {
	log.Info("Document handler initialized")
	return &DocumentHandler{
		docService: docService,
		page:       template.Must(template.New("document").Parse(documentPage)),
		logger:     log,
	}
}

// RegisterRoutes registers document-related routes
func (h *DocumentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/docs/", h.ListDocuments).Methods("GET")
	router.HandleFunc("/docs/{name}", h.ServeDocument).Methods("GET")
}

// ServeDocument renders and serves a document
func (h *DocumentHandler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	result, err := h.docService.GetDocument(r.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to render document '%s': %v", name, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Title       string
		Description string
		Content     template.HTML
	}{
		Title:       result.Metadata.Title,
		Description: result.Metadata.Description,
		Content:     template.HTML(result.HTML),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, data); err != nil {
		h.logger.Error("Failed to execute document template: %v", err)
	}
}

// ListDocuments returns a list of available documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docService.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("Failed to list documents: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"documents": docs,
	})
}

const documentPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - TinyLink Docs</title>
    <style>
        body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f5f5f5; }
        .document-container {
            max-width: 800px;
            margin: 2rem auto;
            padding: 2rem;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .document-header { border-bottom: 1px solid #eee; margin-bottom: 2rem; }
        .document-content { line-height: 1.6; }
        .document-content pre { padding: 1rem; border-radius: 6px; overflow-x: auto; }
        .document-content table { width: 100%; border-collapse: collapse; }
        .document-content th, .document-content td { border: 1px solid #ddd; padding: 0.5rem; text-align: left; }
    </style>
</head>
<body>
    <div class="document-container">
        <header class="document-header">
            <h1>{{.Title}}</h1>
            {{if .Description}}<p>{{.Description}}</p>{{end}}
        </header>
        <main class="document-content">
            {{.Content}}
        </main>
        <footer style="margin-top: 2rem; color: #666;">
            <a href="/docs/">All Documents</a>
        </footer>
    </div>
</body>
</html>`
