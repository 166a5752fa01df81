package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"tinylink/internal/logger"
)

// ErrDocumentNotFound is returned when no document has the requested name
var ErrDocumentNotFound = errors.New("document not found")

// DocumentService renders the Markdown documentation bundled with the server
type DocumentService struct {
	docs     fs.FS
	markdown goldmark.Markdown
	logger   *logger.Logger
}

// DocumentInfo contains metadata about a document
type DocumentInfo struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Order       int            `json:"-"`
	Metadata    map[string]any `json:"-"`
}

// RenderResult contains the rendered document and metadata
type RenderResult struct {
	HTML     string       `json:"html"`
	Metadata DocumentInfo `json:"metadata"`
}

// NewDocumentService creates a document service reading *.md files from docs
func NewDocumentService(docs fs.FS, log *logger.Logger) *DocumentService {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	log.Info("Document service initialized")
	return &DocumentService{
		docs:     docs,
		markdown: md,
		logger:   log,
	}
}

// GetDocument renders the document called name (with or without ".md")
func (s *DocumentService) GetDocument(ctx context.Context, name string) (*RenderResult, error) {
	// path.Base keeps lookups inside the docs root
	name = strings.TrimSuffix(path.Base(name), ".md")
	if name == "" || name == "." || name == "/" {
		return nil, ErrDocumentNotFound
	}

	content, err := fs.ReadFile(s.docs, name+".md")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := s.markdown.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		s.logger.Error("Failed to render document '%s': %v", name, err)
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	return &RenderResult{
		HTML:     buf.String(),
		Metadata: documentInfo(name, meta.Get(pctx)),
	}, nil
}

// ListDocuments returns every available document ordered by the "order"
// front matter key, then by name
func (s *DocumentService) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	entries, err := fs.ReadDir(s.docs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read docs directory: %w", err)
	}

	docs := []DocumentInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		content, err := fs.ReadFile(s.docs, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}

		// Only the front matter is needed here
		pctx := parser.NewContext()
		s.markdown.Parser().Parse(text.NewReader(content), parser.WithContext(pctx))

		docs = append(docs, documentInfo(strings.TrimSuffix(entry.Name(), ".md"), meta.Get(pctx)))
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Order != docs[j].Order {
			return docs[i].Order < docs[j].Order
		}
		return docs[i].Name < docs[j].Name
	})
	return docs, nil
}

func documentInfo(name string, metaData map[string]any) DocumentInfo {
	if metaData == nil {
		metaData = make(map[string]any)
	}
	return DocumentInfo{
		Name:        name,
		Title:       getStringFromMeta(metaData, "title", name),
		Description: getStringFromMeta(metaData, "description", ""),
		Order:       getIntFromMeta(metaData, "order", 100),
		Metadata:    metaData,
	}
}

func getStringFromMeta(m map[string]any, key, defaultValue string) string {
	if value, ok := m[key]; ok {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getIntFromMeta(m map[string]any, key string, defaultValue int) int {
	if value, ok := m[key].(int); ok {
		return value
	}
	return defaultValue
}
