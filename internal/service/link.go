package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tinylink/internal/codegen"
	"tinylink/internal/domain"
	"tinylink/internal/events"
	"tinylink/internal/logger"
	"tinylink/internal/repository"
)

// LinkRepository is the storage the link service needs
type LinkRepository interface {
	FindByCode(ctx context.Context, code string) (*domain.Link, error)
	Insert(ctx context.Context, link *domain.Link) error
	IncrementClick(ctx context.Context, code string, at time.Time) (*domain.Link, error)
	Delete(ctx context.Context, code string) (bool, error)
	ListAll(ctx context.Context) ([]domain.Link, error)
	Ping(ctx context.Context) error
}

// CodeGenerator produces candidate short codes
type CodeGenerator interface {
	Generate() (string, error)
}

var (
	// ErrInvalidURL is returned when the original URL is not http(s)
	ErrInvalidURL = errors.New("invalid url format")

	// ErrInvalidCode is returned for custom codes that cannot be served
	ErrInvalidCode = errors.New("invalid short code")

	// ErrCodeConflict is returned when a custom code is already taken
	ErrCodeConflict = errors.New("custom code already exists")

	// ErrNotFound is returned when no link has the requested code
	ErrNotFound = errors.New("link not found")

	// ErrCodeSpaceExhausted is returned when every generated code collided
	ErrCodeSpaceExhausted = errors.New("could not allocate a free short code")
)

const DefaultMaxCodeAttempts = 5

var urlPattern = regexp.MustCompile(`^https?://.+`)

// reservedCodes are first path segments already taken by other routes
var reservedCodes = map[string]bool{
	"api":     true,
	"docs":    true,
	"healthz": true,
	"static":  true,
}

// LinkService handles business logic for short links
type LinkService struct {
	repo            LinkRepository
	codes           CodeGenerator
	publisher       events.Publisher
	maxCodeAttempts int
	now             func() time.Time
	logger          *logger.Logger
}

// Option configures a LinkService
type Option func(*LinkService)

// WithCodeGenerator replaces the default random generator
func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *LinkService) { s.codes = g }
}

// WithPublisher sends link events to p
func WithPublisher(p events.Publisher) Option {
	return func(s *LinkService) { s.publisher = p }
}

// WithMaxCodeAttempts bounds how many generated codes are tried per create
func WithMaxCodeAttempts(n int) Option {
	return func(s *LinkService) {
		if n > 0 {
			s.maxCodeAttempts = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *LinkService) { s.now = now }
}

// NewLinkService creates a new link service
func NewLinkService(repo LinkRepository, log *logger.Logger, opts ...Option) *LinkService {
	s := &LinkService{
		repo:            repo,
		codes:           codegen.New(),
		publisher:       events.Nop{},
		maxCodeAttempts: DefaultMaxCodeAttempts,
		now:             time.Now,
		logger:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info("Link service initialized (max code attempts: %d)", s.maxCodeAttempts)
	return s
}

// CreateLink shortens originalURL. An empty customCode means a code is
// generated; generated codes that collide are regenerated, custom ones are
// reported as ErrCodeConflict.
func (s *LinkService) CreateLink(ctx context.Context, originalURL, customCode string) (*domain.Link, error) {
	if !urlPattern.MatchString(originalURL) {
		s.logger.Warn("Rejected invalid URL: %q", originalURL)
		return nil, ErrInvalidURL
	}

	if customCode != "" {
		if err := validateCustomCode(customCode); err != nil {
			s.logger.Warn("Rejected custom code %q: %v", customCode, err)
			return nil, err
		}
		return s.insert(ctx, originalURL, customCode)
	}

	for attempt := 1; attempt <= s.maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}
		if reservedCodes[strings.ToLower(code)] {
			continue
		}

		link, err := s.insert(ctx, originalURL, code)
		if errors.Is(err, ErrCodeConflict) {
			s.logger.Warn("Generated code '%s' collided (attempt %d/%d)", code, attempt, s.maxCodeAttempts)
			continue
		}
		return link, err
	}

	s.logger.Error("Gave up allocating a short code after %d attempts", s.maxCodeAttempts)
	return nil, ErrCodeSpaceExhausted
}

func (s *LinkService) insert(ctx context.Context, originalURL, code string) (*domain.Link, error) {
	link := &domain.Link{
		OriginalURL: originalURL,
		ShortCode:   code,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.Insert(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, ErrCodeConflict
		}
		s.logger.Error("Failed to insert link '%s': %v", code, err)
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	s.logger.Info("Link created: '%s' -> '%s'", link.ShortCode, link.OriginalURL)
	s.publish(domain.EventLinkCreated, link.ShortCode, link)
	return link, nil
}

// GetLink returns the stored link for code
func (s *LinkService) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, s.mapLookupError(err, code)
	}
	return link, nil
}

// DeleteLink removes the link for code
func (s *LinkService) DeleteLink(ctx context.Context, code string) (bool, error) {
	removed, err := s.repo.Delete(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete link: %w", err)
	}
	if !removed {
		return false, ErrNotFound
	}

	s.logger.Info("Link deleted: '%s'", code)
	s.publish(domain.EventLinkDeleted, code, nil)
	return true, nil
}

// ResolveRedirect counts a click on code and returns the URL to redirect to
func (s *LinkService) ResolveRedirect(ctx context.Context, code string) (string, error) {
	link, err := s.repo.IncrementClick(ctx, code, s.now().UTC())
	if err != nil {
		return "", s.mapLookupError(err, code)
	}

	s.logger.Debug("Redirecting '%s' to '%s' (clicks: %d)", code, link.OriginalURL, link.Clicks)
	s.publish(domain.EventLinkClicked, code, link)
	return link.OriginalURL, nil
}

// ListLinks returns every link, newest first
func (s *LinkService) ListLinks(ctx context.Context) ([]domain.Link, error) {
	links, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list links: %v", err)
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

// Health reports whether the link store is reachable
func (s *LinkService) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Error("Link store health check failed: %v", err)
		return fmt.Errorf("link store unavailable: %w", err)
	}
	return nil
}

func (s *LinkService) mapLookupError(err error, code string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	s.logger.Error("Failed to look up '%s': %v", code, err)
	return fmt.Errorf("failed to look up link: %w", err)
}

func (s *LinkService) publish(typ domain.EventType, code string, link *domain.Link) {
	var snapshot *domain.Link
	if link != nil {
		cp := *link
		snapshot = &cp
	}
	s.publisher.Publish(domain.LinkEvent{
		Type:      typ,
		ShortCode: code,
		Link:      snapshot,
		At:        s.now().UTC(),
	})
}

func validateCustomCode(code string) error {
	if !codegen.Valid(code) {
		return fmt.Errorf("%w: use up to %d letters, digits, '-' or '_'", ErrInvalidCode, codegen.MaxCodeLength)
	}
	if reservedCodes[strings.ToLower(code)] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidCode, code)
	}
	return nil
}
