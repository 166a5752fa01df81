package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"tinylink/internal/domain"
	"tinylink/internal/logger"
)

const linkColumns = `id, original_url, short_code, clicks, last_clicked, created_at`

// LinkRepository stores links in SQLite. last_clicked is kept as Unix
// nanoseconds so the store can compare timestamps numerically.
type LinkRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewLinkRepository creates a new SQLite link repository
func NewLinkRepository(db *sql.DB, log *logger.Logger) *LinkRepository {
	log.Info("SQLite link repository initialized")
	return &LinkRepository{
		db:     db,
		logger: log,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.Link, error) {
	var link domain.Link
	var lastClicked sql.NullInt64
	if err := row.Scan(
		&link.ID,
		&link.OriginalURL,
		&link.ShortCode,
		&link.Clicks,
		&lastClicked,
		&link.CreatedAt,
	); err != nil {
		return nil, err
	}
	if lastClicked.Valid {
		t := time.Unix(0, lastClicked.Int64).UTC()
		link.LastClicked = &t
	}
	return &link, nil
}

// FindByCode retrieves a link by its short code
func (r *LinkRepository) FindByCode(ctx context.Context, code string) (*domain.Link, error) {
	start := time.Now()

	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = ?`
	link, err := scanLink(r.db.QueryRowContext(ctx, query, code))
	duration := time.Since(start)

	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug("No link found for code '%s' (%v)", code, duration)
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Database query failed for code '%s': %v (%v)", code, err, duration)
		return nil, fmt.Errorf("failed to find link by code: %w", err)
	}

	r.logger.Debug("Link retrieved: id=%d code='%s' (%v)", link.ID, link.ShortCode, duration)
	return link, nil
}

// Insert stores a new link. It fails with ErrDuplicateCode when the short
// code is already in use.
func (r *LinkRepository) Insert(ctx context.Context, link *domain.Link) error {
	start := time.Now()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO links (original_url, short_code, clicks, created_at) VALUES (?, ?, 0, ?)`
	result, err := r.db.ExecContext(ctx, query, link.OriginalURL, link.ShortCode, link.CreatedAt)
	duration := time.Since(start)

	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Debug("Short code '%s' already taken (%v)", link.ShortCode, duration)
			return ErrDuplicateCode
		}
		r.logger.Error("Database insert failed: %v (%v)", err, duration)
		return fmt.Errorf("failed to insert link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	link.ID = id
	link.Clicks = 0
	link.LastClicked = nil
	r.logger.Info("Link created: id=%d code='%s' (%v)", link.ID, link.ShortCode, duration)
	return nil
}

// IncrementClick adds one click and moves last_clicked forward to at. The
// counter update is a single statement so concurrent redirects never lose
// a click.
func (r *LinkRepository) IncrementClick(ctx context.Context, code string, at time.Time) (*domain.Link, error) {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE links
		SET clicks = clicks + 1,
		    last_clicked = MAX(COALESCE(last_clicked, 0), ?)
		WHERE short_code = ?`, at.UnixNano(), code)
	if err != nil {
		r.logger.Error("Click update failed for code '%s': %v", code, err)
		return nil, fmt.Errorf("failed to increment clicks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	link, err := scanLink(tx.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE short_code = ?`, code))
	if err != nil {
		return nil, fmt.Errorf("failed to reload link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit click: %w", err)
	}

	r.logger.Debug("Click recorded: code='%s' clicks=%d (%v)", code, link.Clicks, time.Since(start))
	return link, nil
}

// Delete removes the link with the given code and reports whether one existed
func (r *LinkRepository) Delete(ctx context.Context, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE short_code = ?`, code)
	if err != nil {
		r.logger.Error("Database delete failed for code '%s': %v", code, err)
		return false, fmt.Errorf("failed to delete link: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected > 0 {
		r.logger.Info("Link deleted: code='%s'", code)
	}
	return affected > 0, nil
}

// ListAll returns every link, most recently created first
func (r *LinkRepository) ListAll(ctx context.Context) ([]domain.Link, error) {
	start := time.Now()

	rows, err := r.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM links ORDER BY id DESC`)
	if err != nil {
		r.logger.Error("Database query failed: %v (%v)", err, time.Since(start))
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []domain.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	r.logger.Debug("Links listed: %d (%v)", len(links), time.Since(start))
	return links, nil
}

// Ping checks that the database is reachable
func (r *LinkRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
