package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tinylink/internal/domain"
	"tinylink/internal/logger"
)

const pgUniqueViolation = "23505"

// PostgresLinkRepository stores links in PostgreSQL
type PostgresLinkRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresLinkRepository creates a new PostgreSQL link repository
func NewPostgresLinkRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresLinkRepository {
	log.Info("PostgreSQL link repository initialized")
	return &PostgresLinkRepository{
		pool:   pool,
		logger: log,
	}
}

func scanPgLink(row pgx.Row) (*domain.Link, error) {
	var link domain.Link
	if err := row.Scan(
		&link.ID,
		&link.OriginalURL,
		&link.ShortCode,
		&link.Clicks,
		&link.LastClicked,
		&link.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &link, nil
}

// FindByCode retrieves a link by its short code
func (r *PostgresLinkRepository) FindByCode(ctx context.Context, code string) (*domain.Link, error) {
	link, err := scanPgLink(r.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE short_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Database query failed for code '%s': %v", code, err)
		return nil, fmt.Errorf("failed to find link by code: %w", err)
	}
	return link, nil
}

// Insert stores a new link. It fails with ErrDuplicateCode when the short
// code is already in use.
func (r *PostgresLinkRepository) Insert(ctx context.Context, link *domain.Link) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO links (original_url, short_code, clicks, created_at)
		 VALUES ($1, $2, 0, $3)
		 RETURNING id`,
		link.OriginalURL, link.ShortCode, link.CreatedAt,
	).Scan(&link.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicateCode
		}
		r.logger.Error("Database insert failed: %v", err)
		return fmt.Errorf("failed to insert link: %w", err)
	}

	link.Clicks = 0
	link.LastClicked = nil
	r.logger.Info("Link created: id=%d code='%s'", link.ID, link.ShortCode)
	return nil
}

// IncrementClick adds one click and moves last_clicked forward to at in a
// single UPDATE. GREATEST ignores the NULL of a never-clicked link.
func (r *PostgresLinkRepository) IncrementClick(ctx context.Context, code string, at time.Time) (*domain.Link, error) {
	link, err := scanPgLink(r.pool.QueryRow(ctx,
		`UPDATE links
		 SET clicks = clicks + 1,
		     last_clicked = GREATEST(last_clicked, $2)
		 WHERE short_code = $1
		 RETURNING `+linkColumns,
		code, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Click update failed for code '%s': %v", code, err)
		return nil, fmt.Errorf("failed to increment clicks: %w", err)
	}
	return link, nil
}

// Delete removes the link with the given code and reports whether one existed
func (r *PostgresLinkRepository) Delete(ctx context.Context, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM links WHERE short_code = $1`, code)
	if err != nil {
		r.logger.Error("Database delete failed for code '%s': %v", code, err)
		return false, fmt.Errorf("failed to delete link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAll returns every link, most recently created first
func (r *PostgresLinkRepository) ListAll(ctx context.Context) ([]domain.Link, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+linkColumns+` FROM links ORDER BY id DESC`)
	if err != nil {
		r.logger.Error("Database query failed: %v", err)
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []domain.Link{}
	for rows.Next() {
		link, err := scanPgLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return links, nil
}

// Ping checks that the database is reachable
func (r *PostgresLinkRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
