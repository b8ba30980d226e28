package storage

import (
	"context"
	"fmt"
	"modpod/internal/models"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type LinkStorage struct {
	pool *pgxpool.Pool
}

func NewLinkStorage(pool *pgxpool.Pool) *LinkStorage {
	return &LinkStorage{
		pool: pool,
	}
}

const linkColumns = "short_code, long_url, creator, creation_date, notes, clicks"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (models.ShortURL, error) {
	var link models.ShortURL
	err := row.Scan(
		&link.ShortCode,
		&link.LongURL,
		&link.Creator,
		&link.CreationDate,
		&link.Notes,
		&link.Clicks,
	)
	return link, err
}

// ListLinks returns every short link, most clicked first.
func (s *LinkStorage) ListLinks(ctx context.Context) ([]models.ShortURL, error) {
	op := "internal/storage/links.go ListLinks"

	rows, err := s.pool.Query(ctx, `SELECT `+linkColumns+` FROM short_urls ORDER BY clicks DESC, short_code`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	links := []models.ShortURL{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return links, nil
}

func (s *LinkStorage) GetLink(ctx context.Context, shortCode string) (models.ShortURL, error) {
	op := "internal/storage/links.go GetLink"

	link, err := scanLink(s.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM short_urls WHERE short_code = $1`, shortCode))
	if err != nil {
		return models.ShortURL{}, classify(op, err)
	}
	return link, nil
}

func (s *LinkStorage) CreateLink(ctx context.Context, link *models.ShortURL) error {
	op := "internal/storage/links.go CreateLink"

	if link.CreationDate.IsZero() {
		link.CreationDate = time.Now().UTC()
	}

	query := `
	INSERT INTO short_urls
	(short_code, long_url, creator, creation_date, notes, clicks)
	VALUES ($1, $2, $3, $4, $5, $6);
	`

	_, err := s.pool.Exec(ctx, query,
		link.ShortCode,
		link.LongURL,
		link.Creator,
		link.CreationDate,
		link.Notes,
		link.Clicks,
	)
	if err != nil {
		return classify(op, err)
	}
	return nil
}

// UpdateLink rewrites the link stored under oldCode, which may include renaming it.
func (s *LinkStorage) UpdateLink(ctx context.Context, oldCode string, link models.ShortURL) error {
	op := "internal/storage/links.go UpdateLink"

	query := `
	UPDATE short_urls
	SET short_code = $2, long_url = $3, notes = $4, creator = $5
	WHERE short_code = $1;
	`

	tag, err := s.pool.Exec(ctx, query, oldCode, link.ShortCode, link.LongURL, link.Notes, link.Creator)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *LinkStorage) DeleteLink(ctx context.Context, shortCode string) error {
	op := "internal/storage/links.go DeleteLink"

	tag, err := s.pool.Exec(ctx, `DELETE FROM short_urls WHERE short_code = $1`, shortCode)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// IncrementClicks bumps the click counter in a single statement so concurrent redirects don't race.
func (s *LinkStorage) IncrementClicks(ctx context.Context, shortCode string) error {
	op := "internal/storage/links.go IncrementClicks"

	tag, err := s.pool.Exec(ctx, `UPDATE short_urls SET clicks = clicks + 1 WHERE short_code = $1`, shortCode)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
