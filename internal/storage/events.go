package storage

import (
	"context"
	"fmt"
	"modpod/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventStorage struct {
	pool *pgxpool.Pool
}

func NewEventStorage(pool *pgxpool.Pool) *EventStorage {
	return &EventStorage{
		pool: pool,
	}
}

const eventColumns = "id, title, first_date, repeat_configuration, creator"

func scanEvent(row rowScanner) (models.CalendarEvent, error) {
	var ev models.CalendarEvent
	err := row.Scan(
		&ev.ID,
		&ev.Title,
		&ev.FirstDate,
		&ev.RepeatConfiguration,
		&ev.Creator,
	)
	return ev, err
}

// ListEvents returns every calendar event ordered by (first_date, id).
func (s *EventStorage) ListEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	op := "internal/storage/events.go ListEvents"

	rows, err := s.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY first_date, id`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	events := []models.CalendarEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return events, nil
}

func (s *EventStorage) GetEvent(ctx context.Context, id string) (models.CalendarEvent, error) {
	op := "internal/storage/events.go GetEvent"

	ev, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return models.CalendarEvent{}, classify(op, err)
	}
	return ev, nil
}

func (s *EventStorage) CreateEvent(ctx context.Context, ev models.CalendarEvent) error {
	op := "internal/storage/events.go CreateEvent"

	query := `
	INSERT INTO events
	(id, title, first_date, repeat_configuration, creator)
	VALUES ($1, $2, $3, $4, $5);
	`

	_, err := s.pool.Exec(ctx, query,
		ev.ID,
		ev.Title,
		ev.FirstDate,
		string(ev.RepeatConfiguration),
		ev.Creator,
	)
	if err != nil {
		return classify(op, err)
	}
	return nil
}

func (s *EventStorage) DeleteEvent(ctx context.Context, id string) error {
	op := "internal/storage/events.go DeleteEvent"

	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
