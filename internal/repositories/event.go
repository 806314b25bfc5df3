package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// EventRepository handles event persistence
type EventRepository struct {
	db        *sqlx.DB
	societies *SocietyRepository
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *sqlx.DB, societies *SocietyRepository) *EventRepository {
	return &EventRepository{db: db, societies: societies}
}

const eventColumns = `id, name, location, host_society_id, early_bird_capacity, early_bird_price,
	standard_capacity, standard_price, status, start_time, end_time, created_at, updated_at`

type eventRow struct {
	ID                int64           `db:"id"`
	Name              string          `db:"name"`
	Location          string          `db:"location"`
	HostSocietyID     sql.NullInt64   `db:"host_society_id"`
	EarlyBirdCapacity int             `db:"early_bird_capacity"`
	EarlyBirdPrice    decimal.Decimal `db:"early_bird_price"`
	StandardCapacity  int             `db:"standard_capacity"`
	StandardPrice     decimal.Decimal `db:"standard_price"`
	Status            string          `db:"status"`
	StartTime         sql.NullTime    `db:"start_time"`
	EndTime           sql.NullTime    `db:"end_time"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r eventRow) toModel() *models.Event {
	return &models.Event{
		ID:        r.ID,
		Name:      r.Name,
		Location:  r.Location,
		HostID:    r.HostSocietyID.Int64,
		EarlyBird: models.TicketClassSpec{Capacity: r.EarlyBirdCapacity, Price: r.EarlyBirdPrice},
		Standard:  models.TicketClassSpec{Capacity: r.StandardCapacity, Price: r.StandardPrice},
		Status:    models.EventStatus(r.Status),
		StartTime: r.StartTime.Time,
		EndTime:   r.EndTime.Time,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// GetEvent returns the event with its host and co-organizers loaded.
func (r *EventRepository) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event := row.toModel()
	if err := r.loadOrganizers(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) loadOrganizers(ctx context.Context, event *models.Event) error {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT society_id FROM event_organizers WHERE event_id = $1 ORDER BY society_id`, event.ID)
	if err != nil {
		return fmt.Errorf("failed to get event organizers: %w", err)
	}

	lookup := ids
	if event.HostID != 0 {
		lookup = append([]int64{event.HostID}, ids...)
	}
	societies, err := r.societies.GetSocieties(ctx, lookup)
	if err != nil {
		return err
	}

	event.Host = societies[event.HostID]
	event.CoOrganizers = event.CoOrganizers[:0]
	for _, id := range ids {
		if s, ok := societies[id]; ok && id != event.HostID {
			event.CoOrganizers = append(event.CoOrganizers, s)
		}
	}
	return nil
}

// CreateEvent inserts an event and its co-organizers.
func (r *EventRepository) CreateEvent(ctx context.Context, event *models.Event, coOrganizerIDs []int64) error {
	if err := event.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO events (name, location, host_society_id, early_bird_capacity, early_bird_price,
			standard_capacity, standard_price, status, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		event.Name, event.Location, nullID(event.HostID),
		event.EarlyBird.Capacity, event.EarlyBird.Price,
		event.Standard.Capacity, event.Standard.Price,
		event.Status, nullTime(event.StartTime), nullTime(event.EndTime),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	for _, societyID := range coOrganizerIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_organizers (event_id, society_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			event.ID, societyID); err != nil {
			return fmt.Errorf("failed to add event organizer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// UpdateEvent persists the mutable fields of an event.
func (r *EventRepository) UpdateEvent(ctx context.Context, event *models.Event) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET name = $2, location = $3, early_bird_capacity = $4, early_bird_price = $5,
			standard_capacity = $6, standard_price = $7, status = $8,
			start_time = $9, end_time = $10, updated_at = $11
		WHERE id = $1`,
		event.ID, event.Name, event.Location,
		event.EarlyBird.Capacity, event.EarlyBird.Price,
		event.Standard.Capacity, event.Standard.Price,
		event.Status, nullTime(event.StartTime), nullTime(event.EndTime), event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return models.ErrEventNotFound
	}
	return nil
}
