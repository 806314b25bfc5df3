package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
)

// StudentRepository handles buyer persistence
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

type studentRow struct {
	ID       int64  `db:"id"`
	FullName string `db:"full_name"`
	Email    string `db:"email"`
}

func (r studentRow) toModel() *models.Student {
	return &models.Student{
		ID:               r.ID,
		FullName:         r.FullName,
		Email:            r.Email,
		Memberships:      models.NewIDSet(),
		PurchasedEvents:  models.NewIDSet(),
		DiscountedEvents: models.NewIDSet(),
		SavedEvents:      models.NewIDSet(),
	}
}

type studentEventRow struct {
	EventID    int64 `db:"event_id"`
	Purchased  bool  `db:"purchased"`
	Discounted bool  `db:"discounted"`
	Saved      bool  `db:"saved"`
}

// GetStudent returns a student with memberships and event flags loaded.
func (r *StudentRepository) GetStudent(ctx context.Context, id int64) (*models.Student, error) {
	var row studentRow
	err := r.db.GetContext(ctx, &row, `SELECT id, full_name, email FROM students WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	student := row.toModel()

	var societyIDs []int64
	err = r.db.SelectContext(ctx, &societyIDs,
		`SELECT society_id FROM society_members WHERE student_id = $1 AND role = $2`, id, models.RoleRegular)
	if err != nil {
		return nil, fmt.Errorf("failed to get student memberships: %w", err)
	}
	for _, sid := range societyIDs {
		student.Memberships.Add(sid)
	}

	var flags []studentEventRow
	err = r.db.SelectContext(ctx, &flags,
		`SELECT event_id, purchased, discounted, saved FROM student_events WHERE student_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get student events: %w", err)
	}
	for _, f := range flags {
		if f.Purchased {
			student.PurchasedEvents.Add(f.EventID)
		}
		if f.Discounted {
			student.DiscountedEvents.Add(f.EventID)
		}
		if f.Saved {
			student.SavedEvents.Add(f.EventID)
		}
	}

	return student, nil
}

// CreateStudent inserts a student.
func (r *StudentRepository) CreateStudent(ctx context.Context, s *models.Student) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO students (full_name, email) VALUES ($1, $2) RETURNING id`,
		s.FullName, s.Email).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// SaveEvent bookmarks an event for the student.
func (r *StudentRepository) SaveEvent(ctx context.Context, studentID, eventID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO student_events (student_id, event_id, saved)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (student_id, event_id) DO UPDATE SET saved = TRUE`, studentID, eventID)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListEventBuyers returns students who bought tickets for the event.
func (r *StudentRepository) ListEventBuyers(ctx context.Context, eventID int64) ([]*models.Student, error) {
	return r.listByEventFlag(ctx, eventID, "purchased")
}

// ListEventSavers returns students who saved the event.
func (r *StudentRepository) ListEventSavers(ctx context.Context, eventID int64) ([]*models.Student, error) {
	return r.listByEventFlag(ctx, eventID, "saved")
}

func (r *StudentRepository) listByEventFlag(ctx context.Context, eventID int64, flag string) ([]*models.Student, error) {
	query := fmt.Sprintf(`
		SELECT s.id, s.full_name, s.email
		FROM students s
		JOIN student_events se ON se.student_id = s.id
		WHERE se.event_id = $1 AND se.%s
		ORDER BY s.id`, flag)

	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("failed to list %s students: %w", flag, err)
	}

	students := make([]*models.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toModel())
	}
	return students, nil
}
