package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SocietyRepository handles society persistence
type SocietyRepository struct {
	db *sqlx.DB
}

// NewSocietyRepository creates a new society repository
func NewSocietyRepository(db *sqlx.DB) *SocietyRepository {
	return &SocietyRepository{db: db}
}

const societyColumns = `id, name, email, member_discount, member_fee,
	account_name, account_number, sort_code, processor_account_id, created_at`

type societyRow struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	Email          string          `db:"email"`
	MemberDiscount decimal.Decimal `db:"member_discount"`
	MemberFee      decimal.Decimal `db:"member_fee"`
	models.PayoutDestination
	CreatedAt time.Time `db:"created_at"`
}

func (r societyRow) toModel() *models.Society {
	return &models.Society{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		MemberDiscount:   r.MemberDiscount,
		MemberFee:        r.MemberFee,
		Payout:           r.PayoutDestination,
		CreatedAt:        r.CreatedAt,
		RegularMembers:   models.NewIDSet(),
		CommitteeMembers: models.NewIDSet(),
		Followers:        models.NewIDSet(),
		Subscribers:      models.NewIDSet(),
	}
}

type memberRow struct {
	SocietyID int64             `db:"society_id"`
	StudentID int64             `db:"student_id"`
	Role      models.MemberRole `db:"role"`
}

// GetSociety returns a society with its member collections.
func (r *SocietyRepository) GetSociety(ctx context.Context, id int64) (*models.Society, error) {
	societies, err := r.GetSocieties(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	s, ok := societies[id]
	if !ok {
		return nil, models.ErrSocietyNotFound
	}
	return s, nil
}

// GetSocieties loads several societies keyed by id. Missing ids are skipped.
func (r *SocietyRepository) GetSocieties(ctx context.Context, ids []int64) (map[int64]*models.Society, error) {
	out := make(map[int64]*models.Society, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []societyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+societyColumns+` FROM societies WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get societies: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.toModel()
	}

	var members []memberRow
	err = r.db.SelectContext(ctx, &members,
		`SELECT society_id, student_id, role FROM society_members WHERE society_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get society members: %w", err)
	}
	for _, m := range members {
		s, ok := out[m.SocietyID]
		if !ok {
			continue
		}
		switch m.Role {
		case models.RoleRegular:
			s.RegularMembers.Add(m.StudentID)
		case models.RoleCommittee:
			s.CommitteeMembers.Add(m.StudentID)
		case models.RoleFollower:
			s.Followers.Add(m.StudentID)
		case models.RoleSubscriber:
			s.Subscribers.Add(m.StudentID)
		}
	}

	return out, nil
}

// CreateSociety inserts a society.
func (r *SocietyRepository) CreateSociety(ctx context.Context, s *models.Society) error {
	if err := s.Validate(); err != nil {
		return err
	}

	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO societies (name, email, member_discount, member_fee,
			account_name, account_number, sort_code, processor_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		s.Name, s.Email, s.MemberDiscount, s.MemberFee,
		s.Payout.AccountName, s.Payout.AccountNumber, s.Payout.SortCode, s.Payout.ProcessorAccountID,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create society: %w", err)
	}
	return nil
}

// AddMember records a student in one of the society's collections.
func (r *SocietyRepository) AddMember(ctx context.Context, societyID, studentID int64, role models.MemberRole) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO society_members (society_id, student_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, societyID, studentID, role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return models.ErrSocietyNotFound
		}
		return fmt.Errorf("failed to add society member: %w", err)
	}
	return nil
}
