// Package seed loads a small demo data set: two societies, a co-organized
// event and a handful of students.
package seed

import (
	"context"
	"fmt"
	"time"

	"society-ticketing/internal/models"
	"society-ticketing/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Target is anything that can store the demo data.
type Target interface {
	CreateSociety(ctx context.Context, s *models.Society) error
	CreateEvent(ctx context.Context, event *models.Event, coOrganizerIDs []int64) error
	CreateStudent(ctx context.Context, s *models.Student) error
	AddMember(ctx context.Context, societyID, studentID int64, role models.MemberRole) error
}

// Postgres stores the demo data through the repositories.
type Postgres struct {
	Societies *repositories.SocietyRepository
	Events    *repositories.EventRepository
	Students  *repositories.StudentRepository
}

func (p Postgres) CreateSociety(ctx context.Context, s *models.Society) error {
	return p.Societies.CreateSociety(ctx, s)
}

func (p Postgres) CreateEvent(ctx context.Context, event *models.Event, coOrganizerIDs []int64) error {
	return p.Events.CreateEvent(ctx, event, coOrganizerIDs)
}

func (p Postgres) CreateStudent(ctx context.Context, s *models.Student) error {
	return p.Students.CreateStudent(ctx, s)
}

func (p Postgres) AddMember(ctx context.Context, societyID, studentID int64, role models.MemberRole) error {
	return p.Societies.AddMember(ctx, societyID, studentID, role)
}

// Result holds the ids of what was created.
type Result struct {
	Societies []int64
	Events    []int64
	Students  []int64
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Demo writes the demo data set into t. Event dates are relative to now.
func Demo(ctx context.Context, t Target, now time.Time) (*Result, error) {
	chess := &models.Society{
		Name:           "Chess Society",
		Email:          "chess@su.example.ac.uk",
		MemberDiscount: money("10"),
		MemberFee:      money("8.00"),
		Payout: models.PayoutDestination{
			AccountName:        "KCL Chess Society",
			AccountNumber:      "12345678",
			SortCode:           "108800",
			ProcessorAccountID: "acct_demo_chess",
		},
	}
	drama := &models.Society{
		Name:           "Drama Society",
		Email:          "drama@su.example.ac.uk",
		MemberDiscount: money("25"),
		MemberFee:      money("0"),
	}
	res := &Result{}
	for _, s := range []*models.Society{chess, drama} {
		if err := t.CreateSociety(ctx, s); err != nil {
			return nil, fmt.Errorf("seed society %q: %w", s.Name, err)
		}
		res.Societies = append(res.Societies, s.ID)
	}

	start := now.Add(14 * 24 * time.Hour).Truncate(time.Hour)
	events := []struct {
		event *models.Event
		co    []int64
	}{
		{
			event: &models.Event{
				Name:      "Blitz Night",
				Location:  "Bush House 2.01",
				HostID:    chess.ID,
				EarlyBird: models.TicketClassSpec{Capacity: 20, Price: money("3.00")},
				Standard:  models.TicketClassSpec{Capacity: 40, Price: money("5.00")},
				Status:    models.EventActive,
				StartTime: start,
				EndTime:   start.Add(3 * time.Hour),
			},
		},
		{
			event: &models.Event{
				Name:      "Checkmate: A Play in Two Acts",
				Location:  "Greenwood Theatre",
				HostID:    drama.ID,
				EarlyBird: models.TicketClassSpec{Capacity: 30, Price: money("6.00")},
				Standard:  models.TicketClassSpec{Capacity: 120, Price: money("9.50")},
				Status:    models.EventActive,
				StartTime: start.Add(7 * 24 * time.Hour),
				EndTime:   start.Add(7*24*time.Hour + 2*time.Hour),
			},
			co: []int64{chess.ID},
		},
	}
	for _, e := range events {
		if err := t.CreateEvent(ctx, e.event, e.co); err != nil {
			return nil, fmt.Errorf("seed event %q: %w", e.event.Name, err)
		}
		res.Events = append(res.Events, e.event.ID)
	}

	students := []struct {
		student *models.Student
		roles   map[int64]models.MemberRole
	}{
		{&models.Student{FullName: "Ada Lovelace", Email: "ada@example.ac.uk"}, map[int64]models.MemberRole{chess.ID: models.RoleCommittee}},
		{&models.Student{FullName: "Grace Hopper", Email: "grace@example.ac.uk"}, map[int64]models.MemberRole{chess.ID: models.RoleRegular}},
		{&models.Student{FullName: "Alan Turing", Email: "alan@example.ac.uk"}, map[int64]models.MemberRole{drama.ID: models.RoleFollower}},
	}
	for _, s := range students {
		if err := t.CreateStudent(ctx, s.student); err != nil {
			return nil, fmt.Errorf("seed student %q: %w", s.student.FullName, err)
		}
		for societyID, role := range s.roles {
			if err := t.AddMember(ctx, societyID, s.student.ID, role); err != nil {
				return nil, fmt.Errorf("seed membership: %w", err)
			}
		}
		res.Students = append(res.Students, s.student.ID)
	}

	logrus.WithFields(logrus.Fields{
		"societies": len(res.Societies),
		"events":    len(res.Events),
		"students":  len(res.Students),
	}).Info("Demo data seeded")
	return res, nil
}
