package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"society-ticketing/internal/config"
	"society-ticketing/internal/database"
	"society-ticketing/internal/logging"
	"society-ticketing/internal/repositories"
	"society-ticketing/internal/seed"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		statusFlag = flag.Bool("status", false, "Show migration status")
		upFlag     = flag.Bool("up", false, "Run pending migrations")
		seedFlag   = flag.Bool("seed", false, "Load demo societies, events and students (after -up)")
	)
	flag.Parse()

	if !*statusFlag && !*upFlag && !*seedFlag {
		fmt.Println("Usage:")
		fmt.Println("  migrate -status      # Show migration status")
		fmt.Println("  migrate -up          # Run pending migrations")
		fmt.Println("  migrate -up -seed    # Migrate, then load demo data")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	logging.Init(cfg.Log.Level, cfg.Log.JSON)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if *statusFlag {
		if err := printStatus(ctx, db); err != nil {
			logrus.WithError(err).Fatal("Failed to get migration status")
		}
	}

	if *upFlag {
		n, err := db.Migrate(ctx)
		if err != nil {
			logrus.WithError(err).WithField("applied", n).Fatal("Failed to run migrations")
		}
		fmt.Printf("%d migration(s) applied\n", n)
	}

	if *seedFlag {
		societies := repositories.NewSocietyRepository(db.DB)
		target := seed.Postgres{
			Societies: societies,
			Events:    repositories.NewEventRepository(db.DB, societies),
			Students:  repositories.NewStudentRepository(db.DB),
		}
		res, err := seed.Demo(ctx, target, time.Now())
		if err != nil {
			logrus.WithError(err).Fatal("Failed to seed demo data")
		}
		fmt.Printf("Seeded societies %v, events %v, students %v\n", res.Societies, res.Events, res.Students)
	}
}

func printStatus(ctx context.Context, db *database.DB) error {
	statuses, err := database.NewMigrator(db.DB).Status(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, s := range statuses {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%03d\t%s\t%s\n", s.Version, s.Name, applied)
	}
	return w.Flush()
}
