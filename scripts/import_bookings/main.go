package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/models"
	"classbook/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Imports a YAML list of bookings into the SQLite store through the same
// validator the API uses. Rejected entries are reported and skipped.

type fixture struct {
	ID       string `yaml:"id"`
	Date     string `yaml:"date"`
	Time     string `yaml:"time"`
	Room     string `yaml:"room"`
	Priority int    `yaml:"priority"`
}

type fixtureFile struct {
	Bookings []fixture `yaml:"bookings"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		bookingsPath = flag.String("bookings", "configs/bookings.yaml", "path to bookings.yaml")
		dbPath       = flag.String("db", "./data/classbook.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*bookingsPath)
	if err != nil {
		return fmt.Errorf("read bookings: %w", err)
	}
	var file fixtureFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse bookings: %w", err)
	}
	if len(file.Bookings) == 0 {
		return fmt.Errorf("no bookings in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	svc := service.NewBookingService(db, nil, false, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, skipped := 0, 0
	for _, f := range file.Bookings {
		candidate, err := f.toBooking()
		if err != nil {
			logger.Warn().Err(err).Str("id", f.ID).Msg("skip malformed booking")
			skipped++
			continue
		}

		if _, err = svc.CreateBooking(ctx, candidate); err != nil {
			if errors.Is(err, domain.ErrDuplicateID) || errors.Is(err, domain.ErrSlotConflict) || errors.Is(err, domain.ErrInvalidPriority) || errors.Is(err, domain.ErrInvalidBooking) {
				logger.Warn().Err(err).Str("id", f.ID).Msg("skip rejected booking")
				skipped++
				continue
			}
			return fmt.Errorf("create %s: %w", f.ID, err)
		}
		created++
	}

	logger.Info().Int("created", created).Int("skipped", skipped).Msg("bookings import finished")
	return nil
}

func (f fixture) toBooking() (*models.Booking, error) {
	date, err := time.Parse(models.DateLayout, f.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", f.Date, err)
	}
	tod, err := models.ParseTimeOfDay(f.Time)
	if err != nil {
		return nil, err
	}
	return &models.Booking{ID: f.ID, Date: date, Time: tod, Room: f.Room, Priority: f.Priority}, nil
}
