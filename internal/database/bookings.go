package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"classbook/internal/domain"
	"classbook/internal/models"
)

const bookingColumns = `id, date, time, room, priority, status, owner, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (db *DB) Insert(ctx context.Context, b *models.Booking) error {
	return insertBooking(ctx, db, b, time.Now())
}

// InsertIfNoConflict checks uniqueness and slot conflicts and inserts inside
// one IMMEDIATE transaction.
func (db *DB) InsertIfNoConflict(ctx context.Context, b *models.Booking, conflicts domain.ConflictFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	exists, err := bookingExists(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateID
	}

	// the conflict window never crosses midnight, so same room and date is enough
	rows, err := tx.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE room = ? AND date = ?`,
		b.Room, b.Date.Format(models.DateLayout))
	if err != nil {
		return fmt.Errorf("failed to load room bookings in tx: %w", err)
	}
	sameDay, err := scanBookings(rows)
	if err != nil {
		return err
	}
	for _, existing := range sameDay {
		if conflicts(existing, b) {
			return domain.ErrSlotConflict
		}
	}

	if err := insertBooking(ctx, tx, b, time.Now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

func insertBooking(ctx context.Context, q queryer, b *models.Booking, now time.Time) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		b.ID,
		b.Date.Format(models.DateLayout),
		int(b.Time),
		b.Room,
		b.Priority,
		string(b.Status),
		nullString(b.Owner),
		1,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (db *DB) Get(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// Update writes status, owner and priority if the stored version still
// matches b.Version, then bumps the version.
func (db *DB) Update(ctx context.Context, b *models.Booking) error {
	now := time.Now()
	res, err := db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, owner = ?, priority = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND version = ?`,
		string(b.Status), nullString(b.Owner), b.Priority, now, b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := bookingExists(ctx, db, b.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConcurrentModification
	}

	b.Version++
	b.UpdatedAt = now
	return nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) List(ctx context.Context) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return scanBookings(rows)
}

func (db *DB) Exists(ctx context.Context, id string) (bool, error) {
	return bookingExists(ctx, db, id)
}

func bookingExists(ctx context.Context, q queryer, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check booking existence: %w", err)
	}
	return n > 0, nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b       models.Booking
		date    string
		minutes int
		status  string
		owner   sql.NullString
	)
	err := s.Scan(&b.ID, &date, &minutes, &b.Room, &b.Priority, &status, &owner, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsed, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
	}
	b.Date = parsed
	b.Time = models.TimeOfDay(minutes)
	b.Status = models.Status(status)
	b.Owner = owner.String
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
