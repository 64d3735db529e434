package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stayfinder/internal/domain"
	"stayfinder/internal/models"
)

const bookingColumns = `id, user_id, listing_id, check_in, check_out, guests, total_nights,
	base_price, add_ons_price, total_price, add_ons, special_requests, status,
	version, created_at, updated_at`

// CreateBookingWithLock inserts booking inside a BEGIN IMMEDIATE transaction.
// admit sees the active bookings of the listing that overlap the requested stay and
// may veto the insert; the overlap trigger re-checks at write time.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking, admit domain.AdmitFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if admit != nil {
		ranges, err := queryRanges(ctx, tx, booking.ListingID, booking.CheckIn, booking.CheckOut)
		if err != nil {
			return fmt.Errorf("failed to check availability in tx: %w", err)
		}
		if err := admit(ranges); err != nil {
			return err
		}
	}

	addOns, err := json.Marshal(booking.AddOns)
	if err != nil {
		return fmt.Errorf("encode add-ons: %w", err)
	}

	query := `INSERT INTO bookings (
				user_id, listing_id, check_in, check_out, guests, total_nights,
				base_price, add_ons_price, total_price, add_ons, special_requests,
				status, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		booking.UserID,
		booking.ListingID,
		booking.CheckIn.Format(models.DateLayout),
		booking.CheckOut.Format(models.DateLayout),
		booking.Guests,
		booking.TotalNights,
		booking.BasePrice,
		booking.AddOnsPrice,
		booking.TotalPrice,
		string(addOns),
		booking.SpecialRequests,
		booking.Status,
		1,
		now,
		now,
	)
	if err != nil {
		if isOverlap(err) {
			return ErrOverlap
		}
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetActiveBookingRanges lists pending and confirmed stays of a listing. A zero from or
// to leaves that side of the window open.
func (db *DB) GetActiveBookingRanges(ctx context.Context, listingID int64, from, to time.Time) ([]models.BookedRange, error) {
	ranges, err := queryRanges(ctx, db, listingID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked ranges: %w", err)
	}
	return ranges, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryRanges(ctx context.Context, q querier, listingID int64, from, to time.Time) ([]models.BookedRange, error) {
	query := `SELECT id, check_in, check_out, status FROM bookings
              WHERE listing_id = ? AND status IN (?, ?)`
	args := []interface{}{listingID, models.StatusPending, models.StatusConfirmed}
	if !to.IsZero() {
		query += ` AND check_in < ?`
		args = append(args, to.Format(models.DateLayout))
	}
	if !from.IsZero() {
		query += ` AND check_out > ?`
		args = append(args, from.Format(models.DateLayout))
	}
	query += ` ORDER BY check_in ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranges := []models.BookedRange{}
	for rows.Next() {
		var (
			r                 models.BookedRange
			checkIn, checkOut string
		)
		if err := rows.Scan(&r.BookingID, &checkIn, &checkOut, &r.Status); err != nil {
			return nil, err
		}
		if r.CheckIn, err = time.Parse(models.DateLayout, checkIn); err != nil {
			return nil, fmt.Errorf("parse check-in %q: %w", checkIn, err)
		}
		if r.CheckOut, err = time.Parse(models.DateLayout, checkOut); err != nil {
			return nil, fmt.Errorf("parse check-out %q: %w", checkOut, err)
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// UpdateBookingStatusWithVersion changes the status only if the row still has fromVersion.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY check_in DESC, id DESC`
	return db.queryBookings(ctx, query, userID)
}

func (db *DB) GetListingBookings(ctx context.Context, listingID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE listing_id = ? ORDER BY check_in ASC, id ASC`
	return db.queryBookings(ctx, query, listingID)
}

// ListBookings returns every booking in id order; used to rebuild the spreadsheet mirror.
func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY id ASC`
	return db.queryBookings(ctx, query)
}

// GetFinishedConfirmedBookings returns confirmed stays whose check-out is on or before today.
func (db *DB) GetFinishedConfirmedBookings(ctx context.Context, today time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND check_out <= ? ORDER BY check_out ASC`
	return db.queryBookings(ctx, query, models.StatusConfirmed, today.Format(models.DateLayout))
}

const hostBookingQuery = `SELECT b.id, b.user_id, b.listing_id, b.check_in, b.check_out, b.guests, b.total_nights,
	                 b.base_price, b.add_ons_price, b.total_price, b.add_ons, b.special_requests, b.status,
	                 b.version, b.created_at, b.updated_at,
	                 l.title, COALESCE(u.name, ''), COALESCE(u.email, '')
              FROM bookings b
              JOIN listings l ON l.id = b.listing_id
              LEFT JOIN users u ON u.id = b.user_id`

// GetHostBookings joins every booking on the host's listings with the listing title and guest.
func (db *DB) GetHostBookings(ctx context.Context, hostID int64) ([]*models.HostBooking, error) {
	query := hostBookingQuery + ` WHERE l.host_id = ? ORDER BY b.check_in ASC, b.id ASC`
	out, err := db.queryHostBookings(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to get host bookings: %w", err)
	}
	return out, nil
}

// GetConfirmedCheckIns returns the confirmed stays that start on day.
func (db *DB) GetConfirmedCheckIns(ctx context.Context, day time.Time) ([]*models.HostBooking, error) {
	query := hostBookingQuery + ` WHERE b.status = ? AND b.check_in = ? ORDER BY b.id ASC`
	out, err := db.queryHostBookings(ctx, query, models.StatusConfirmed, day.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get check-ins: %w", err)
	}
	return out, nil
}

func (db *DB) queryHostBookings(ctx context.Context, query string, args ...interface{}) ([]*models.HostBooking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.HostBooking{}
	for rows.Next() {
		hb := &models.HostBooking{}
		b, err := scanBooking(rows, &hb.ListingTitle, &hb.GuestName, &hb.GuestEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host booking: %w", err)
		}
		hb.Booking = *b
		out = append(out, hb)
	}
	return out, rows.Err()
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// scanBooking reads bookingColumns followed by any extra destinations.
func scanBooking(row rowScanner, extra ...interface{}) (*models.Booking, error) {
	var (
		b                 models.Booking
		checkIn, checkOut string
		addOns            string
	)
	dest := []interface{}{
		&b.ID, &b.UserID, &b.ListingID, &checkIn, &checkOut, &b.Guests, &b.TotalNights,
		&b.BasePrice, &b.AddOnsPrice, &b.TotalPrice, &addOns, &b.SpecialRequests, &b.Status,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var err error
	if b.CheckIn, err = time.Parse(models.DateLayout, checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check-in %s: %w", checkIn, err)
	}
	if b.CheckOut, err = time.Parse(models.DateLayout, checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check-out %s: %w", checkOut, err)
	}
	if err := json.Unmarshal([]byte(addOns), &b.AddOns); err != nil {
		return nil, fmt.Errorf("failed to decode add-ons of booking %d: %w", b.ID, err)
	}
	return &b, nil
}
