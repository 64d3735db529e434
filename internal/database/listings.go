package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"stayfinder/internal/models"
)

const listingColumns = `id, host_id, title, description, location, price, max_guests,
	bedrooms, has_bathroom, type, amenities, image, created_at, updated_at`

func (db *DB) CreateListing(ctx context.Context, l *models.Listing) error {
	amenities, err := encodeAmenities(l.Amenities)
	if err != nil {
		return err
	}

	query := `INSERT INTO listings (
				host_id, title, description, location, price, max_guests,
				bedrooms, has_bathroom, type, amenities, image, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		l.HostID, l.Title, l.Description, l.Location, l.Price, l.MaxGuests,
		l.Bedrooms, l.HasBathroom, l.Type, amenities, l.Image, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	l.ID = id
	l.CreatedAt = now
	l.UpdatedAt = now
	return nil
}

func (db *DB) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	l, err := scanListing(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

func (db *DB) UpdateListing(ctx context.Context, l *models.Listing) error {
	amenities, err := encodeAmenities(l.Amenities)
	if err != nil {
		return err
	}

	query := `UPDATE listings SET title = ?, description = ?, location = ?, price = ?,
				max_guests = ?, bedrooms = ?, has_bathroom = ?, type = ?, amenities = ?,
				image = ?, updated_at = ?
			WHERE id = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		l.Title, l.Description, l.Location, l.Price, l.MaxGuests, l.Bedrooms,
		l.HasBathroom, l.Type, amenities, l.Image, now, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	l.UpdatedAt = now
	return nil
}

func (db *DB) DeleteListing(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchListings applies the non-zero fields of filter. Location matches as a
// case-insensitive substring, Bedrooms exactly, Guests against max_guests.
func (db *DB) SearchListings(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Location != "" {
		where = append(where, `LOWER(location) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.Location))+"%")
	}
	if f.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Bedrooms > 0 {
		where = append(where, "bedrooms = ?")
		args = append(args, f.Bedrooms)
	}
	if f.Guests > 0 {
		where = append(where, "max_guests >= ?")
		args = append(args, f.Guests)
	}
	if f.HostID > 0 {
		where = append(where, "host_id = ?")
		args = append(args, f.HostID)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	listings := []*models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// CountActiveBookings counts pending and confirmed bookings of a listing.
func (db *DB) CountActiveBookings(ctx context.Context, listingID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE listing_id = ? AND status IN (?, ?)`,
		listingID, models.StatusPending, models.StatusConfirmed,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l         models.Listing
		amenities string
	)
	err := row.Scan(
		&l.ID, &l.HostID, &l.Title, &l.Description, &l.Location, &l.Price, &l.MaxGuests,
		&l.Bedrooms, &l.HasBathroom, &l.Type, &amenities, &l.Image, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(amenities), &l.Amenities); err != nil {
		return nil, fmt.Errorf("decode amenities of listing %d: %w", l.ID, err)
	}
	if l.Amenities == nil {
		l.Amenities = []string{}
	}
	return &l, nil
}

func encodeAmenities(a []string) (string, error) {
	if a == nil {
		a = []string{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode amenities: %w", err)
	}
	return string(b), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
