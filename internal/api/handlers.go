package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stayfinder/internal/domain"
	"stayfinder/internal/export"
	"stayfinder/internal/models"
	"stayfinder/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// bookingView renders dates as calendar days.
type bookingView struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	ListingID       int64         `json:"listing_id"`
	CheckIn         string        `json:"check_in"`
	CheckOut        string        `json:"check_out"`
	Guests          int           `json:"guests"`
	TotalNights     int           `json:"total_nights"`
	BasePrice       float64       `json:"base_price"`
	AddOnsPrice     float64       `json:"add_ons_price"`
	TotalPrice      float64       `json:"total_price"`
	AddOns          models.AddOns `json:"add_ons"`
	SpecialRequests string        `json:"special_requests,omitempty"`
	Status          string        `json:"status"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func newBookingView(b *models.Booking) bookingView {
	return bookingView{
		ID:              b.ID,
		UserID:          b.UserID,
		ListingID:       b.ListingID,
		CheckIn:         b.CheckIn.Format(models.DateLayout),
		CheckOut:        b.CheckOut.Format(models.DateLayout),
		Guests:          b.Guests,
		TotalNights:     b.TotalNights,
		BasePrice:       b.BasePrice,
		AddOnsPrice:     b.AddOnsPrice,
		TotalPrice:      b.TotalPrice,
		AddOns:          b.AddOns,
		SpecialRequests: b.SpecialRequests,
		Status:          b.Status,
		Version:         b.Version,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func newBookingViews(bookings []*models.Booking) []bookingView {
	out := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, newBookingView(b))
	}
	return out
}

type rangeView struct {
	BookingID int64  `json:"booking_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Status    string `json:"status"`
}

func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BodyTooLarge", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "InvalidID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// Listings

func (s *HTTPServer) handleSearchListings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", err.Error())
		return
	}
	listings, err := s.svc.Listings.SearchListings(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func parseListingFilter(r *http.Request) (models.ListingFilter, error) {
	q := r.URL.Query()
	f := models.ListingFilter{
		Location: strings.TrimSpace(q.Get("location")),
		Type:     strings.TrimSpace(q.Get("type")),
	}

	floats := []struct {
		name string
		dst  *float64
	}{{"minPrice", &f.MinPrice}, {"maxPrice", &f.MaxPrice}}
	for _, p := range floats {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return f, fmt.Errorf("%s must be a number", p.name)
		}
		*p.dst = v
	}

	ints := []struct {
		name string
		dst  *int
	}{{"bedrooms", &f.Bedrooms}, {"guests", &f.Guests}, {"limit", &f.Limit}, {"offset", &f.Offset}}
	for _, p := range ints {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return f, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = v
	}
	return f, nil
}

func (s *HTTPServer) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	listing, err := s.svc.Listings.GetListing(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleListingAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var from, to time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		d, err := domain.ParseDate(raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		*dst = d
	}

	ranges, err := s.svc.Bookings.BookedRanges(r.Context(), id, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	views := make([]rangeView, 0, len(ranges))
	for _, br := range ranges {
		views = append(views, rangeView{
			BookingID: br.BookingID,
			CheckIn:   br.CheckIn.Format(models.DateLayout),
			CheckOut:  br.CheckOut.Format(models.DateLayout),
			Status:    br.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing_id": id, "booked": views})
}

func (s *HTTPServer) handleCreateListing(w http.ResponseWriter, r *http.Request, id Identity) {
	var in service.ListingInput
	if !s.decodeBody(w, r, &in) {
		return
	}
	listing, err := s.svc.Listings.CreateListing(r.Context(), id.UserID, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *HTTPServer) handleUpdateListing(w http.ResponseWriter, r *http.Request, id Identity) {
	listingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var in service.ListingInput
	if !s.decodeBody(w, r, &in) {
		return
	}
	listing, err := s.svc.Listings.UpdateListing(r.Context(), id.UserID, listingID, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleDeleteListing(w http.ResponseWriter, r *http.Request, id Identity) {
	listingID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Listings.DeleteListing(r.Context(), id.UserID, listingID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListingBookings(w http.ResponseWriter, r *http.Request, id Identity) {
	listingID, ok := pathID(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Bookings.ListListingBookings(r.Context(), id.UserID, listingID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": newBookingViews(bookings)})
}

// Host

func (s *HTTPServer) handleHostListings(w http.ResponseWriter, r *http.Request, id Identity) {
	listings, err := s.svc.Listings.HostListings(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *HTTPServer) handleExportHostBookings(w http.ResponseWriter, r *http.Request, id Identity) {
	bookings, err := s.svc.Bookings.HostBookings(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := export.WriteHostBookings(&buf, bookings, now); err != nil {
		s.writeServiceError(w, r, fmt.Errorf("build host export: %w", err))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(id.UserID, now)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Bookings

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, id Identity) {
	var req service.BookingRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	booking, err := s.svc.Bookings.CreateBooking(r.Context(), id.UserID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingView(booking))
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request, id Identity) {
	bookings, err := s.svc.Bookings.ListUserBookings(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": newBookingViews(bookings)})
}

// handleGetBooking hides bookings the caller is not party to behind a 404.
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, id Identity) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id.UserID, bookingID)
	if errors.Is(err, domain.ErrNotAuthorized) {
		err = domain.ErrBookingNotFound
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(booking))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleUpdateBookingStatus(w http.ResponseWriter, r *http.Request, id Identity) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	booking, err := s.svc.Bookings.UpdateStatus(r.Context(), id.UserID, bookingID, strings.TrimSpace(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(booking))
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, id Identity) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.Cancel(r.Context(), id.UserID, bookingID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(booking))
}

// Users

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request, id Identity) {
	user, err := s.svc.Users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleSaveProfile(w http.ResponseWriter, r *http.Request, id Identity) {
	var in service.ProfileInput
	if !s.decodeBody(w, r, &in) {
		return
	}
	user, err := s.svc.Users.SaveProfile(r.Context(), id.UserID, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
