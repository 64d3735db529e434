package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"stayfinder/internal/config"
	"stayfinder/internal/database"
	"stayfinder/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "stayfinder-test"

	hostID  int64 = 10
	guestID int64 = 20
	otherID int64 = 30
)

type apiFixture struct {
	db       *database.DB
	bookings *service.BookingService
	listings *service.ListingService
	users    *service.UserService
	server   *HTTPServer
	ts       *httptest.Server
	auth     *JWTAuth
	now      time.Time
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		JWT:     config.JWTConfig{Secret: testSecret, Issuer: testIssuer},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "partner-key", Name: "partner", Permissions: []string{permReadAvailability}},
				{Key: "limited-key", Name: "limited", Permissions: []string{"read:other"}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

// newAPIFixture serves the HTTP API over a file database with "now" pinned to
// 2025-05-20 noon UTC.
func newAPIFixture(t *testing.T, cfg config.APIConfig) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &apiFixture{db: db, now: time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)}
	f.bookings = service.NewBookingService(db, db, nil, nil, service.BookingOptions{
		Clock: func() time.Time { return f.now },
	}, &logger)
	f.listings = service.NewListingService(db, nil, db, 0, &logger)
	f.users = service.NewUserService(db, &logger)

	f.server = NewHTTPServer(cfg, Services{
		Bookings: f.bookings,
		Listings: f.listings,
		Users:    f.users,
		Ready:    db.Ready,
	}, &logger)
	f.server.now = func() time.Time { return f.now }
	f.ts = httptest.NewServer(f.server.Handler())
	t.Cleanup(f.ts.Close)

	f.auth = NewJWTAuth(cfg.JWT)
	return f
}

func (f *apiFixture) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := f.auth.IssueToken(userID, "", time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends body as JSON and decodes a JSON response into a map when there is one.
func (f *apiFixture) do(t *testing.T, method, path string, userID int64, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, f.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func listingBody(title string, maxGuests int) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "Bright flat near the river",
		"location":    "Porto",
		"price":       100,
		"max_guests":  maxGuests,
		"bedrooms":    1,
		"type":        "apartment",
		"amenities":   []string{"wifi", "Wifi", " kitchen "},
	}
}

// createListing publishes a listing for hostID and returns its id.
func (f *apiFixture) createListing(t *testing.T) int64 {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/v1/listings", hostID, listingBody("River flat", 4))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return int64(body["id"].(float64))
}

func (f *apiFixture) createBooking(t *testing.T, listingID int64, in, out string) (*http.Response, map[string]any) {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/v1/bookings", guestID, map[string]any{
		"listing_id": listingID,
		"check_in":   in,
		"check_out":  out,
		"guests":     2,
	})
}
