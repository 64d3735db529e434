// Package client is a small Go client for the stayfinder HTTP API, used by partner
// integrations that mirror listings and place bookings on behalf of a signed-in guest.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stayfinder/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	apiPrefix   = "/api/v1"
	cachePrefix = "stayfinder:client:"
)

// APIError is a non-2xx answer decoded from the {"error", "message"} body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Booking mirrors the booking body of the API; dates are YYYY-MM-DD.
type Booking struct {
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
}

type BookingRequest struct {
	ListingID       int64         `json:"listing_id"`
	CheckIn         string        `json:"check_in"`
	CheckOut        string        `json:"check_out"`
	Guests          int           `json:"guests"`
	AddOns          models.AddOns `json:"add_ons"`
	SpecialRequests string        `json:"special_requests,omitempty"`
}

type BookedRange struct {
	BookingID int64  `json:"booking_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Status    string `json:"status"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// New builds a client for the server at baseURL (scheme and host). token, when set, is
// sent as a bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + apiPrefix,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache caches listing reads in Redis for ttl. Booked ranges are never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// SearchListings runs a public listing search.
func (c *Client) SearchListings(ctx context.Context, filter models.ListingFilter) ([]*models.Listing, error) {
	q := filterQuery(filter)
	endpoint := c.baseURL + "/listings"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	cacheKey := "search:" + q.Encode()

	var wrap struct {
		Listings []*models.Listing `json:"listings"`
	}
	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Listings, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Listings, nil
}

func (c *Client) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	endpoint := fmt.Sprintf("%s/listings/%d", c.baseURL, id)
	cacheKey := fmt.Sprintf("listing:%d", id)

	var listing models.Listing
	if c.readCache(ctx, cacheKey, &listing) {
		return &listing, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &listing); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, listing)
	return &listing, nil
}

// BookedRanges lists the pending and confirmed stays of a listing. Empty from or to
// leaves that side open.
func (c *Client) BookedRanges(ctx context.Context, listingID int64, from, to string) ([]BookedRange, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	endpoint := fmt.Sprintf("%s/listings/%d/availability", c.baseURL, listingID)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var wrap struct {
		Booked []BookedRange `json:"booked"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &wrap); err != nil {
		return nil, err
	}
	return wrap.Booked, nil
}

// CreateBooking requests a stay as the token's user.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	var booking Booking
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/bookings", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// Cancel cancels a booking of the token's user.
func (c *Client) Cancel(ctx context.Context, bookingID int64) (*Booking, error) {
	var booking Booking
	endpoint := fmt.Sprintf("%s/bookings/%d/cancel", c.baseURL, bookingID)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func filterQuery(f models.ListingFilter) url.Values {
	q := url.Values{}
	if f.Location != "" {
		q.Set("location", f.Location)
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.MinPrice > 0 {
		q.Set("minPrice", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		q.Set("maxPrice", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	if f.Bedrooms > 0 {
		q.Set("bedrooms", strconv.Itoa(f.Bedrooms))
	}
	if f.Guests > 0 {
		q.Set("guests", strconv.Itoa(f.Guests))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, cachePrefix+key, data, c.cacheTTL).Err()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			apiErr.Code = eb.Error
			apiErr.Message = eb.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
