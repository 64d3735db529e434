package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"stayfinder/internal/database"
	"stayfinder/internal/domain"
	"stayfinder/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ListingInput is the host-editable part of a listing.
type ListingInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Location    string   `json:"location" validate:"required,max=200"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	MaxGuests   int      `json:"max_guests" validate:"required,gte=1"`
	Bedrooms    int      `json:"bedrooms" validate:"gte=0"`
	HasBathroom *bool    `json:"has_bathroom"`
	Type        string   `json:"type" validate:"required,oneof=hotel apartment house"`
	Amenities   []string `json:"amenities" validate:"max=50,dive,max=100"`
	Image       string   `json:"image" validate:"omitempty,listing_image"`
}

var dataURLPattern = regexp.MustCompile(`^data:image/(jpeg|jpg|png|gif);base64,([A-Za-z0-9+/=\s]+)$`)

type ListingService struct {
	repo          domain.ListingRepository
	cache         domain.ListingCache
	users         domain.UserRepository
	validate      *validator.Validate
	maxImageBytes int
	logger        *zerolog.Logger
}

// NewListingService wires listing storage with an optional cache. users, when set, is
// used to mark listing owners as hosts.
func NewListingService(repo domain.ListingRepository, cache domain.ListingCache, users domain.UserRepository, maxImageBytes int, logger *zerolog.Logger) *ListingService {
	if maxImageBytes <= 0 {
		maxImageBytes = models.DefaultMaxImageBytes
	}
	s := &ListingService{
		repo:          repo,
		cache:         cache,
		users:         users,
		validate:      validator.New(),
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
	_ = s.validate.RegisterValidation("listing_image", func(fl validator.FieldLevel) bool {
		return s.validImage(fl.Field().String()) == nil
	})
	return s
}

// MaxImageBytes is the decoded size ceiling for listing images.
func (s *ListingService) MaxImageBytes() int {
	return s.maxImageBytes
}

// validImage accepts a base64 data URL of a jpeg, png or gif no larger than maxImageBytes.
func (s *ListingService) validImage(raw string) error {
	m := dataURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return errors.New("image must be a base64 data URL of type jpeg, png or gif")
	}
	data := strings.Join(strings.Fields(m[2]), "")
	if base64.StdEncoding.DecodedLen(len(data)) > s.maxImageBytes+2 {
		return fmt.Errorf("image exceeds %d bytes", s.maxImageBytes)
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("image is not valid base64: %w", err)
	}
	if len(decoded) > s.maxImageBytes {
		return fmt.Errorf("image exceeds %d bytes", s.maxImageBytes)
	}
	return nil
}

func (s *ListingService) validateInput(in *ListingInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidListing, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid %s", domain.ErrInvalidListing, strings.Join(fields, ", "))
}

// normalizeAmenities trims entries, drops blanks and keeps the first of each duplicate.
func normalizeAmenities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func (in *ListingInput) apply(l *models.Listing) {
	l.Title = strings.TrimSpace(in.Title)
	l.Description = strings.TrimSpace(in.Description)
	l.Location = strings.TrimSpace(in.Location)
	l.Price = *in.Price
	l.MaxGuests = in.MaxGuests
	l.Bedrooms = in.Bedrooms
	l.HasBathroom = in.HasBathroom == nil || *in.HasBathroom
	l.Type = in.Type
	l.Amenities = normalizeAmenities(in.Amenities)
	l.Image = in.Image
}

// CreateListing publishes a new listing owned by hostID.
func (s *ListingService) CreateListing(ctx context.Context, hostID int64, in ListingInput) (*models.Listing, error) {
	if hostID == 0 {
		return nil, domain.ErrNotAuthorized
	}
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	listing := &models.Listing{HostID: hostID}
	in.apply(listing)
	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("store listing: %w", err)
	}
	s.promoteHost(ctx, hostID)

	s.logger.Info().Int64("listing_id", listing.ID).Int64("host_id", hostID).Msg("listing created")
	return listing, nil
}

// GetListing reads through the cache.
func (s *ListingService) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	if s.cache != nil {
		cached, err := s.cache.GetListing(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Int64("listing_id", id).Msg("listing cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	listing, err := readWithRetry(ctx, func(ctx context.Context) (*models.Listing, error) {
		return s.repo.GetListing(ctx, id)
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %d: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.SetListing(ctx, listing); err != nil {
			s.logger.Warn().Err(err).Int64("listing_id", id).Msg("listing cache write failed")
		}
	}
	return listing, nil
}

// UpdateListing replaces the editable fields of a listing owned by actorID.
func (s *ListingService) UpdateListing(ctx context.Context, actorID, id int64, in ListingInput) (*models.Listing, error) {
	listing, err := s.ownedListing(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	in.apply(listing)
	if err := s.repo.UpdateListing(ctx, listing); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("update listing %d: %w", id, err)
	}
	s.invalidate(ctx, id)
	return listing, nil
}

// DeleteListing removes a listing owned by actorID unless it still has active bookings.
func (s *ListingService) DeleteListing(ctx context.Context, actorID, id int64) error {
	if _, err := s.ownedListing(ctx, actorID, id); err != nil {
		return err
	}

	active, err := readWithRetry(ctx, func(ctx context.Context) (int, error) {
		return s.repo.CountActiveBookings(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("count bookings of listing %d: %w", id, err)
	}
	if active > 0 {
		return fmt.Errorf("%w: %d pending or confirmed", domain.ErrListingHasBookings, active)
	}

	if err := s.repo.DeleteListing(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return domain.ErrListingNotFound
		}
		return fmt.Errorf("delete listing %d: %w", id, err)
	}
	s.invalidate(ctx, id)
	s.logger.Info().Int64("listing_id", id).Int64("host_id", actorID).Msg("listing deleted")
	return nil
}

// SearchListings applies filter; an unknown property type is a validation error.
func (s *ListingService) SearchListings(ctx context.Context, filter models.ListingFilter) ([]*models.Listing, error) {
	if filter.Type != "" && !models.ValidPropertyType(filter.Type) {
		return nil, fmt.Errorf("%w: unknown property type %q", domain.ErrInvalidListing, filter.Type)
	}
	if filter.MinPrice < 0 || filter.MaxPrice < 0 || filter.Bedrooms < 0 || filter.Guests < 0 {
		return nil, fmt.Errorf("%w: negative filter value", domain.ErrInvalidListing)
	}
	return readWithRetry(ctx, func(ctx context.Context) ([]*models.Listing, error) {
		return s.repo.SearchListings(ctx, filter)
	})
}

// HostListings returns the listings owned by hostID.
func (s *ListingService) HostListings(ctx context.Context, hostID int64) ([]*models.Listing, error) {
	return s.SearchListings(ctx, models.ListingFilter{HostID: hostID})
}

// ownedListing loads the listing straight from storage and checks ownership.
func (s *ListingService) ownedListing(ctx context.Context, actorID, id int64) (*models.Listing, error) {
	listing, err := readWithRetry(ctx, func(ctx context.Context) (*models.Listing, error) {
		return s.repo.GetListing(ctx, id)
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %d: %w", id, err)
	}
	if listing.HostID != actorID {
		return nil, domain.ErrNotAuthorized
	}
	return listing, nil
}

func (s *ListingService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int64("listing_id", id).Msg("listing cache invalidate failed")
	}
}

func (s *ListingService) promoteHost(ctx context.Context, hostID int64) {
	if s.users == nil {
		return
	}
	user, err := s.users.GetUserByID(ctx, hostID)
	if errors.Is(err, database.ErrNotFound) {
		user = &models.User{ID: hostID}
	} else if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", hostID).Msg("load host profile failed")
		return
	}
	if user.Role == models.RoleHost {
		return
	}
	user.Role = models.RoleHost
	if err := s.users.UpsertUser(ctx, user); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", hostID).Msg("promote host failed")
	}
}
