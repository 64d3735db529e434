package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stayfinder/internal/database"
	"stayfinder/internal/models"
	"stayfinder/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedListing struct {
	HostID      int64    `yaml:"host_id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Location    string   `yaml:"location"`
	Price       float64  `yaml:"price"`
	MaxGuests   int      `yaml:"max_guests"`
	Bedrooms    int      `yaml:"bedrooms"`
	HasBathroom *bool    `yaml:"has_bathroom"`
	Type        string   `yaml:"type"`
	Amenities   []string `yaml:"amenities"`
}

type seedFile struct {
	Listings []seedListing `yaml:"listings"`
}

func (s seedListing) input() service.ListingInput {
	price := s.Price
	return service.ListingInput{
		Title:       s.Title,
		Description: s.Description,
		Location:    s.Location,
		Price:       &price,
		MaxGuests:   s.MaxGuests,
		Bedrooms:    s.Bedrooms,
		HasBathroom: s.HasBathroom,
		Type:        s.Type,
		Amenities:   s.Amenities,
	}
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
		listingsPath = flag.String("listings", "configs/listings.yaml", "path to listings.yaml")
		dbPath       = flag.String("db", "./data/stayfinder.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*listingsPath)
	if err != nil {
		return fmt.Errorf("read listings: %w", err)
	}
	var file seedFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse listings: %w", err)
	}
	if len(file.Listings) == 0 {
		return fmt.Errorf("no listings in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listings := service.NewListingService(db, nil, db, 0, &logger)

	created, updated := 0, 0
	for _, sl := range file.Listings {
		if sl.HostID <= 0 || strings.TrimSpace(sl.Title) == "" {
			logger.Warn().Str("title", sl.Title).Msg("skipping listing without host_id or title")
			continue
		}

		existing, err := findByTitle(ctx, listings, sl.HostID, sl.Title)
		if err != nil {
			return fmt.Errorf("look up %q: %w", sl.Title, err)
		}
		if existing != nil {
			if _, err := listings.UpdateListing(ctx, sl.HostID, existing.ID, sl.input()); err != nil {
				return fmt.Errorf("update %q: %w", sl.Title, err)
			}
			updated++
			continue
		}
		if _, err := listings.CreateListing(ctx, sl.HostID, sl.input()); err != nil {
			return fmt.Errorf("create %q: %w", sl.Title, err)
		}
		created++
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}

// findByTitle matches a host's listing by title, ignoring case and surrounding space.
func findByTitle(ctx context.Context, listings *service.ListingService, hostID int64, title string) (*models.Listing, error) {
	owned, err := listings.HostListings(ctx, hostID)
	if err != nil {
		return nil, err
	}
	for _, l := range owned {
		if strings.EqualFold(strings.TrimSpace(l.Title), strings.TrimSpace(title)) {
			return l, nil
		}
	}
	return nil, nil
}
