package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const venueSelectColumns = `
	v.venue_id,
	v.venue_uuid::text,
	v.name,
	v.address,
	v.city,
	v.country,
	v.latitude,
	v.longitude,
	v.website_url,
	v.active,
	v.created_at,
	v.updated_at`

// FindVenueByName resolves a venue by case-insensitive name match.
// Returns ErrNoRows when no active venue matches.
func (p *Pool) FindVenueByName(ctx context.Context, name string) (*Venue, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("venue name is required")
	}

	const q = `
SELECT` + venueSelectColumns + `
FROM events.venues v
WHERE v.active
  AND lower(v.name) = lower($1)
ORDER BY v.venue_id ASC
LIMIT 1
`

	venue, err := scanVenue(p.QueryRow(ctx, q, trimmed))
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query venue by name: %w", err)
	}
	return venue, nil
}

// GetVenueByID loads one venue row by internal id.
func (p *Pool) GetVenueByID(ctx context.Context, venueID int64) (*Venue, error) {
	if venueID <= 0 {
		return nil, fmt.Errorf("venue id must be > 0")
	}

	const q = `
SELECT` + venueSelectColumns + `
FROM events.venues v
WHERE v.venue_id = $1
`

	venue, err := scanVenue(p.QueryRow(ctx, q, venueID))
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query venue %d: %w", venueID, err)
	}
	return venue, nil
}

// ListVenues returns active venues ordered by name.
func (p *Pool) ListVenues(ctx context.Context, limit int) ([]Venue, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT` + venueSelectColumns + `
FROM events.venues v
WHERE v.active
ORDER BY v.name ASC, v.venue_id ASC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query venues: %w", err)
	}
	defer rows.Close()

	venues := make([]Venue, 0, limit)
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan venue row: %w", err)
		}
		venues = append(venues, *venue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate venue rows: %w", err)
	}
	return venues, nil
}

// CreateVenue inserts a venue and returns its internal id.
func (p *Pool) CreateVenue(ctx context.Context, venue *Venue) (int64, error) {
	if venue == nil {
		return 0, fmt.Errorf("venue is required")
	}
	if strings.TrimSpace(venue.Name) == "" {
		return 0, fmt.Errorf("venue name is required")
	}

	const q = `
INSERT INTO events.venues (name, address, city, country, latitude, longitude, website_url, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, true, now(), now())
RETURNING venue_id
`

	var venueID int64
	if err := p.QueryRow(ctx, q,
		strings.TrimSpace(venue.Name),
		venue.Address, venue.City, venue.Country,
		venue.Latitude, venue.Longitude,
		venue.WebsiteURL,
	).Scan(&venueID); err != nil {
		return 0, fmt.Errorf("insert venue: %w", err)
	}
	return venueID, nil
}

func scanVenue(row rowScanner) (*Venue, error) {
	var v Venue
	if err := row.Scan(
		&v.VenueID,
		&v.VenueUUID,
		&v.Name,
		&v.Address,
		&v.City,
		&v.Country,
		&v.Latitude,
		&v.Longitude,
		&v.WebsiteURL,
		&v.Active,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}
