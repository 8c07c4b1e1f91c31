package models

import (
	"strings"
	"time"

	"electra/internal/apperr"
)

// StationStatus describes operational state of a charging station.
type StationStatus string

const (
	StationStatusActive      StationStatus = "active"
	StationStatusMaintenance StationStatus = "maintenance"
	StationStatusClosed      StationStatus = "closed"
)

// Plug describes a single connector on a station.
type Plug struct {
	Type        string  `json:"type"`
	PowerKW     float64 `json:"power_kw"`
	PricePerKWh float64 `json:"price_per_kwh"`
	Available   bool    `json:"available"`
}

// GeoPoint is a longitude/latitude pair.
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Location is the physical address of a station.
type Location struct {
	Address     string   `json:"address"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	ZipCode     string   `json:"zip_code,omitempty"`
	Coordinates GeoPoint `json:"coordinates"`
}

// WorkingHours holds opening and closing times in HH:MM.
type WorkingHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Station is a charging station aggregate. CompanyName is locked after
// creation; AvailablePorts may never exceed Capacity.
type Station struct {
	ID             int64         `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Description    string        `db:"description" json:"description,omitempty"`
	Location       Location      `db:"location" json:"location"`
	Capacity       int           `db:"capacity" json:"capacity"`
	AvailablePorts int           `db:"available_ports" json:"available_ports"`
	CompanyName    string        `db:"company_name" json:"company_name"`
	OwnerID        int64         `db:"owner_id" json:"owner_id"`
	Plugs          []Plug        `db:"plugs" json:"plugs"`
	Amenities      []string      `db:"amenities" json:"amenities,omitempty"`
	Rating         float64       `db:"rating" json:"rating"`
	TotalReviews   int           `db:"total_reviews" json:"total_reviews"`
	Status         StationStatus `db:"status" json:"status"`
	WorkingHours   WorkingHours  `db:"working_hours" json:"working_hours"`
	Photos         []string      `db:"photos" json:"photos,omitempty"`
	Version        int64         `db:"version" json:"version"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Validate checks structural invariants before persistence.
func (s *Station) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return apperr.New(apperr.KindValidation, "station name is required")
	}
	if strings.TrimSpace(s.Location.Address) == "" {
		return apperr.New(apperr.KindValidation, "station address is required")
	}
	if strings.TrimSpace(s.CompanyName) == "" {
		return apperr.New(apperr.KindValidation, "company name is required")
	}
	if s.Capacity < 0 {
		return apperr.New(apperr.KindValidation, "capacity must be a positive number")
	}
	if s.AvailablePorts < 0 || s.AvailablePorts > s.Capacity {
		return apperr.New(apperr.KindValidation, "available ports must be between 0 and capacity")
	}
	if len(s.Plugs) == 0 {
		return apperr.New(apperr.KindValidation, "at least one plug descriptor is required")
	}
	for _, p := range s.Plugs {
		if p.PowerKW < 1 {
			return apperr.New(apperr.KindValidation, "plug power must be at least 1kW")
		}
		if p.PricePerKWh < 0 {
			return apperr.New(apperr.KindValidation, "plug price must be positive")
		}
	}
	switch s.Status {
	case StationStatusActive, StationStatusMaintenance, StationStatusClosed:
	default:
		return apperr.Newf(apperr.KindValidation, "%q is not a valid station status", s.Status)
	}
	return nil
}

// CheapestRate returns the lowest per-kWh price among available plugs,
// falling back to any plug when none is flagged available.
func (s *Station) CheapestRate() float64 {
	best := 0.0
	found := false
	for _, p := range s.Plugs {
		if !p.Available {
			continue
		}
		if !found || p.PricePerKWh < best {
			best = p.PricePerKWh
			found = true
		}
	}
	if !found {
		for _, p := range s.Plugs {
			if !found || p.PricePerKWh < best {
				best = p.PricePerKWh
				found = true
			}
		}
	}
	return best
}

// ApplyReview folds a new review rating into the rolling average.
func (s *Station) ApplyReview(rating int) {
	total := s.Rating*float64(s.TotalReviews) + float64(rating)
	s.TotalReviews++
	s.Rating = total / float64(s.TotalReviews)
}
