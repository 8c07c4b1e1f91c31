package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
	"electra/internal/storage"
)

// StationRepository defines the storage contract used by StationService.
type StationRepository interface {
	Create(ctx context.Context, station *models.Station) error
	GetByID(ctx context.Context, id int64) (*models.Station, error)
	ExistsWithNameOrAddress(ctx context.Context, name, address string, excludeID int64) (bool, error)
	Update(ctx context.Context, station *models.Station) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter repository.StationFilter) ([]models.Station, error)
}

// StationDependents answers whether live bookings still reference a station.
type StationDependents interface {
	HasNonTerminal(ctx context.Context, stationID int64) (bool, error)
}

// StationService contains station registry logic.
type StationService struct {
	repo     StationRepository
	bookings StationDependents
	assets   storage.AssetStore
	audit    *AuditRecorder
	logger   *zap.Logger
}

// NewStationService builds StationService.
func NewStationService(repo StationRepository, bookings StationDependents, assets storage.AssetStore, audit *AuditRecorder, logger *zap.Logger) *StationService {
	return &StationService{
		repo:     repo,
		bookings: bookings,
		assets:   assets,
		audit:    audit,
		logger:   logger,
	}
}

// Create registers a new station owned by the actor.
func (s *StationService) Create(ctx context.Context, actor auth.Identity, station *models.Station) (*models.Station, error) {
	if !actor.HasCapability(auth.CapManageStations) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to manage stations")
	}
	if station.Status == "" {
		station.Status = models.StationStatusActive
	}
	station.OwnerID = actor.UserID
	station.Rating = 0
	station.TotalReviews = 0
	if err := station.Validate(); err != nil {
		return nil, err
	}

	taken, err := s.repo.ExistsWithNameOrAddress(ctx, station.Name, station.Location.Address, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.New(apperr.KindAlreadyExists, "a station with this name or address already exists")
	}

	if err := s.repo.Create(ctx, station); err != nil {
		return nil, err
	}

	s.logger.Info("station created",
		zap.Int64("station_id", station.ID),
		zap.String("name", station.Name),
		zap.Int64("owner_id", station.OwnerID),
	)
	s.audit.Record(ctx, models.AdminActivity{
		AdminID:     actor.UserID,
		Action:      models.ActionCreate,
		TargetModel: "station",
		TargetID:    station.ID,
		TargetName:  station.Name,
		After:       snapshot(station),
		Severity:    models.SeverityMedium,
	})
	return station, nil
}

// UpdateStationInput carries mutable station fields. Nil pointers leave
// the field untouched. CompanyName is present only to detect attempts to
// change it, which are rejected.
type UpdateStationInput struct {
	Name           *string
	Description    *string
	Location       *models.Location
	Capacity       *int
	AvailablePorts *int
	CompanyName    *string
	Plugs          []models.Plug
	Amenities      []string
	Status         *models.StationStatus
	WorkingHours   *models.WorkingHours
	Photos         []string
}

// Update modifies a station the actor owns or administers.
func (s *StationService) Update(ctx context.Context, actor auth.Identity, id int64, input UpdateStationInput) (*models.Station, error) {
	var updated *models.Station
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		station, err := s.getStation(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, station); err != nil {
			return err
		}
		if input.CompanyName != nil && !strings.EqualFold(strings.TrimSpace(*input.CompanyName), station.CompanyName) {
			return apperr.New(apperr.KindImmutable, "company name cannot be changed after creation")
		}

		before := *station
		applyStationInput(station, input)
		if err := station.Validate(); err != nil {
			return err
		}

		if station.Name != before.Name || station.Location.Address != before.Location.Address {
			taken, err := s.repo.ExistsWithNameOrAddress(ctx, station.Name, station.Location.Address, station.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.New(apperr.KindAlreadyExists, "a station with this name or address already exists")
			}
		}

		if err := s.repo.Update(ctx, station); err != nil {
			return err
		}
		s.audit.Record(ctx, models.AdminActivity{
			AdminID:     actor.UserID,
			Action:      models.ActionUpdate,
			TargetModel: "station",
			TargetID:    station.ID,
			TargetName:  station.Name,
			Before:      snapshot(before),
			After:       snapshot(station),
			Severity:    models.SeverityMedium,
		})
		updated = station
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyStationInput(station *models.Station, input UpdateStationInput) {
	if input.Name != nil {
		station.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		station.Description = *input.Description
	}
	if input.Location != nil {
		station.Location = *input.Location
	}
	if input.Capacity != nil {
		station.Capacity = *input.Capacity
	}
	if input.AvailablePorts != nil {
		station.AvailablePorts = *input.AvailablePorts
	}
	if input.Plugs != nil {
		station.Plugs = input.Plugs
	}
	if input.Amenities != nil {
		station.Amenities = input.Amenities
	}
	if input.Status != nil {
		station.Status = *input.Status
	}
	if input.WorkingHours != nil {
		station.WorkingHours = *input.WorkingHours
	}
	if input.Photos != nil {
		station.Photos = input.Photos
	}
}

// AddPhoto uploads a station photo and appends its URL to the gallery.
func (s *StationService) AddPhoto(ctx context.Context, actor auth.Identity, id int64, upload storage.Upload) (*models.Station, error) {
	station, err := s.getStation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, station); err != nil {
		return nil, err
	}

	url, err := s.assets.Save(ctx, upload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, "photo upload failed", err)
	}

	var updated *models.Station
	err = retryOnConflict(ctx, func(ctx context.Context) error {
		fresh, err := s.getStation(ctx, id)
		if err != nil {
			return err
		}
		fresh.Photos = append(fresh.Photos, url)
		if err := s.repo.Update(ctx, fresh); err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if err != nil {
		if removeErr := s.assets.Remove(ctx, url); removeErr != nil {
			s.logger.Warn("failed to remove orphaned station photo", zap.Error(removeErr))
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes a station that has no live bookings.
func (s *StationService) Delete(ctx context.Context, actor auth.Identity, id int64) error {
	station, err := s.getStation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(actor, station); err != nil {
		return err
	}

	busy, err := s.bookings.HasNonTerminal(ctx, id)
	if err != nil {
		return err
	}
	if busy {
		return apperr.New(apperr.KindHasDependents, "station has active or upcoming bookings")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			return apperr.New(apperr.KindNotFound, "station not found")
		}
		return err
	}

	s.logger.Info("station deleted", zap.Int64("station_id", id), zap.Int64("actor_id", actor.UserID))
	s.audit.Record(ctx, models.AdminActivity{
		AdminID:     actor.UserID,
		Action:      models.ActionDelete,
		TargetModel: "station",
		TargetID:    id,
		TargetName:  station.Name,
		Before:      snapshot(station),
		Severity:    models.SeverityHigh,
	})
	return nil
}

// Get fetches one station.
func (s *StationService) Get(ctx context.Context, id int64) (*models.Station, error) {
	return s.getStation(ctx, id)
}

// List returns stations matching the filter.
func (s *StationService) List(ctx context.Context, filter repository.StationFilter) ([]models.Station, error) {
	return s.repo.List(ctx, filter)
}

func (s *StationService) getStation(ctx context.Context, id int64) (*models.Station, error) {
	station, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "station not found")
		}
		return nil, err
	}
	return station, nil
}

// authorize allows the station owner and role-level station managers.
func (s *StationService) authorize(actor auth.Identity, station *models.Station) error {
	if station.OwnerID == actor.UserID && actor.HasCapability(auth.CapManageStations) {
		return nil
	}
	if actor.Role == auth.RoleAdmin {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "not allowed to modify this station")
}
