package service

import (
	"context"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
)

// ActivityReader defines the query side of the audit log.
type ActivityReader interface {
	ListByAdmin(ctx context.Context, adminID int64, filter repository.ActivityFilter) ([]models.AdminActivity, error)
	ListByTarget(ctx context.Context, targetModel string, targetID int64, limit int) ([]models.AdminActivity, error)
	Recent(ctx context.Context, limit int) ([]models.AdminActivity, error)
}

// ActivityService exposes the audit trail to privileged callers.
type ActivityService struct {
	reader ActivityReader
}

// NewActivityService builds ActivityService.
func NewActivityService(reader ActivityReader) *ActivityService {
	return &ActivityService{reader: reader}
}

// ListByAdmin returns one admin's activity entries.
func (s *ActivityService) ListByAdmin(ctx context.Context, actor auth.Identity, adminID int64, filter repository.ActivityFilter) ([]models.AdminActivity, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.reader.ListByAdmin(ctx, adminID, filter)
}

// ListByTarget returns the entries touching one record.
func (s *ActivityService) ListByTarget(ctx context.Context, actor auth.Identity, targetModel string, targetID int64, limit int) ([]models.AdminActivity, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.reader.ListByTarget(ctx, targetModel, targetID, limit)
}

// Recent returns the latest entries across all admins.
func (s *ActivityService) Recent(ctx context.Context, actor auth.Identity, limit int) ([]models.AdminActivity, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	return s.reader.Recent(ctx, limit)
}

func (s *ActivityService) authorize(actor auth.Identity) error {
	if !actor.HasCapability(auth.CapViewActivityLog) {
		return apperr.New(apperr.KindForbidden, "not allowed to view the activity log")
	}
	return nil
}
