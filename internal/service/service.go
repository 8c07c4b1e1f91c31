package service

import (
	"context"
	"errors"

	"electra/internal/apperr"
	"electra/internal/repository"
)

// maxUpdateRetries bounds the re-read/re-apply loop for conditional
// writes that lose to concurrent updates.
const maxUpdateRetries = 3

// retryOnConflict runs fn until it stops losing version races, up to
// maxUpdateRetries attempts. fn must re-read its row on every attempt.
func retryOnConflict(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
	}
	return apperr.Wrap(apperr.KindConflict, "record was modified concurrently, please retry", err)
}
