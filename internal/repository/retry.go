package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/servineo/servineo-api/internal/apperr"
)

// retryRead runs a gateway read query and retries it exactly once, with no
// backoff, when the first attempt fails transiently. Only reads go through
// here; writes are never replayed.
func retryRead[T any](ctx context.Context, query func(context.Context) (T, error)) (T, error) {
	out, err := query(ctx)
	if err == nil || !transientReadError(ctx, err) {
		return out, err
	}
	return query(ctx)
}

// transientReadError reports whether a failed read is worth one more attempt.
// Classified domain errors, missing rows and dead contexts are final.
func transientReadError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return apperr.KindOf(err) == apperr.KindUnknown
}
