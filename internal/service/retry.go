package service

import (
	"context"
	"errors"

	"stayfinder/internal/database"
	"stayfinder/internal/domain"
)

// readWithRetry runs a storage read and repeats it once on a transient failure.
// Writes never go through here: a blind retry could insert twice.
func readWithRetry[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	v, err := read(ctx)
	if err == nil || !transient(err) || ctx.Err() != nil {
		return v, err
	}
	return read(ctx)
}

func transient(err error) bool {
	if errors.Is(err, database.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	_, rejected := domain.AsRejection(err)
	return !rejected
}
