// Package workers runs the background loops of the node: the retry queue,
// contact refreshes and the sweep of abandoned delivery tasks.
package workers

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// process makes one pass through the requests matching the scope, calling fn for each one.
// If fn returns an error, the request is updated with the error and the process continues.
// If fn returns nil, the request is deleted. process returns the number of
// requests which succeeded and failed.
func process[T any](db *gorm.DB, scope func(*gorm.DB) *gorm.DB, fn func(*gorm.DB, T) error) (done, failed int, err error) {
	var requests []T
	err = db.Scopes(scope).FindInBatches(&requests, 100, func(db *gorm.DB, batch int) error {
		return forEach(requests, func(request T) error {
			start := time.Now()
			if err := fn(db, request); err != nil {
				failed++
				return db.Model(request).UpdateColumns(map[string]interface{}{
					"attempts":     gorm.Expr("attempts + 1"),
					"last_attempt": start,
					"last_result":  err.Error(),
					"updated_at":   start,
				}).Error
			}
			done++
			return db.Delete(request).Error
		})
	}).Error
	return done, failed, err
}

func forEach[T any](a []T, fn func(T) error) error {
	for _, v := range a {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// every calls fn immediately and then each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	for {
		if err := fn(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
			// continue
		}
	}
}
