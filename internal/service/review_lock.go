package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

const defaultReviewLockTTL = 15 * time.Second

// reviewLock serialises review actions on one admission across API replicas.
// The SQL guards stay authoritative; the lock only turns races into early conflicts.
type reviewLock struct {
	locker cache.Locker
	ttl    time.Duration
	logger *zap.Logger
}

func newReviewLock(locker cache.Locker, ttl time.Duration, logger *zap.Logger) reviewLock {
	if locker == nil {
		locker = cache.NopLocker{}
	}
	if ttl <= 0 {
		ttl = defaultReviewLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return reviewLock{locker: locker, ttl: ttl, logger: logger}
}

func (l reviewLock) acquire(ctx context.Context, admissionID string) (func(), error) {
	release, err := l.locker.Obtain(ctx, "admission:"+admissionID, l.ttl)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission is being reviewed by another request")
		}
		l.logger.Warn("review lock unavailable, relying on row guards", zap.String("admission_id", admissionID), zap.Error(err))
		return func() {}, nil
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("failed to release review lock", zap.String("admission_id", admissionID), zap.Error(err))
		}
	}, nil
}
