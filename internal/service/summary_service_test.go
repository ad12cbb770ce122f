package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type counterStub struct {
	rows  []models.StatusCount
	err   error
	calls int
}

func (c *counterStub) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	c.calls++
	return c.rows, c.err
}

type memoryCache struct {
	entries map[string]interface{}
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]interface{})}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	value, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.AdmissionsSummary)) = *(value.(*models.AdmissionsSummary))
	return nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.entries[key] = value
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	delete(m.entries, pattern)
	return nil
}

func TestSummaryServiceCachesUntilInvalidated(t *testing.T) {
	enquiries := &counterStub{rows: []models.StatusCount{{Status: "ACTIVE", Total: 3}}}
	admissions := &counterStub{rows: []models.StatusCount{{Status: "REGISTERED", Total: 2}, {Status: "APPROVED", Total: 1}}}
	cacheRepo := newMemoryCache()
	svc := NewSummaryService(enquiries, admissions, NewCacheService(cacheRepo, nil, time.Minute, nil, true), time.Minute)
	ctx := context.Background()

	summary, hit, err := svc.Get(ctx)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 3, summary.Enquiries["ACTIVE"])
	require.Equal(t, 1, summary.Admissions["APPROVED"])

	_, hit, err = svc.Get(ctx)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, admissions.calls)

	svc.Invalidate(ctx)
	_, _, err = svc.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, admissions.calls)
	require.Equal(t, []string{summaryCacheKey}, cacheRepo.deleted)
}

func TestSummaryServiceWithoutCache(t *testing.T) {
	enquiries := &counterStub{}
	admissions := &counterStub{err: errors.New("db down")}
	svc := NewSummaryService(enquiries, admissions, nil, 0)

	_, _, err := svc.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, appErrors.CategoryUnknown, appErrors.Classify(err))
}
