package service

import (
	"context"
	"time"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

const summaryCacheKey = "summary:pipeline"

type statusCounter interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
}

// SummaryService reports pipeline counts, cached between lifecycle changes.
type SummaryService struct {
	enquiries  statusCounter
	admissions statusCounter
	cache      *CacheService
	ttl        time.Duration
	now        func() time.Time
}

// NewSummaryService constructs the summary service. cache may be nil.
func NewSummaryService(enquiries, admissions statusCounter, cache *CacheService, ttl time.Duration) *SummaryService {
	return &SummaryService{enquiries: enquiries, admissions: admissions, cache: cache, ttl: ttl, now: time.Now}
}

// Get returns counts per status for enquiries and admissions and whether they came from cache.
func (s *SummaryService) Get(ctx context.Context) (*models.AdmissionsSummary, bool, error) {
	var cached models.AdmissionsSummary
	if s.cache.Get(ctx, summaryCacheKey, &cached) {
		return &cached, true, nil
	}

	enquiryCounts, err := s.enquiries.CountByStatus(ctx)
	if err != nil {
		return nil, false, internalError(err, "count enquiries")
	}
	admissionCounts, err := s.admissions.CountByStatus(ctx)
	if err != nil {
		return nil, false, internalError(err, "count admissions")
	}

	summary := &models.AdmissionsSummary{
		Enquiries:   countsByStatus(enquiryCounts),
		Admissions:  countsByStatus(admissionCounts),
		GeneratedAt: s.now().UTC(),
	}
	s.cache.Set(ctx, summaryCacheKey, summary, s.ttl)
	return summary, false, nil
}

// Invalidate drops the cached summary after a committed change.
func (s *SummaryService) Invalidate(ctx context.Context) {
	if s == nil {
		return
	}
	s.cache.Invalidate(ctx, summaryCacheKey)
}

func countsByStatus(rows []models.StatusCount) map[string]int {
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out
}
