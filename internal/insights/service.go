package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/logging"
)

// Source loads every stored lead.
type Source interface {
	ScanAll(ctx context.Context) ([]*domain.Lead, error)
}

// Service serves summaries from the cache, recomputing on a miss.
// Cache failures are logged and fall through to a fresh computation.
type Service struct {
	src   Source
	cache Cache
	log   logging.Logger
	now   func() time.Time
}

// NewService wires a summary service. A nil cache disables caching.
func NewService(src Source, cache Cache, log logging.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Service{src: src, cache: cache, log: log, now: time.Now}
}

// Summary returns the dashboard summary. refresh bypasses the cache.
// cached reports whether the result came from the cache.
func (s *Service) Summary(ctx context.Context, refresh bool) (sum *Summary, cached bool, err error) {
	if !refresh {
		sum, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.WithField("error", err.Error()).Warn("summary cache read failed")
		} else if ok {
			return sum, true, nil
		}
	}

	leads, err := s.src.ScanAll(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load leads: %w", err)
	}
	sum = Compute(leads, s.now())
	if err := s.cache.Set(ctx, sum); err != nil {
		s.log.WithField("error", err.Error()).Warn("summary cache write failed")
	}
	return sum, false, nil
}

// Invalidate drops the cached summary.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithField("error", err.Error()).Warn("summary cache invalidation failed")
	}
}
