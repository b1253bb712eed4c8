// Package service implements the aggregation orchestrator. It fans out to
// the upstream clients, applies the retry and partial-failure policy, runs
// resolve/merge over whatever arrived, and owns the cache interaction
// including single-flight coordination per key.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"konkurs/internal/aggregate/cache"
	"konkurs/internal/aggregate/metrics"
	"konkurs/internal/aggregate/models"
	dErrors "konkurs/pkg/domain-errors"
)

// RegistryClient is the port to the CVR registry gateway.
type RegistryClient interface {
	FetchCompany(ctx context.Context, registryNumber string) (models.RawRecord, error)
	FetchCompanyByName(ctx context.Context, name string) (models.RawRecord, error)
}

// FeedClient is the port to the insolvency-announcement scraper.
type FeedClient interface {
	FetchByDate(ctx context.Context, date string) ([]models.RawRecord, error)
}

// LawyerClient is the port to the lawyer lookup service.
type LawyerClient interface {
	FetchLawyer(ctx context.Context, name string) (models.RawRecord, error)
}

// Deps bundles the orchestrator's collaborators and tuning knobs.
type Deps struct {
	Registry RegistryClient
	Feed     FeedClient
	Lawyer   LawyerClient
	Cache    cache.ProfileCache
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// RequestDeadline bounds one aggregation including retries.
	RequestDeadline time.Duration
	EntityCacheTTL  time.Duration
	DateCacheTTL    time.Duration
}

// Service is the aggregation orchestrator. Safe for concurrent use.
type Service struct {
	registry RegistryClient
	feed     FeedClient
	lawyer   LawyerClient
	cache    cache.ProfileCache
	logger   *slog.Logger
	metrics  *metrics.Metrics

	deadline  time.Duration
	entityTTL time.Duration
	dateTTL   time.Duration

	flight singleflight.Group
}

// New constructs the orchestrator.
func New(deps Deps) *Service {
	return &Service{
		registry:  deps.Registry,
		feed:      deps.Feed,
		lawyer:    deps.Lawyer,
		cache:     deps.Cache,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		deadline:  deps.RequestDeadline,
		entityTTL: deps.EntityCacheTTL,
		dateTTL:   deps.DateCacheTTL,
	}
}

// LookupEntity returns the aggregated profile for one registry number.
// Concurrent callers for the same uncached key share a single upstream
// fan-out; each caller receives its own copy of the result.
func (s *Service) LookupEntity(ctx context.Context, registryNumber string) (*models.AggregatedProfile, error) {
	if registryNumber == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "registry number must not be empty")
	}
	key := cache.EntityKey(registryNumber)

	if profile, ok, err := s.cache.GetProfile(ctx, key); err == nil && ok {
		s.metrics.IncrementCacheLookup("entity", "hit")
		return profile, nil
	} else if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	s.metrics.IncrementCacheLookup("entity", "miss")

	profile, err := s.inFlight(ctx, key, func(ctx context.Context) (*models.AggregatedProfile, error) {
		// Another flight may have populated the cache while we queued.
		if cached, ok, err := s.cache.GetProfile(ctx, key); err == nil && ok {
			return cached, nil
		}
		return s.aggregateEntity(ctx, registryNumber)
	})
	if err != nil {
		return nil, err
	}
	return profile.Clone(), nil
}

// ListByDate returns the aggregated profiles for one day's insolvency
// announcements. date is canonical YYYY-MM-DD.
func (s *Service) ListByDate(ctx context.Context, date string) ([]*models.AggregatedProfile, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "date must be YYYY-MM-DD")
	}
	key := cache.DateKey(date)

	if listing, ok, err := s.cache.GetListing(ctx, key); err == nil && ok {
		s.metrics.IncrementCacheLookup("date", "hit")
		return listing, nil
	} else if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	s.metrics.IncrementCacheLookup("date", "miss")

	v, err, _ := s.flight.Do(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deadline)
		defer cancel()
		if cached, ok, err := s.cache.GetListing(flightCtx, key); err == nil && ok {
			return cached, nil
		}
		return s.aggregateDate(flightCtx, date)
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamTimeout, "request canceled")
	}

	listing := v.([]*models.AggregatedProfile)
	out := make([]*models.AggregatedProfile, len(listing))
	for i, p := range listing {
		out[i] = p.Clone()
	}
	return out, nil
}

// InvalidateDate drops the cached listing for a date. Used by ingestion when
// a newer feed pull supersedes the cached day.
func (s *Service) InvalidateDate(ctx context.Context, date string) error {
	return s.cache.Invalidate(ctx, cache.DateKey(date))
}

// LookupLawyer returns the lawyer's details from the lookup service.
func (s *Service) LookupLawyer(ctx context.Context, name string) (models.Lawyer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	rec, status := fetchWithRetry(s, ctx, models.SourceLawyer, func(ctx context.Context) (models.RawRecord, error) {
		return s.lawyer.FetchLawyer(ctx, name)
	})
	switch status {
	case models.StatusOK:
		if len(rec.Lawyers) == 0 {
			return models.Lawyer{}, dErrors.New(dErrors.CodeNotFound, "lawyer not found")
		}
		return rec.Lawyers[0], nil
	case models.StatusNotFound:
		return models.Lawyer{}, dErrors.New(dErrors.CodeNotFound, "lawyer not found")
	case models.StatusTimeout:
		return models.Lawyer{}, dErrors.New(dErrors.CodeUpstreamTimeout, "lawyer lookup timed out")
	default:
		return models.Lawyer{}, dErrors.New(dErrors.CodeUpstreamUnavailable, "lawyer lookup failed")
	}
}

// inFlight routes an entity aggregation through the single-flight group. The
// shared computation is detached from the first caller's cancellation so one
// impatient client cannot fail everyone else; each waiter still honors its
// own context.
func (s *Service) inFlight(ctx context.Context, key string, fn func(context.Context) (*models.AggregatedProfile, error)) (*models.AggregatedProfile, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deadline)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.AggregatedProfile), nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUpstreamTimeout, "request canceled")
	}
}
