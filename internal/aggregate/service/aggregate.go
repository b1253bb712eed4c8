package service

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"konkurs/internal/aggregate/cache"
	"konkurs/internal/aggregate/merge"
	"konkurs/internal/aggregate/models"
	"konkurs/internal/aggregate/resolver"
	dErrors "konkurs/pkg/domain-errors"
)

// enrichmentParallelism bounds the per-entity registry/lawyer fan-out when a
// daily listing resolves many entities at once.
const enrichmentParallelism = 8

// aggregateEntity runs the full pipeline for one registry number: parallel
// registry + feed fetch, resolve, lawyer enrichment, merge, cache write.
// Fails only when no source can produce identity data.
func (s *Service) aggregateEntity(ctx context.Context, registryNumber string) (*models.AggregatedProfile, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAggregateLatency(time.Since(start)) }()

	var (
		regRec     models.RawRecord
		regStatus  models.Status
		feedRecs   []models.RawRecord
		feedStatus models.Status
	)

	// Independent network calls, no data dependency: fan out. Failures are
	// absorbed into statuses, never propagated through the group.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		regRec, regStatus = fetchWithRetry(s, gctx, models.SourceRegistry, func(ctx context.Context) (models.RawRecord, error) {
			return s.registry.FetchCompany(ctx, registryNumber)
		})
		return nil
	})
	g.Go(func() error {
		today := time.Now().Format("2006-01-02")
		feedRecs, feedStatus = fetchWithRetry(s, gctx, models.SourceFeed, func(ctx context.Context) ([]models.RawRecord, error) {
			return s.feed.FetchByDate(ctx, today)
		})
		return nil
	})
	_ = g.Wait()

	statuses := map[models.Source]models.Status{
		models.SourceRegistry: regStatus,
		models.SourceFeed:     feedStatus,
		models.SourceLawyer:   models.StatusSkipped,
	}

	if failed(regStatus) && failed(feedStatus) {
		s.metrics.IncrementAggregation("entity", "failed")
		return nil, dErrors.Newf(dErrors.CodeAllSourcesFailed, "no upstream source responded for entity %s", registryNumber)
	}

	var records []models.RawRecord
	if regStatus == models.StatusOK {
		records = append(records, regRec)
	}
	if feedStatus == models.StatusOK {
		records = append(records, feedRecs...)
	}

	group := findEntityGroup(resolver.Resolve(records), registryNumber)
	if group == nil {
		s.metrics.IncrementAggregation("entity", "not_found")
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no data available for entity %s", registryNumber)
	}

	// Lawyer lookup is relevant only once feed data names a lawyer.
	if names := lawyerNames(*group); len(names) > 0 {
		statuses[models.SourceLawyer] = s.enrichLawyers(ctx, group, names)
	}

	profile := merge.Merge(*group)
	profile.Sources = statuses
	if profile.RegistryNumber == "" {
		profile.RegistryNumber = registryNumber
	}
	s.metrics.AddMergeConflicts(len(profile.Conflicts))

	result := "ok"
	if failed(regStatus) || failed(feedStatus) || failed(statuses[models.SourceLawyer]) {
		result = "partial"
	}
	s.metrics.IncrementAggregation("entity", result)

	key := cache.EntityKey(registryNumber)
	if err := s.cache.PutProfile(ctx, key, profile, s.entityTTL); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}

	s.logger.InfoContext(ctx, "entity aggregated",
		"cvr", registryNumber,
		"result", result,
		"events", len(profile.Events),
		"conflicts", len(profile.Conflicts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return profile, nil
}

// aggregateDate runs the pipeline for one day's announcements: the feed
// defines the entity set, then registry and lawyer enrichment fan out per
// resolved entity.
func (s *Service) aggregateDate(ctx context.Context, date string) ([]*models.AggregatedProfile, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAggregateLatency(time.Since(start)) }()

	feedRecs, feedStatus := fetchWithRetry(s, ctx, models.SourceFeed, func(ctx context.Context) ([]models.RawRecord, error) {
		return s.feed.FetchByDate(ctx, date)
	})
	if failed(feedStatus) {
		// The feed is the only source that knows which entities a day has;
		// without it there is nothing to enrich.
		s.metrics.IncrementAggregation("date", "failed")
		return nil, dErrors.Newf(dErrors.CodeAllSourcesFailed, "insolvency feed unavailable for %s", date)
	}

	groups := resolver.Resolve(feedRecs)
	profiles := make([]*models.AggregatedProfile, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichmentParallelism)
	for i := range groups {
		g.Go(func() error {
			profiles[i] = s.enrichAndMerge(gctx, &groups[i])
			return nil
		})
	}
	_ = g.Wait()

	result := "ok"
	for _, p := range profiles {
		if anyFailed(p.Sources) {
			result = "partial"
			break
		}
	}
	s.metrics.IncrementAggregation("date", result)

	key := cache.DateKey(date)
	if err := s.cache.PutListing(ctx, key, profiles, s.dateTTL); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}

	s.logger.InfoContext(ctx, "date aggregated",
		"date", date,
		"entities", len(profiles),
		"result", result,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return profiles, nil
}

// enrichAndMerge completes one feed-resolved entity with registry identity
// and lawyer details, then merges.
func (s *Service) enrichAndMerge(ctx context.Context, group *resolver.Group) *models.AggregatedProfile {
	statuses := map[models.Source]models.Status{
		models.SourceFeed:     models.StatusOK,
		models.SourceRegistry: models.StatusSkipped,
		models.SourceLawyer:   models.StatusSkipped,
	}

	if number := group.Key.RegistryNumber; number != "" {
		rec, status := fetchWithRetry(s, ctx, models.SourceRegistry, func(ctx context.Context) (models.RawRecord, error) {
			return s.registry.FetchCompany(ctx, number)
		})
		statuses[models.SourceRegistry] = status
		if status == models.StatusOK {
			group.Records = append(group.Records, rec)
		}
	}

	if names := lawyerNames(*group); len(names) > 0 {
		statuses[models.SourceLawyer] = s.enrichLawyers(ctx, group, names)
	}

	profile := merge.Merge(*group)
	profile.Sources = statuses
	s.metrics.AddMergeConflicts(len(profile.Conflicts))
	return profile
}

// enrichLawyers fetches details for each lawyer name attached to the
// entity's events and appends the records to the group. The reported status
// is ok when any lookup succeeded; lookups that merely found nothing do not
// count as failures.
func (s *Service) enrichLawyers(ctx context.Context, group *resolver.Group, names []string) models.Status {
	status := models.StatusNotFound
	for _, name := range names {
		rec, st := fetchWithRetry(s, ctx, models.SourceLawyer, func(ctx context.Context) (models.RawRecord, error) {
			return s.lawyer.FetchLawyer(ctx, name)
		})
		switch st {
		case models.StatusOK:
			group.Records = append(group.Records, rec)
			status = models.StatusOK
		case models.StatusTimeout, models.StatusError:
			if status != models.StatusOK {
				status = st
			}
		}
	}
	return status
}

// fetchWithRetry invokes one upstream call, observing latency and outcome,
// and retries exactly once on timeout or transient upstream failure. Not
// found never retries. The retry shares the caller's remaining deadline.
func fetchWithRetry[T any](s *Service, ctx context.Context, source models.Source, fn func(context.Context) (T, error)) (T, models.Status) {
	val, status := fetchOnce(s, ctx, source, fn)
	if (status == models.StatusTimeout || status == models.StatusError) && ctx.Err() == nil {
		s.metrics.IncrementRetry(string(source))
		s.logger.DebugContext(ctx, "retrying upstream call", "source", source)
		val, status = fetchOnce(s, ctx, source, fn)
	}
	s.metrics.IncrementSourceOutcome(string(source), string(status))
	return val, status
}

func fetchOnce[T any](s *Service, ctx context.Context, source models.Source, fn func(context.Context) (T, error)) (T, models.Status) {
	start := time.Now()
	val, err := fn(ctx)
	s.metrics.ObserveFetch(string(source), time.Since(start))

	if err == nil {
		return val, models.StatusOK
	}

	var status models.Status
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound:
		status = models.StatusNotFound
	case dErrors.CodeUpstreamTimeout:
		status = models.StatusTimeout
	default:
		status = models.StatusError
	}
	if status != models.StatusNotFound {
		s.logger.WarnContext(ctx, "upstream call failed",
			"source", source,
			"status", status,
			"error", err,
		)
	}
	return val, status
}

// findEntityGroup picks the resolved group for the requested registry
// number.
func findEntityGroup(groups []resolver.Group, registryNumber string) *resolver.Group {
	for i := range groups {
		if groups[i].Key.RegistryNumber == registryNumber {
			return &groups[i]
		}
	}
	return nil
}

// lawyerNames collects the distinct lawyer names the group's events mention.
func lawyerNames(group resolver.Group) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, rec := range group.Records {
		for _, e := range rec.Events {
			if e.LawyerName == "" {
				continue
			}
			if _, ok := seen[e.LawyerName]; ok {
				continue
			}
			seen[e.LawyerName] = struct{}{}
			names = append(names, e.LawyerName)
		}
	}
	sort.Strings(names)
	return names
}

func failed(status models.Status) bool {
	return status == models.StatusTimeout || status == models.StatusError
}

func anyFailed(statuses map[models.Source]models.Status) bool {
	for _, st := range statuses {
		if failed(st) {
			return true
		}
	}
	return false
}
