package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konkurs/internal/aggregate/cache"
	"konkurs/internal/aggregate/models"
	dErrors "konkurs/pkg/domain-errors"
)

// stubRegistry answers FetchCompany from a per-number record table. The first
// `failures` calls return err; with failures == 0 and err set, every call
// fails.
type stubRegistry struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	delay    time.Duration
	recs     map[string]models.RawRecord
}

func (s *stubRegistry) FetchCompany(_ context.Context, registryNumber string) (models.RawRecord, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil && (s.failures == 0 || s.calls <= s.failures) {
		return models.RawRecord{}, s.err
	}
	rec, ok := s.recs[registryNumber]
	if !ok {
		return models.RawRecord{}, dErrors.New(dErrors.CodeNotFound, "company not found")
	}
	return rec, nil
}

func (s *stubRegistry) FetchCompanyByName(_ context.Context, _ string) (models.RawRecord, error) {
	return models.RawRecord{}, dErrors.New(dErrors.CodeNotFound, "company not found")
}

func (s *stubRegistry) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubFeed struct {
	mu    sync.Mutex
	calls int
	err   error
	recs  []models.RawRecord
}

func (s *stubFeed) FetchByDate(_ context.Context, _ string) ([]models.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.recs, nil
}

func (s *stubFeed) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubLawyer struct {
	mu    sync.Mutex
	calls int
	err   error
	rec   models.RawRecord
}

func (s *stubLawyer) FetchLawyer(_ context.Context, _ string) (models.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return models.RawRecord{}, s.err
	}
	return s.rec, nil
}

func newTestService(t *testing.T, reg *stubRegistry, fd *stubFeed, law *stubLawyer) *Service {
	t.Helper()
	c := cache.NewInMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return New(Deps{
		Registry:        reg,
		Feed:            fd,
		Lawyer:          law,
		Cache:           c,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequestDeadline: 2 * time.Second,
		EntityCacheTTL:  time.Minute,
		DateCacheTTL:    time.Minute,
	})
}

func registryRec(number, name string) models.RawRecord {
	return models.RawRecord{
		Source:         models.SourceRegistry,
		RegistryNumber: number,
		CompanyName:    name,
		CompanyStatus:  "under konkurs",
		Assets:         []models.Asset{{ID: "vehicles", Value: 100000}},
	}
}

func feedRec(number, name, lawyerName string) models.RawRecord {
	return models.RawRecord{
		Source:         models.SourceFeed,
		RegistryNumber: number,
		CompanyName:    name,
		Events: []models.InsolvencyEvent{{
			ID:         number + ":2024-05-01",
			Date:       "2024-05-01",
			Court:      "Retten i Aarhus",
			LawyerName: lawyerName,
		}},
	}
}

func TestLookupEntityRejectsEmptyNumber(t *testing.T) {
	svc := newTestService(t, &stubRegistry{}, &stubFeed{}, &stubLawyer{})

	_, err := svc.LookupEntity(context.Background(), "")
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func TestLookupEntityMergesAllSources(t *testing.T) {
	reg := &stubRegistry{recs: map[string]models.RawRecord{"DK123": registryRec("DK123", "Foo A/S")}}
	fd := &stubFeed{recs: []models.RawRecord{feedRec("DK123", "FOO a/s", "Anne Holm")}}
	law := &stubLawyer{rec: models.RawRecord{
		Source:  models.SourceLawyer,
		Lawyers: []models.Lawyer{{Name: "Anne Holm", Firm: "Holm Advokater", Email: "ah@holm.dk"}},
	}}
	svc := newTestService(t, reg, fd, law)

	p, err := svc.LookupEntity(context.Background(), "DK123")
	require.NoError(t, err)

	assert.Equal(t, "DK123", p.RegistryNumber)
	assert.Equal(t, "Foo A/S", p.Name)
	assert.Equal(t, "under konkurs", p.Status)
	require.Len(t, p.Events, 1)
	require.Len(t, p.Lawyers, 1)
	assert.Equal(t, "Holm Advokater", p.Lawyers[0].Firm)
	assert.Equal(t, map[models.Source]models.Status{
		models.SourceRegistry: models.StatusOK,
		models.SourceFeed:     models.StatusOK,
		models.SourceLawyer:   models.StatusOK,
	}, p.Sources)
}

func TestLookupEntityServesSecondCallFromCache(t *testing.T) {
	reg := &stubRegistry{recs: map[string]models.RawRecord{"DK123": registryRec("DK123", "Foo A/S")}}
	fd := &stubFeed{}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	first, err := svc.LookupEntity(context.Background(), "DK123")
	require.NoError(t, err)
	second, err := svc.LookupEntity(context.Background(), "DK123")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, reg.callCount())
	assert.Equal(t, 1, fd.callCount())
}

func TestLookupEntityPartialWhenFeedTimesOut(t *testing.T) {
	reg := &stubRegistry{recs: map[string]models.RawRecord{"DK123": registryRec("DK123", "Foo A/S")}}
	fd := &stubFeed{err: dErrors.New(dErrors.CodeUpstreamTimeout, "feed timed out")}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	p, err := svc.LookupEntity(context.Background(), "DK123")
	require.NoError(t, err)

	assert.Equal(t, "Foo A/S", p.Name)
	assert.Equal(t, models.StatusTimeout, p.Sources[models.SourceFeed])
	assert.Equal(t, models.StatusOK, p.Sources[models.SourceRegistry])
	assert.Equal(t, 2, fd.callCount(), "timeouts retry exactly once")
}

func TestLookupEntityAllSourcesFailed(t *testing.T) {
	reg := &stubRegistry{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "registry down")}
	fd := &stubFeed{err: dErrors.New(dErrors.CodeUpstreamTimeout, "feed timed out")}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	_, err := svc.LookupEntity(context.Background(), "DK123")
	assert.Equal(t, dErrors.CodeAllSourcesFailed, dErrors.CodeOf(err))

	// A failed aggregation must not be cached.
	got, ok, cacheErr := svc.cache.GetProfile(context.Background(), cache.EntityKey("DK123"))
	require.NoError(t, cacheErr)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestLookupEntityNotFoundWhenNoSourceKnowsTheNumber(t *testing.T) {
	reg := &stubRegistry{recs: map[string]models.RawRecord{}}
	fd := &stubFeed{recs: []models.RawRecord{feedRec("DK999", "Bar ApS", "")}}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	_, err := svc.LookupEntity(context.Background(), "DK123")
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
	assert.Equal(t, 1, reg.callCount(), "not found must not retry")
}

func TestLookupEntityRetriesTransientFailureOnce(t *testing.T) {
	reg := &stubRegistry{
		recs:     map[string]models.RawRecord{"DK123": registryRec("DK123", "Foo A/S")},
		err:      dErrors.New(dErrors.CodeUpstreamUnavailable, "connection refused"),
		failures: 1,
	}
	svc := newTestService(t, reg, &stubFeed{}, &stubLawyer{})

	p, err := svc.LookupEntity(context.Background(), "DK123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, p.Sources[models.SourceRegistry])
	assert.Equal(t, 2, reg.callCount())
}

func TestLookupEntitySingleFlight(t *testing.T) {
	reg := &stubRegistry{
		recs:  map[string]models.RawRecord{"DK123": registryRec("DK123", "Foo A/S")},
		delay: 50 * time.Millisecond,
	}
	fd := &stubFeed{}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	const callers = 8
	profiles := make([]*models.AggregatedProfile, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.LookupEntity(context.Background(), "DK123")
			assert.NoError(t, err)
			profiles[i] = p
		}()
	}
	wg.Wait()
	for i := 0; i < callers; i++ {
		require.NotNil(t, profiles[i])
	}

	assert.Equal(t, 1, reg.callCount(), "concurrent callers must share one fan-out")
	for i := 1; i < callers; i++ {
		assert.Equal(t, profiles[0], profiles[i])
		assert.NotSame(t, profiles[0], profiles[i], "each caller gets its own copy")
	}
}

func TestListByDateRejectsMalformedDate(t *testing.T) {
	svc := newTestService(t, &stubRegistry{}, &stubFeed{}, &stubLawyer{})

	_, err := svc.ListByDate(context.Background(), "01-05-2024")
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func TestListByDateFailsWhenFeedIsDown(t *testing.T) {
	fd := &stubFeed{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "feed down")}
	svc := newTestService(t, &stubRegistry{}, fd, &stubLawyer{})

	_, err := svc.ListByDate(context.Background(), "2024-05-01")
	assert.Equal(t, dErrors.CodeAllSourcesFailed, dErrors.CodeOf(err))
}

func TestListByDateEnrichesEveryEntity(t *testing.T) {
	reg := &stubRegistry{recs: map[string]models.RawRecord{
		"DK111": registryRec("DK111", "Foo A/S"),
		"DK222": registryRec("DK222", "Bar ApS"),
	}}
	fd := &stubFeed{recs: []models.RawRecord{
		feedRec("DK111", "Foo A/S", ""),
		feedRec("DK222", "Bar ApS", ""),
	}}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	profiles, err := svc.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, "DK111", profiles[0].RegistryNumber)
	assert.Equal(t, "DK222", profiles[1].RegistryNumber)
	for _, p := range profiles {
		assert.Equal(t, models.StatusOK, p.Sources[models.SourceRegistry])
		assert.Equal(t, models.StatusOK, p.Sources[models.SourceFeed])
		assert.Equal(t, "under konkurs", p.Status)
	}
	assert.Equal(t, 2, reg.callCount())
}

func TestListByDatePartialWhenRegistryIsDown(t *testing.T) {
	reg := &stubRegistry{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "registry down")}
	fd := &stubFeed{recs: []models.RawRecord{feedRec("DK111", "Foo A/S", "")}}
	svc := newTestService(t, reg, fd, &stubLawyer{})

	profiles, err := svc.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	assert.Equal(t, "Foo A/S", profiles[0].Name)
	assert.Equal(t, models.StatusError, profiles[0].Sources[models.SourceRegistry])
	assert.Equal(t, models.StatusOK, profiles[0].Sources[models.SourceFeed])
}

func TestListByDateServesCopiesFromCache(t *testing.T) {
	fd := &stubFeed{recs: []models.RawRecord{feedRec("DK111", "Foo A/S", "")}}
	svc := newTestService(t, &stubRegistry{recs: map[string]models.RawRecord{"DK111": registryRec("DK111", "Foo A/S")}}, fd, &stubLawyer{})

	first, err := svc.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := svc.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "Foo A/S", second[0].Name)
	assert.Equal(t, 1, fd.callCount())
}

func TestInvalidateDateForcesRefetch(t *testing.T) {
	fd := &stubFeed{recs: []models.RawRecord{feedRec("DK111", "Foo A/S", "")}}
	svc := newTestService(t, &stubRegistry{recs: map[string]models.RawRecord{"DK111": registryRec("DK111", "Foo A/S")}}, fd, &stubLawyer{})

	_, err := svc.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	require.NoError(t, svc.InvalidateDate(context.Background(), "2024-05-01"))
	_, err = svc.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, 2, fd.callCount())
}

func TestLookupLawyer(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		law := &stubLawyer{rec: models.RawRecord{
			Source:  models.SourceLawyer,
			Lawyers: []models.Lawyer{{Name: "Anne Holm", Firm: "Holm Advokater"}},
		}}
		svc := newTestService(t, &stubRegistry{}, &stubFeed{}, law)

		l, err := svc.LookupLawyer(context.Background(), "Anne Holm")
		require.NoError(t, err)
		assert.Equal(t, "Holm Advokater", l.Firm)
	})

	t.Run("not found", func(t *testing.T) {
		law := &stubLawyer{err: dErrors.New(dErrors.CodeNotFound, "no such lawyer")}
		svc := newTestService(t, &stubRegistry{}, &stubFeed{}, law)

		_, err := svc.LookupLawyer(context.Background(), "Nobody")
		assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	t.Run("upstream down", func(t *testing.T) {
		law := &stubLawyer{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "lookup down")}
		svc := newTestService(t, &stubRegistry{}, &stubFeed{}, law)

		_, err := svc.LookupLawyer(context.Background(), "Anne Holm")
		assert.Equal(t, dErrors.CodeUpstreamUnavailable, dErrors.CodeOf(err))
		law.mu.Lock()
		calls := law.calls
		law.mu.Unlock()
		assert.Equal(t, 2, calls)
	})
}
