package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/archive"
	dErrors "konkurs/pkg/domain-errors"
)

type stubAggregator struct {
	profiles []*models.AggregatedProfile
	err      error
	ops      []string
}

func (s *stubAggregator) ListByDate(_ context.Context, date string) ([]*models.AggregatedProfile, error) {
	s.ops = append(s.ops, "list:"+date)
	if s.err != nil {
		return nil, s.err
	}
	return s.profiles, nil
}

func (s *stubAggregator) InvalidateDate(_ context.Context, date string) error {
	s.ops = append(s.ops, "invalidate:"+date)
	return nil
}

func newTestWorker(agg *stubAggregator, store archive.Store) *Worker {
	return New(agg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func profileWithEvent(number, name, date string) *models.AggregatedProfile {
	return &models.AggregatedProfile{
		RegistryNumber: number,
		Name:           name,
		Events: []models.InsolvencyEvent{{
			ID:         number + ":" + date,
			Date:       date,
			Court:      "Retten i Aarhus",
			LawyerName: "Anne Holm",
		}},
	}
}

func TestRunArchivesEveryProfileEvent(t *testing.T) {
	agg := &stubAggregator{profiles: []*models.AggregatedProfile{
		profileWithEvent("DK111", "Foo A/S", "2024-05-01"),
		profileWithEvent("DK222", "Bar ApS", "2024-05-01"),
		{Name: "Nameless Feed Entry"}, // no registry number, not archivable
	}}
	store := archive.NewInMemoryStore()
	w := newTestWorker(agg, store)

	res, err := w.Run(context.Background(), "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01", res.Date)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)

	cases, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "Anne Holm", cases[0].LawyerName)
}

func TestRunCountsRepeatIngestAsUpdates(t *testing.T) {
	agg := &stubAggregator{profiles: []*models.AggregatedProfile{
		profileWithEvent("DK111", "Foo A/S", "2024-05-01"),
	}}
	store := archive.NewInMemoryStore()
	w := newTestWorker(agg, store)

	_, err := w.Run(context.Background(), "2024-05-01")
	require.NoError(t, err)

	res, err := w.Run(context.Background(), "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
}

func TestRunInvalidatesCacheBeforeListing(t *testing.T) {
	agg := &stubAggregator{}
	w := newTestWorker(agg, archive.NewInMemoryStore())

	_, err := w.Run(context.Background(), "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"invalidate:2024-05-01", "list:2024-05-01"}, agg.ops)
}

func TestRunPropagatesAggregationFailure(t *testing.T) {
	agg := &stubAggregator{err: dErrors.New(dErrors.CodeAllSourcesFailed, "feed down")}
	w := newTestWorker(agg, archive.NewInMemoryStore())

	_, err := w.Run(context.Background(), "2024-05-01")
	assert.Equal(t, dErrors.CodeAllSourcesFailed, dErrors.CodeOf(err))
}

func TestNextRun(t *testing.T) {
	w := newTestWorker(&stubAggregator{}, archive.NewInMemoryStore())

	before := time.Date(2024, 5, 1, 4, 30, 0, 0, w.loc)
	next := w.nextRun(before)
	assert.Equal(t, time.Date(2024, 5, 1, runHour, 0, 0, 0, w.loc), next)

	after := time.Date(2024, 5, 1, 9, 0, 0, 0, w.loc)
	next = w.nextRun(after)
	assert.Equal(t, time.Date(2024, 5, 2, runHour, 0, 0, 0, w.loc), next)

	exactly := time.Date(2024, 5, 1, runHour, 0, 0, 0, w.loc)
	assert.True(t, w.nextRun(exactly).After(exactly), "a run at the boundary schedules the next day")
}
