// Package ingest runs the daily insolvency pull: aggregate the day, archive
// the cases, and invalidate the day's cache entry so readers see the fresh
// data. One run per day at 06:00 Copenhagen time, plus manual triggers via
// the admin endpoint.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/archive"
)

const runHour = 6 // local hour of the scheduled daily run

// Aggregator is the slice of the orchestrator the worker needs.
type Aggregator interface {
	ListByDate(ctx context.Context, date string) ([]*models.AggregatedProfile, error)
	InvalidateDate(ctx context.Context, date string) error
}

// Result summarizes one ingestion run.
type Result struct {
	Date    string `json:"date"`
	Fetched int    `json:"fetched"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
}

// Worker is the daily ingestion loop. Construct with New, then Start; Stop
// blocks until the loop exits.
type Worker struct {
	agg    Aggregator
	store  archive.Store
	logger *slog.Logger
	loc    *time.Location

	stop chan struct{}
	done chan struct{}
}

// New constructs the worker. Scheduling follows Europe/Copenhagen; if the
// zone database is unavailable the worker falls back to UTC.
func New(agg Aggregator, store archive.Store, logger *slog.Logger) *Worker {
	loc, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		logger.Warn("timezone load failed, scheduling in UTC", "error", err)
		loc = time.UTC
	}
	return &Worker{
		agg:    agg,
		store:  store,
		logger: logger,
		loc:    loc,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the loop: one run immediately, then daily at the scheduled
// hour.
func (w *Worker) Start() {
	go w.loop()
}

// Stop signals the loop and waits for it to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)

	w.runToday()
	for {
		timer := time.NewTimer(time.Until(w.nextRun(time.Now().In(w.loc))))
		select {
		case <-w.stop:
			timer.Stop()
			return
		case <-timer.C:
			w.runToday()
		}
	}
}

func (w *Worker) runToday() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	date := time.Now().In(w.loc).Format("2006-01-02")
	if _, err := w.Run(ctx, date); err != nil {
		w.logger.ErrorContext(ctx, "scheduled ingestion failed", "date", date, "error", err)
	}
}

// nextRun computes the next scheduled run strictly after now.
func (w *Worker) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), runHour, 0, 0, 0, w.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run ingests one date: invalidate the cached day first so the aggregation
// is a fresh pull, then archive every event of every returned profile.
func (w *Worker) Run(ctx context.Context, date string) (Result, error) {
	start := time.Now()
	res := Result{Date: date}

	if err := w.agg.InvalidateDate(ctx, date); err != nil {
		w.logger.WarnContext(ctx, "cache invalidation failed", "date", date, "error", err)
	}

	profiles, err := w.agg.ListByDate(ctx, date)
	if err != nil {
		return res, err
	}
	res.Fetched = len(profiles)

	for _, p := range profiles {
		for _, c := range casesFrom(p) {
			created, err := w.store.Upsert(ctx, c)
			if err != nil {
				w.logger.ErrorContext(ctx, "archive upsert failed",
					"cvr", c.RegistryNumber,
					"date", c.DateDeclared,
					"error", err,
				)
				continue
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
	}

	w.logger.InfoContext(ctx, "ingestion completed",
		"date", date,
		"fetched", res.Fetched,
		"created", res.Created,
		"updated", res.Updated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// casesFrom flattens a profile's events into archive cases. Profiles
// without a registry number are skipped; the archive key requires one.
func casesFrom(p *models.AggregatedProfile) []archive.Case {
	if p.RegistryNumber == "" {
		return nil
	}
	out := make([]archive.Case, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, archive.Case{
			RegistryNumber: p.RegistryNumber,
			CompanyName:    p.Name,
			Court:          e.Court,
			DateDeclared:   e.Date,
			LawyerName:     e.LawyerName,
			LawyerFirm:     e.LawyerFirm,
		})
	}
	return out
}
