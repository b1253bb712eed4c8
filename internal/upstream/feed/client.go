// Package feed wraps the Statstidende insolvency-announcement scraper. A
// fetch returns one RawRecord per announced entity for the requested date.
// Feed identity data is partial and noisy; the resolver sorts that out.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/platform/config"
	"konkurs/internal/upstream"
	dErrors "konkurs/pkg/domain-errors"
)

// Client talks to the Statstidende scraper. Stateless; safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// New constructs a feed client.
func New(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

type feedItem struct {
	ID           string `json:"id"`
	CVR          string `json:"cvr"`
	CompanyName  string `json:"company_name"`
	Court        string `json:"court"`
	DateDeclared string `json:"date_declared"`
	LawyerName   string `json:"lawyer_name"`
	LawyerFirm   string `json:"lawyer_firm"`
}

// FetchByDate returns the insolvency announcements for one date
// (YYYY-MM-DD). A date with no announcements yields an empty slice, which is
// distinct from an upstream failure.
func (c *Client) FetchByDate(ctx context.Context, date string) ([]models.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/insolvencies/today?date=%s", c.baseURL, url.QueryEscape(date))

	var payload json.RawMessage
	if err := upstream.GetJSON(ctx, c.http, endpoint, c.timeout, &payload); err != nil {
		// The scraper answers 404 for dates without an issue; that is an
		// empty day, not a failure.
		if dErrors.CodeOf(err) == dErrors.CodeNotFound {
			return []models.RawRecord{}, nil
		}
		return nil, err
	}

	items, err := decodeItems(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "malformed feed response")
	}

	now := time.Now()
	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		rec, ok := c.normalize(ctx, item, date, now)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeItems accepts either a bare list or a wrapper object; the scraper
// has shipped all of "insolvencies", "results", and "data" over time.
func decodeItems(payload json.RawMessage) ([]feedItem, error) {
	var items []feedItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, err
	}
	for _, key := range []string{"insolvencies", "results", "data"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []feedItem{}, nil
}

func (c *Client) normalize(ctx context.Context, item feedItem, requestDate string, fetchedAt time.Time) (models.RawRecord, bool) {
	date := requestDate
	if item.DateDeclared != "" {
		parsed, err := upstream.ParseDate(item.DateDeclared)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping feed item with unparseable date",
				"cvr", item.CVR,
				"date", item.DateDeclared,
			)
			return models.RawRecord{}, false
		}
		date = parsed
	}

	eventID := strings.TrimSpace(item.ID)
	if eventID == "" {
		// The scraper does not always assign ids; (cvr, date) identifies an
		// announcement the same way the archive does.
		switch {
		case item.CVR != "":
			eventID = item.CVR + ":" + date
		case item.CompanyName != "":
			eventID = strings.ToLower(strings.Join(strings.Fields(item.CompanyName), "-")) + ":" + date
		default:
			c.logger.WarnContext(ctx, "skipping feed item without identity", "date", date)
			return models.RawRecord{}, false
		}
	}

	rec := models.RawRecord{
		Source:         models.SourceFeed,
		FetchedAt:      fetchedAt,
		RegistryNumber: strings.TrimSpace(item.CVR),
		CompanyName:    strings.TrimSpace(item.CompanyName),
		Events: []models.InsolvencyEvent{{
			ID:         eventID,
			Date:       date,
			Court:      strings.TrimSpace(item.Court),
			LawyerName: strings.TrimSpace(item.LawyerName),
			LawyerFirm: strings.TrimSpace(item.LawyerFirm),
		}},
	}
	if item.LawyerName != "" {
		rec.Lawyers = []models.Lawyer{{
			Name: strings.TrimSpace(item.LawyerName),
			Firm: strings.TrimSpace(item.LawyerFirm),
		}}
	}
	return rec, true
}
