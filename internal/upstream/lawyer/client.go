// Package lawyer wraps the Advokatnøglen lookup service, which resolves a
// lawyer name into contact details.
package lawyer

import (
	"context"
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

// Client talks to the lawyer lookup service. Stateless; safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// New constructs a lawyer lookup client.
func New(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

type lawyerPayload struct {
	Name    string `json:"name"`
	Firm    string `json:"firm"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
}

// FetchLawyer looks up one lawyer by name. Returns not_found when the
// service has no match.
func (c *Client) FetchLawyer(ctx context.Context, name string) (models.RawRecord, error) {
	if strings.TrimSpace(name) == "" {
		return models.RawRecord{}, dErrors.New(dErrors.CodeBadRequest, "lawyer name must not be empty")
	}
	endpoint := fmt.Sprintf("%s/lawyer?name=%s", c.baseURL, url.QueryEscape(name))

	var payload lawyerPayload
	if err := upstream.GetJSON(ctx, c.http, endpoint, c.timeout, &payload); err != nil {
		return models.RawRecord{}, err
	}
	if payload.Name == "" {
		// The service answers 200 with an empty object for unknown names.
		return models.RawRecord{}, dErrors.New(dErrors.CodeNotFound, "lawyer not found")
	}

	c.logger.DebugContext(ctx, "lawyer record fetched", "name", payload.Name)
	return models.RawRecord{
		Source:    models.SourceLawyer,
		FetchedAt: time.Now(),
		Lawyers: []models.Lawyer{{
			Name:    strings.TrimSpace(payload.Name),
			Firm:    strings.TrimSpace(payload.Firm),
			Address: strings.TrimSpace(payload.Address),
			Email:   strings.TrimSpace(payload.Email),
			Phone:   strings.TrimSpace(payload.Phone),
			Website: strings.TrimSpace(payload.Website),
		}},
	}, nil
}
