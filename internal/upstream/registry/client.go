// Package registry wraps the CVR company registry gateway. It resolves a
// registry number (or name) into identity fields plus the company's asset
// positions, normalized into a canonical RawRecord at this boundary.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/platform/config"
	"konkurs/internal/upstream"
)

// assetFields are the canonical asset identifiers the CVR gateway reports.
var assetFields = []string{
	"tangible_assets",
	"fixtures",
	"inventories",
	"vehicles",
	"land_buildings",
}

// Client talks to the CVR registry gateway. Stateless; safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// New constructs a registry client.
func New(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

// companyPayload mirrors the gateway's loosely structured response. Assets
// may arrive nested under "assets" or flat at the top level.
type companyPayload struct {
	CVR    string             `json:"cvr"`
	Name   string             `json:"name"`
	Status string             `json:"status"`
	Assets map[string]float64 `json:"assets"`

	TangibleAssets *float64 `json:"tangible_assets"`
	Fixtures       *float64 `json:"fixtures"`
	Inventories    *float64 `json:"inventories"`
	Vehicles       *float64 `json:"vehicles"`
	LandBuildings  *float64 `json:"land_buildings"`
}

// FetchCompany fetches identity and assets by registry number.
func (c *Client) FetchCompany(ctx context.Context, registryNumber string) (models.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/company/%s", c.baseURL, url.PathEscape(registryNumber))
	return c.fetch(ctx, endpoint, registryNumber)
}

// FetchCompanyByName fetches identity and assets by company name.
func (c *Client) FetchCompanyByName(ctx context.Context, name string) (models.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/company?name=%s", c.baseURL, url.QueryEscape(name))
	return c.fetch(ctx, endpoint, "")
}

func (c *Client) fetch(ctx context.Context, endpoint, fallbackNumber string) (models.RawRecord, error) {
	var payload companyPayload
	if err := upstream.GetJSON(ctx, c.http, endpoint, c.timeout, &payload); err != nil {
		return models.RawRecord{}, err
	}

	rec := models.RawRecord{
		Source:         models.SourceRegistry,
		FetchedAt:      time.Now(),
		RegistryNumber: strings.TrimSpace(payload.CVR),
		CompanyName:    strings.TrimSpace(payload.Name),
		CompanyStatus:  strings.TrimSpace(payload.Status),
		Assets:         normalizeAssets(payload),
	}
	if rec.RegistryNumber == "" {
		rec.RegistryNumber = fallbackNumber
	}

	c.logger.DebugContext(ctx, "registry record fetched",
		"cvr", rec.RegistryNumber,
		"assets", len(rec.Assets),
	)
	return rec, nil
}

// normalizeAssets flattens either payload shape into the canonical asset
// list, sorted by id so downstream merging is order-independent.
func normalizeAssets(payload companyPayload) []models.Asset {
	values := map[string]float64{}
	for _, field := range assetFields {
		if v, ok := payload.Assets[field]; ok {
			values[field] = v
		}
	}
	flat := map[string]*float64{
		"tangible_assets": payload.TangibleAssets,
		"fixtures":        payload.Fixtures,
		"inventories":     payload.Inventories,
		"vehicles":        payload.Vehicles,
		"land_buildings":  payload.LandBuildings,
	}
	for field, v := range flat {
		if v != nil {
			values[field] = *v
		}
	}

	assets := make([]models.Asset, 0, len(values))
	for id, v := range values {
		assets = append(assets, models.Asset{ID: id, Value: v})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets
}
