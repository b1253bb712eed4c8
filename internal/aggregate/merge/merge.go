// Package merge combines the RawRecords of one resolved entity into a single
// AggregatedProfile under deterministic field-precedence rules.
package merge

import (
	"sort"
	"strconv"
	"strings"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/aggregate/resolver"
)

// Merge applies the field precedence rules to one entity group:
//
//   - identity (name, status): registry wins, feed is fallback
//   - assets: union by id, latest fetch wins on conflicting valuation
//   - events: union by id, feed is the system of record on conflicts
//   - lawyers: union by name, case-insensitive, field-wise enrichment
//
// The result is independent of the arrival order of records: records are
// sorted by (source, fetch time) before the rules run. Detected conflicts are
// attached to the profile, never returned as errors.
func Merge(group resolver.Group) *models.AggregatedProfile {
	records := append([]models.RawRecord(nil), group.Records...)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Source != records[j].Source {
			return records[i].Source < records[j].Source
		}
		return records[i].FetchedAt.Before(records[j].FetchedAt)
	})

	p := &models.AggregatedProfile{
		RegistryNumber: group.Key.RegistryNumber,
		Assets:         []models.Asset{},
		Events:         []models.InsolvencyEvent{},
		Lawyers:        []models.Lawyer{},
		Sources:        map[models.Source]models.Status{},
		Conflicts:      append([]models.Conflict(nil), group.Conflicts...),
	}

	mergeIdentity(p, records)
	mergeAssets(p, records)
	mergeEvents(p, records)
	mergeLawyers(p, records)

	return p
}

// mergeIdentity picks name and status with registry precedence and records a
// conflict whenever a lower-precedence source disagreed.
func mergeIdentity(p *models.AggregatedProfile, records []models.RawRecord) {
	precedence := func(s models.Source) int {
		switch s {
		case models.SourceRegistry:
			return 2
		case models.SourceFeed:
			return 1
		default:
			return 0
		}
	}

	var nameSrc, statusSrc int = -1, -1
	for _, rec := range records {
		rank := precedence(rec.Source)
		if rec.RegistryNumber != "" && p.RegistryNumber == "" {
			p.RegistryNumber = rec.RegistryNumber
		}
		if rec.CompanyName != "" {
			switch {
			case nameSrc < 0 || rank > nameSrc:
				if p.Name != "" && !sameName(p.Name, rec.CompanyName) {
					p.Conflicts = append(p.Conflicts, models.Conflict{
						Field: "name", Kept: rec.CompanyName, Discarded: p.Name, Source: rec.Source,
					})
				}
				p.Name = rec.CompanyName
				nameSrc = rank
			case rank < nameSrc && !sameName(p.Name, rec.CompanyName):
				p.Conflicts = append(p.Conflicts, models.Conflict{
					Field: "name", Kept: p.Name, Discarded: rec.CompanyName, Source: rec.Source,
				})
			}
		}
		if rec.CompanyStatus != "" {
			switch {
			case statusSrc < 0 || rank > statusSrc:
				if p.Status != "" && p.Status != rec.CompanyStatus {
					p.Conflicts = append(p.Conflicts, models.Conflict{
						Field: "status", Kept: rec.CompanyStatus, Discarded: p.Status, Source: rec.Source,
					})
				}
				p.Status = rec.CompanyStatus
				statusSrc = rank
			case rank < statusSrc && p.Status != rec.CompanyStatus:
				// The feed is authoritative for events only, not status.
				p.Conflicts = append(p.Conflicts, models.Conflict{
					Field: "status", Kept: p.Status, Discarded: rec.CompanyStatus, Source: rec.Source,
				})
			}
		}
	}
}

func sameName(a, b string) bool {
	return resolver.NormalizeName(a) == resolver.NormalizeName(b)
}

type assetPick struct {
	asset models.Asset
	rec   models.RawRecord
}

// mergeAssets unions assets by id; on conflicting valuations the most
// recently fetched record wins.
func mergeAssets(p *models.AggregatedProfile, records []models.RawRecord) {
	picks := map[string]assetPick{}
	for _, rec := range records {
		for _, a := range rec.Assets {
			prev, ok := picks[a.ID]
			if !ok {
				picks[a.ID] = assetPick{asset: a, rec: rec}
				continue
			}
			if prev.asset.Value == a.Value {
				continue
			}
			if rec.FetchedAt.After(prev.rec.FetchedAt) {
				p.Conflicts = append(p.Conflicts, models.Conflict{
					Field:     "asset:" + a.ID,
					Kept:      formatValue(a.Value),
					Discarded: formatValue(prev.asset.Value),
					Source:    rec.Source,
				})
				picks[a.ID] = assetPick{asset: a, rec: rec}
			} else {
				p.Conflicts = append(p.Conflicts, models.Conflict{
					Field:     "asset:" + a.ID,
					Kept:      formatValue(prev.asset.Value),
					Discarded: formatValue(a.Value),
					Source:    rec.Source,
				})
			}
		}
	}

	for _, pick := range picks {
		p.Assets = append(p.Assets, pick.asset)
	}
	sort.Slice(p.Assets, func(i, j int) bool { return p.Assets[i].ID < p.Assets[j].ID })
}

type eventPick struct {
	event models.InsolvencyEvent
	rec   models.RawRecord
}

// mergeEvents unions events by id. Exact duplicates collapse silently; on a
// field disagreement the feed value is kept, since the feed is the system of
// record for insolvency events.
func mergeEvents(p *models.AggregatedProfile, records []models.RawRecord) {
	picks := map[string]eventPick{}
	for _, rec := range records {
		for _, e := range rec.Events {
			prev, ok := picks[e.ID]
			if !ok {
				picks[e.ID] = eventPick{event: e, rec: rec}
				continue
			}
			if prev.event == e {
				continue
			}
			keepNew := false
			switch {
			case rec.Source == models.SourceFeed && prev.rec.Source != models.SourceFeed:
				keepNew = true
			case rec.Source == prev.rec.Source:
				keepNew = rec.FetchedAt.After(prev.rec.FetchedAt)
			}
			kept, discarded := prev.event, e
			if keepNew {
				kept, discarded = e, prev.event
				picks[e.ID] = eventPick{event: e, rec: rec}
			}
			p.Conflicts = append(p.Conflicts, models.Conflict{
				Field:     "event:" + e.ID,
				Kept:      kept.Date,
				Discarded: discarded.Date,
				Source:    rec.Source,
			})
		}
	}

	for _, pick := range picks {
		p.Events = append(p.Events, pick.event)
	}
	sort.Slice(p.Events, func(i, j int) bool {
		if p.Events[i].Date != p.Events[j].Date {
			return p.Events[i].Date < p.Events[j].Date
		}
		return p.Events[i].ID < p.Events[j].ID
	})
}

// mergeLawyers unions lawyer associations case-insensitively by name and
// fills missing contact fields from later records, so a bare feed mention and
// a rich lookup record collapse into one entry.
func mergeLawyers(p *models.AggregatedProfile, records []models.RawRecord) {
	byName := map[string]*models.Lawyer{}
	var names []string
	for _, rec := range records {
		for _, l := range rec.Lawyers {
			if strings.TrimSpace(l.Name) == "" {
				continue
			}
			key := strings.ToLower(strings.Join(strings.Fields(l.Name), " "))
			existing, ok := byName[key]
			if !ok {
				cp := l
				byName[key] = &cp
				names = append(names, key)
				continue
			}
			fillLawyer(existing, l)
		}
	}

	sort.Strings(names)
	for _, key := range names {
		p.Lawyers = append(p.Lawyers, *byName[key])
	}
}

func fillLawyer(dst *models.Lawyer, src models.Lawyer) {
	if dst.Firm == "" {
		dst.Firm = src.Firm
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Website == "" {
		dst.Website = src.Website
	}
}

// formatValue renders a DKK amount for conflict annotations.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
