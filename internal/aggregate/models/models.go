// Package models holds the canonical domain records shared by the upstream
// clients, resolver, merge engine, and cache. Upstream payloads are
// normalized into these shapes at the client boundary; nothing untyped
// crosses into the aggregation core.
package models

import (
	"strings"
	"time"
)

// Source identifies one upstream data source.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceFeed     Source = "feed"
	SourceLawyer   Source = "lawyer"
)

// Status is the per-source outcome of one aggregation.
type Status string

const (
	StatusOK       Status = "ok"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusNotFound Status = "not_found"
	// StatusSkipped marks a source that was not relevant to the request.
	StatusSkipped Status = "skipped"
)

// Asset is one company asset position. Values are DKK.
type Asset struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// InsolvencyEvent is a dated announcement that an entity entered an
// insolvency proceeding. Date is canonical YYYY-MM-DD.
type InsolvencyEvent struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	Court      string `json:"court,omitempty"`
	LawyerName string `json:"lawyer_name,omitempty"`
	LawyerFirm string `json:"lawyer_firm,omitempty"`
}

// Lawyer is one lawyer association.
type Lawyer struct {
	Name    string `json:"name"`
	Firm    string `json:"firm,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// RawRecord is the source-tagged canonical payload from one upstream call.
// Immutable once fetched; owned by the aggregation run that fetched it.
type RawRecord struct {
	Source         Source
	FetchedAt      time.Time
	RegistryNumber string
	CompanyName    string
	CompanyStatus  string
	Assets         []Asset
	Events         []InsolvencyEvent
	Lawyers        []Lawyer
}

// EntityKey is the canonical identifier for a legal entity: registry number
// when known, normalized name otherwise. Stable and comparable.
type EntityKey struct {
	RegistryNumber string
	NormalizedName string
}

// String renders a stable cache/grouping key. Registry number dominates so
// two keys with the same number compare equal regardless of name spelling.
func (k EntityKey) String() string {
	if k.RegistryNumber != "" {
		return "cvr:" + k.RegistryNumber
	}
	return "name:" + k.NormalizedName
}

// Conflict records one field-level disagreement detected during merge or
// resolution. Observability only; never surfaced as an error.
type Conflict struct {
	Field     string `json:"field"`
	Kept      string `json:"kept"`
	Discarded string `json:"discarded"`
	Source    Source `json:"source"`
}

// AggregatedProfile is the merged view of one entity. The only long-lived
// artifact of an aggregation; owned by the cache once stored.
type AggregatedProfile struct {
	RegistryNumber string            `json:"registry_number,omitempty"`
	Name           string            `json:"name,omitempty"`
	Status         string            `json:"status,omitempty"`
	Assets         []Asset           `json:"assets"`
	Events         []InsolvencyEvent `json:"events"`
	Lawyers        []Lawyer          `json:"lawyers"`
	Sources        map[Source]Status `json:"source_status"`
	Conflicts      []Conflict        `json:"conflicts,omitempty"`
}

// Key derives the profile's entity key.
func (p *AggregatedProfile) Key() EntityKey {
	return EntityKey{
		RegistryNumber: p.RegistryNumber,
		NormalizedName: strings.ToLower(strings.Join(strings.Fields(p.Name), " ")),
	}
}

// Clone returns a deep copy so cache readers never share mutable state with
// the stored profile.
func (p *AggregatedProfile) Clone() *AggregatedProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Assets = append([]Asset(nil), p.Assets...)
	out.Events = append([]InsolvencyEvent(nil), p.Events...)
	out.Lawyers = append([]Lawyer(nil), p.Lawyers...)
	out.Conflicts = append([]Conflict(nil), p.Conflicts...)
	out.Sources = make(map[Source]Status, len(p.Sources))
	for s, st := range p.Sources {
		out.Sources[s] = st
	}
	return &out
}

// HasIdentity reports whether any source contributed identity data. A
// profile without identity is indistinguishable from "no data" and must not
// be served as a real entity.
func (p *AggregatedProfile) HasIdentity() bool {
	return p.RegistryNumber != "" || p.Name != ""
}
