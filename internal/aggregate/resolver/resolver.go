// Package resolver groups RawRecords from different sources into per-entity
// groups. Pure and synchronous; the orchestrator feeds it already-fetched
// data only.
package resolver

import (
	"sort"
	"strings"

	"konkurs/internal/aggregate/models"
)

// legalSuffixes are Danish legal-form suffixes ignored when matching company
// names across sources.
var legalSuffixes = map[string]struct{}{
	"a/s": {}, "as": {}, "aps": {}, "i/s": {}, "k/s": {}, "ivs": {},
	"p/s": {}, "g/s": {}, "smba": {}, "amba": {}, "fmba": {},
}

// Group is one resolved entity with the records that describe it.
type Group struct {
	Key     models.EntityKey
	Records []models.RawRecord
	// Conflicts carries resolution annotations such as ambiguous name
	// matches. Copied onto the merged profile for observability.
	Conflicts []models.Conflict
}

// NormalizeName canonicalizes a company name for matching: case fold,
// punctuation strip, whitespace collapse, legal-form suffix strip.
func NormalizeName(name string) string {
	lowered := strings.ToLower(name)

	var b strings.Builder
	for _, r := range lowered {
		switch r {
		case '.', ',', '"', '\'', '(', ')':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	tokens := strings.Fields(b.String())
	for len(tokens) > 1 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// KeyFor derives the entity key for a single record.
func KeyFor(rec models.RawRecord) models.EntityKey {
	return models.EntityKey{
		RegistryNumber: strings.TrimSpace(rec.RegistryNumber),
		NormalizedName: NormalizeName(rec.CompanyName),
	}
}

// Resolve partitions records into entity groups.
//
// Records carrying a registry number group by exact number match; that match
// always wins. Records without a number fall back to normalized-name matching
// against groups already resolved in the same batch. A name that matches more
// than one registry-numbered group is ambiguous: the record stays a singleton
// and the candidate groups get an ambiguity annotation, favoring precision
// over recall. Unmatched records form singleton groups pending later
// enrichment.
func Resolve(records []models.RawRecord) []Group {
	// Sort first so grouping is independent of arrival order.
	sorted := append([]models.RawRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Source != sorted[j].Source {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].FetchedAt.Before(sorted[j].FetchedAt)
	})

	byNumber := make(map[string]*Group)
	byName := make(map[string]*Group)
	var order []*Group

	addGroup := func(key models.EntityKey, rec models.RawRecord) *Group {
		g := &Group{Key: key, Records: []models.RawRecord{rec}}
		order = append(order, g)
		return g
	}

	// First pass: exact registry-number grouping.
	var nameless []models.RawRecord
	for _, rec := range sorted {
		key := KeyFor(rec)
		if key.RegistryNumber == "" {
			nameless = append(nameless, rec)
			continue
		}
		if g, ok := byNumber[key.RegistryNumber]; ok {
			g.Records = append(g.Records, rec)
			if g.Key.NormalizedName == "" {
				g.Key.NormalizedName = key.NormalizedName
			}
			continue
		}
		g := addGroup(key, rec)
		byNumber[key.RegistryNumber] = g
	}

	// A normalized name shared by two different registry numbers is never a
	// merge candidate; drop it from name lookup entirely.
	nameCandidates := make(map[string][]*Group)
	for _, g := range order {
		if g.Key.NormalizedName != "" {
			nameCandidates[g.Key.NormalizedName] = append(nameCandidates[g.Key.NormalizedName], g)
		}
	}

	// Second pass: normalized-name fallback for number-less records.
	ambiguous := make(map[string]*Group)
	for _, rec := range nameless {
		name := NormalizeName(rec.CompanyName)
		if name == "" {
			// Nothing to match on; keep the record as its own group so it is
			// not silently dropped.
			addGroup(models.EntityKey{}, rec)
			continue
		}

		candidates := nameCandidates[name]
		switch len(candidates) {
		case 1:
			candidates[0].Records = append(candidates[0].Records, rec)
			continue
		case 0:
			if g, ok := byName[name]; ok {
				g.Records = append(g.Records, rec)
				continue
			}
			g := addGroup(models.EntityKey{NormalizedName: name}, rec)
			byName[name] = g
			continue
		}

		// Ambiguous: same name resolves to multiple registry numbers. The
		// record joins no numbered group; equally ambiguous records with the
		// same name share one group so keys stay unique within the batch.
		if g, ok := ambiguous[name]; ok {
			g.Records = append(g.Records, rec)
			continue
		}
		g := addGroup(models.EntityKey{NormalizedName: name}, rec)
		g.Conflicts = append(g.Conflicts, models.Conflict{
			Field:     "entity_match",
			Kept:      name,
			Discarded: "ambiguous registry-number candidates",
			Source:    rec.Source,
		})
		ambiguous[name] = g
	}

	// Deterministic output order.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Key.String() < order[j].Key.String()
	})

	out := make([]Group, 0, len(order))
	for _, g := range order {
		out = append(out, *g)
	}
	return out
}
