// Package archive persists ingested insolvency cases so recent-case and
// lawyer-case queries are served without upstream calls. Cases are unique by
// (registry number, declared date); a re-ingest of the same day updates in
// place.
package archive

import (
	"context"
	"time"
)

// Case is one archived insolvency proceeding.
type Case struct {
	RegistryNumber string    `json:"registry_number"`
	CompanyName    string    `json:"company_name"`
	Court          string    `json:"court,omitempty"`
	DateDeclared   string    `json:"date_declared"`
	LawyerName     string    `json:"lawyer_name,omitempty"`
	LawyerFirm     string    `json:"lawyer_firm,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the archive contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upsert inserts the case or refreshes its mutable fields. Reports
	// whether a new row was created.
	Upsert(ctx context.Context, c Case) (created bool, err error)

	// Recent returns up to limit cases, newest declared date first.
	Recent(ctx context.Context, limit int) ([]Case, error)

	// ByLawyer returns the cases associated with a lawyer name,
	// case-insensitively, newest first.
	ByLawyer(ctx context.Context, name string) ([]Case, error)

	// Close releases the store's resources.
	Close() error
}
