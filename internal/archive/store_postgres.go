package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
)

// PostgresStore persists the archive in PostgreSQL. Production
// implementation for deployments where the archive must survive restarts and
// be shared between instances.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgresStore opens a connection pool and ensures the schema exists.
func NewPostgresStore(url string, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing pool; the caller owns its
// lifecycle. Used by integration tests.
func NewPostgresStoreFromDB(db *sql.DB, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS insolvency_cases (
			registry_number TEXT NOT NULL,
			company_name    TEXT NOT NULL DEFAULT '',
			court           TEXT NOT NULL DEFAULT '',
			date_declared   DATE NOT NULL,
			lawyer_name     TEXT NOT NULL DEFAULT '',
			lawyer_firm     TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (registry_number, date_declared)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, c Case) (bool, error) {
	// Empty incoming fields never clobber previously archived values.
	query := `
		INSERT INTO insolvency_cases
			(registry_number, company_name, court, date_declared, lawyer_name, lawyer_firm, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (registry_number, date_declared) DO UPDATE SET
			company_name = COALESCE(NULLIF(EXCLUDED.company_name, ''), insolvency_cases.company_name),
			court        = COALESCE(NULLIF(EXCLUDED.court, ''), insolvency_cases.court),
			lawyer_name  = COALESCE(NULLIF(EXCLUDED.lawyer_name, ''), insolvency_cases.lawyer_name),
			lawyer_firm  = COALESCE(NULLIF(EXCLUDED.lawyer_firm, ''), insolvency_cases.lawyer_firm)
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		c.RegistryNumber, c.CompanyName, c.Court, c.DateDeclared,
		c.LawyerName, c.LawyerFirm, s.clock(),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert case: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT registry_number, company_name, court,
		       to_char(date_declared, 'YYYY-MM-DD'), lawyer_name, lawyer_firm, created_at
		FROM insolvency_cases
		ORDER BY date_declared DESC, registry_number ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent cases: %w", err)
	}
	defer rows.Close()
	return scanCases(rows)
}

func (s *PostgresStore) ByLawyer(ctx context.Context, name string) ([]Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT registry_number, company_name, court,
		       to_char(date_declared, 'YYYY-MM-DD'), lawyer_name, lawyer_firm, created_at
		FROM insolvency_cases
		WHERE lower(lawyer_name) = lower($1)
		ORDER BY date_declared DESC, registry_number ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query cases by lawyer: %w", err)
	}
	defer rows.Close()
	return scanCases(rows)
}

// Health checks the database connection.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanCases(rows *sql.Rows) ([]Case, error) {
	var out []Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(
			&c.RegistryNumber, &c.CompanyName, &c.Court,
			&c.DateDeclared, &c.LawyerName, &c.LawyerFirm, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return out, nil
}
