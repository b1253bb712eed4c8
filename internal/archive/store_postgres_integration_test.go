//go:build integration

package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konkurs/pkg/testutil/containers"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	pc := containers.NewPostgresContainer(t)
	s, err := NewPostgresStore(pc.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func truncate(t *testing.T, s *PostgresStore) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(), "TRUNCATE insolvency_cases")
	require.NoError(t, err)
}

func TestPostgresStoreIntegration(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	t.Run("upsert creates then updates", func(t *testing.T) {
		truncate(t, s)

		created, err := s.Upsert(ctx, Case{
			RegistryNumber: "DK123",
			CompanyName:    "Foo A/S",
			DateDeclared:   "2024-05-01",
		})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.Upsert(ctx, Case{
			RegistryNumber: "DK123",
			DateDeclared:   "2024-05-01",
			Court:          "Retten i Aarhus",
			LawyerName:     "Anne Holm",
		})
		require.NoError(t, err)
		assert.False(t, created)

		cases, err := s.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, cases, 1)
		assert.Equal(t, "Foo A/S", cases[0].CompanyName, "empty update fields keep archived values")
		assert.Equal(t, "Retten i Aarhus", cases[0].Court)
		assert.Equal(t, "Anne Holm", cases[0].LawyerName)
		assert.Equal(t, "2024-05-01", cases[0].DateDeclared)
	})

	t.Run("recent orders newest first and limits", func(t *testing.T) {
		truncate(t, s)

		for _, c := range []Case{
			{RegistryNumber: "DK222", DateDeclared: "2024-05-01"},
			{RegistryNumber: "DK111", DateDeclared: "2024-05-01"},
			{RegistryNumber: "DK333", DateDeclared: "2024-05-03"},
			{RegistryNumber: "DK444", DateDeclared: "2024-05-02"},
		} {
			_, err := s.Upsert(ctx, c)
			require.NoError(t, err)
		}

		cases, err := s.Recent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, cases, 3)
		assert.Equal(t, "DK333", cases[0].RegistryNumber)
		assert.Equal(t, "DK444", cases[1].RegistryNumber)
		assert.Equal(t, "DK111", cases[2].RegistryNumber)
	})

	t.Run("by lawyer is case-insensitive", func(t *testing.T) {
		truncate(t, s)

		for _, c := range []Case{
			{RegistryNumber: "DK111", DateDeclared: "2024-05-01", LawyerName: "Anne Holm"},
			{RegistryNumber: "DK222", DateDeclared: "2024-05-02", LawyerName: "ANNE HOLM"},
			{RegistryNumber: "DK333", DateDeclared: "2024-05-03", LawyerName: "Peter Byg"},
		} {
			_, err := s.Upsert(ctx, c)
			require.NoError(t, err)
		}

		cases, err := s.ByLawyer(ctx, "anne holm")
		require.NoError(t, err)
		require.Len(t, cases, 2)
		assert.Equal(t, "DK222", cases[0].RegistryNumber)

		cases, err = s.ByLawyer(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, cases)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, s.Health(ctx))
	})
}
