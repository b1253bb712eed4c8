package lawyer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/platform/config"
	dErrors "konkurs/pkg/domain-errors"
)

func newTestClient(baseURL string) *Client {
	return New(
		config.UpstreamConfig{BaseURL: baseURL, Timeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestFetchLawyer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lawyer", r.URL.Path)
		assert.Equal(t, "Anne Holm", r.URL.Query().Get("name"))
		w.Write([]byte(`{
			"name": "Anne Holm",
			"firm": "Holm Advokater",
			"address": "Åboulevarden 1, 8000 Aarhus C",
			"email": "ah@holm.dk",
			"phone": "+45 11 22 33 44",
			"website": "https://holm.dk"
		}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(srv.URL).FetchLawyer(context.Background(), "Anne Holm")
	require.NoError(t, err)

	assert.Equal(t, models.SourceLawyer, rec.Source)
	require.Len(t, rec.Lawyers, 1)
	assert.Equal(t, models.Lawyer{
		Name:    "Anne Holm",
		Firm:    "Holm Advokater",
		Address: "Åboulevarden 1, 8000 Aarhus C",
		Email:   "ah@holm.dk",
		Phone:   "+45 11 22 33 44",
		Website: "https://holm.dk",
	}, rec.Lawyers[0])
}

func TestFetchLawyerEmptyObjectIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLawyer(context.Background(), "Nobody")
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func TestFetchLawyerEmptyNameIsRejectedLocally(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLawyer(context.Background(), "   ")
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	assert.Zero(t, hits)
}

func TestFetchLawyerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchLawyer(context.Background(), "Anne Holm")
	assert.Equal(t, dErrors.CodeUpstreamUnavailable, dErrors.CodeOf(err))
}
