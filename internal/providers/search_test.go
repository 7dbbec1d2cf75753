package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartdesk/internal/config"
	"smartdesk/internal/core"
	"smartdesk/internal/secrets"
)

func newTestSearch(t *testing.T, endpoint string) *Search {
	t.Helper()
	t.Setenv("SERPER_API_KEY", "test-key")
	sec, err := secrets.NewStore("")
	require.NoError(t, err)

	s, err := NewSearch(config.SearchConfig{
		Endpoint:       endpoint,
		MaxResults:     5,
		TimeoutSeconds: 5,
	}, sec)
	require.NoError(t, err)
	return s
}

func TestNewSearchRequiresAPIKey(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "")
	sec, err := secrets.NewStore("")
	require.NoError(t, err)

	_, err = NewSearch(config.SearchConfig{}, sec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERPER_API_KEY")
	assert.NotContains(t, err.Error(), "test-key")
}

func TestSearchQueryParsesOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{
			"organic": [
				{"title": "Go Blog", "snippet": "Go 1.25 is released.", "link": "https://go.dev/blog"},
				{"title": "No link", "snippet": "dropped"},
				{"title": "Docs", "snippet": "The release notes.", "link": "https://go.dev/doc"}
			]
		}`))
	}))
	defer srv.Close()

	s := newTestSearch(t, srv.URL)
	res, err := s.Query(context.Background(), "go release")
	require.NoError(t, err)

	assert.Equal(t, "go release", res.Query)
	require.Len(t, res.Claims, 2, "results without a link are dropped")
	assert.Equal(t, "Go 1.25 is released.", res.Claims[0].Text)
	assert.Equal(t, "Go Blog", res.Claims[0].SourceTitle)
	assert.Equal(t, "https://go.dev/blog", res.Claims[0].SourceURL)
}

func TestSearchQueryKnowledgeGraphLeads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"knowledgeGraph": {"title": "Go", "description": "An open-source language.", "website": "https://go.dev"},
			"organic": [{"title": "Wiki", "snippet": "Designed at Google.", "link": "https://example.com"}]
		}`))
	}))
	defer srv.Close()

	s := newTestSearch(t, srv.URL)
	res, err := s.Query(context.Background(), "golang")
	require.NoError(t, err)

	require.Len(t, res.Claims, 2)
	assert.Equal(t, "An open-source language.", res.Claims[0].Text)
	assert.Equal(t, "https://go.dev", res.Claims[0].SourceURL)
}

func TestSearchQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := newTestSearch(t, srv.URL)
	_, err := s.Query(context.Background(), "q")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestSearchQueryEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := newTestSearch(t, srv.URL)
	res, err := s.Query(context.Background(), "obscure")
	require.NoError(t, err)
	assert.Empty(t, res.Claims)
}
