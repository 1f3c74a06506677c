package standardize

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type lookupFunc func(name string) (engine.Provider, bool)

func (f lookupFunc) Get(name string) (engine.Provider, bool) { return f(name) }

type stubProvider struct {
	name    string
	convert func(payload any) ([]engine.SearchResult, error)
}

func (p *stubProvider) Name() string                              { return p.name }
func (p *stubProvider) SupportsSearchType(engine.SearchType) bool { return true }
func (p *stubProvider) IsAvailable() bool                         { return true }
func (p *stubProvider) Capabilities() engine.ProviderCapabilities { return engine.ProviderCapabilities{} }
func (p *stubProvider) CredentialConfigured() bool                { return true }
func (p *stubProvider) ExecuteSearch(context.Context, *engine.SearchParameters) (any, error) {
	return nil, nil
}

type convertingProvider struct {
	stubProvider
}

func (p *convertingProvider) StandardizeRaw(payload any) ([]engine.SearchResult, error) {
	return p.convert(payload)
}

type pagedPayload struct {
	Items []map[string]any `json:"items"`
}

func (p *pagedPayload) Pagination() (int, int, int) { return 42, 2, 5 }

func newStandardizer(providers ...engine.Provider) *Standardizer {
	byName := map[string]engine.Provider{}
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return New(lookupFunc(func(name string) (engine.Provider, bool) {
		p, ok := byName[name]
		return p, ok
	}), WithClock(func() time.Time { return testNow }))
}

func TestGeneric_ListPayload(t *testing.T) {
	raw := []any{
		map[string]any{
			"name":        "Go",
			"href":        "https://go.dev/",
			"description": "The Go programming language",
			"stars":       float64(120000),
		},
		"not an object",
		map[string]any{"unrelated": true},
	}

	results, err := Generic(raw, "custom", testNow)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "Go", r.Title)
	assert.Equal(t, "https://go.dev/", r.URL)
	assert.Equal(t, "The Go programming language", r.Snippet)
	assert.Equal(t, "go.dev", r.Source)
	assert.Equal(t, float64(120000), r.Metadata["stars"])
	assert.Equal(t, raw[0], r.Metadata["original"])
	assert.NotContains(t, r.Metadata, "name")
}

func TestGeneric_WrappedPayloads(t *testing.T) {
	for _, key := range []string{"results", "items", "data", "hits", "articles"} {
		t.Run(key, func(t *testing.T) {
			raw := map[string]any{key: []any{
				map[string]any{"headline": "Title", "link": "https://example.com/a", "body": "text"},
			}}
			results, err := Generic(raw, "custom", testNow)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "Title", results[0].Title)
			assert.Equal(t, "text", results[0].Snippet)
		})
	}
}

func TestGeneric_NestedAndStructPayloads(t *testing.T) {
	nested := map[string]any{"data": map[string]any{"results": []any{
		map[string]any{"title": "Nested", "url": "https://example.org"},
	}}}
	results, err := Generic(nested, "custom", testNow)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Nested", results[0].Title)

	typed := &pagedPayload{Items: []map[string]any{{"title": "Typed", "url": "https://example.net", "score": 0.5}}}
	results, err = Generic(typed, "custom", testNow)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Score)
	assert.Equal(t, 0.5, *results[0].Score)

	data, _ := json.Marshal(map[string]any{"hits": []any{map[string]any{"title": "Bytes"}}})
	results, err = Generic(data, "custom", testNow)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Bytes", results[0].Title)
}

func TestGeneric_Dates(t *testing.T) {
	raw := []any{
		map[string]any{"title": "a", "date": "2024-03-05T10:00:00Z"},
		map[string]any{"title": "b", "published": "3 days ago"},
		map[string]any{"title": "c", "timestamp": float64(1700000000)},
		map[string]any{"title": "d", "date": "sometime"},
	}

	results, err := Generic(raw, "custom", testNow)
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.NotNil(t, results[0].PublishedDate)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), results[0].PublishedDate.UTC())
	require.NotNil(t, results[1].PublishedDate)
	assert.Equal(t, testNow.AddDate(0, 0, -3), *results[1].PublishedDate)
	require.NotNil(t, results[2].PublishedDate)
	assert.Equal(t, int64(1700000000), results[2].PublishedDate.Unix())
	assert.Nil(t, results[3].PublishedDate)
	assert.Equal(t, "sometime", results[3].Metadata["date"])
}

func TestGeneric_UnrecognizedShape(t *testing.T) {
	_, err := Generic(map[string]any{"weird": 1}, "custom", testNow)
	var serr *engine.StandardizationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "custom", serr.Provider)
}

func TestStandardize_GenericPreservesCanonicalFields(t *testing.T) {
	s := newStandardizer()
	raw := map[string]any{"results": []any{
		map[string]any{"title": "T", "url": "https://u.example", "snippet": "S", "extra": "keep"},
	}}

	resp := s.Standardize(raw, "unknown", engine.SearchTypeWeb, "q", 1500*time.Millisecond)

	require.True(t, resp.Success)
	assert.Equal(t, "unknown", resp.EngineUsed)
	assert.Equal(t, engine.SearchTypeWeb, resp.SearchType)
	assert.Equal(t, "q", resp.Query)
	assert.InDelta(t, 1.5, resp.ExecutionTime, 1e-9)
	assert.Equal(t, "generic", resp.Metadata["converter"])
	require.Len(t, resp.Results, 1)

	data, err := json.Marshal(resp.Results[0])
	require.NoError(t, err)
	var back engine.SearchResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "T", back.Title)
	assert.Equal(t, "https://u.example", back.URL)
	assert.Equal(t, "S", back.Snippet)
	assert.Equal(t, "keep", back.Metadata["extra"])
}

func TestStandardize_ProviderConverter(t *testing.T) {
	p := &convertingProvider{stubProvider{name: "custom"}}
	p.convert = func(payload any) ([]engine.SearchResult, error) {
		return []engine.SearchResult{{Title: "from provider"}}, nil
	}
	s := newStandardizer(p)

	resp := s.Standardize(&pagedPayload{}, "custom", engine.SearchTypeNews, "q", time.Second)

	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "from provider", resp.Results[0].Title)
	assert.Equal(t, "custom", resp.Metadata["converter"])
	require.NotNil(t, resp.TotalResults)
	assert.Equal(t, 42, *resp.TotalResults)
	assert.Equal(t, 2, *resp.Page)
	assert.Equal(t, 5, *resp.PagesAvailable)
}

func TestStandardize_ProviderWithoutConverterUsesGeneric(t *testing.T) {
	s := newStandardizer(&stubProvider{name: "plain"})

	resp := s.Standardize([]any{map[string]any{"title": "x"}}, "plain", engine.SearchTypeWeb, "q", 0)

	require.True(t, resp.Success)
	assert.Equal(t, "generic", resp.Metadata["converter"])
}

func TestStandardize_NeverFails(t *testing.T) {
	p := &convertingProvider{stubProvider{name: "boom"}}
	p.convert = func(payload any) ([]engine.SearchResult, error) {
		panic("converter bug")
	}
	s := newStandardizer(p)

	resp := s.Standardize("ignored", "boom", engine.SearchTypeWeb, "q", time.Second)

	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "StandardizationError", resp.Error.Type)
	assert.Equal(t, engine.CategoryParsing, resp.Error.Category)
	assert.Equal(t, "boom", resp.Error.Engine)
	assert.Empty(t, resp.Results)
}

func TestTryStandardize_WrapsErrors(t *testing.T) {
	p := &convertingProvider{stubProvider{name: "bad"}}
	p.convert = func(payload any) ([]engine.SearchResult, error) {
		return nil, errors.New("missing field")
	}
	s := newStandardizer(p)

	resp, err := s.TryStandardize(nil, "bad", engine.SearchTypeWeb, "q", 0)

	assert.Nil(t, resp)
	var serr *engine.StandardizationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "bad", serr.Provider)
	assert.Contains(t, err.Error(), "missing field")
}
