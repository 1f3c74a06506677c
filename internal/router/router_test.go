package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-web-search-router/internal/analyzer"
	"github.com/cliffyan/go-web-search-router/internal/engine"
)

type fakeProvider struct {
	name  string
	types []engine.SearchType
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) SupportsSearchType(t engine.SearchType) bool {
	return f.Capabilities().Supports(t)
}
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) ExecuteSearch(context.Context, *engine.SearchParameters) (any, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeProvider) Capabilities() engine.ProviderCapabilities {
	return engine.ProviderCapabilities{SearchTypes: f.types}
}
func (f *fakeProvider) CredentialConfigured() bool { return true }

type fakeLookup struct {
	order     []string
	providers map[string]engine.Provider
}

func newLookup(providers ...*fakeProvider) *fakeLookup {
	l := &fakeLookup{providers: map[string]engine.Provider{}}
	for _, p := range providers {
		l.order = append(l.order, p.name)
		l.providers[p.name] = p
	}
	return l
}

func (l *fakeLookup) Get(name string) (engine.Provider, bool) {
	p, ok := l.providers[name]
	return p, ok
}

func (l *fakeLookup) Available() []string { return l.order }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func standardLookup() *fakeLookup {
	return newLookup(
		&fakeProvider{"duckduckgo", []engine.SearchType{engine.SearchTypeWeb, engine.SearchTypeEducational, engine.SearchTypeResearch, engine.SearchTypeTechCommunity}},
		&fakeProvider{"bing", []engine.SearchType{engine.SearchTypeWeb, engine.SearchTypeNews}},
		&fakeProvider{"wikipedia", []engine.SearchType{engine.SearchTypeEducational, engine.SearchTypeResearch}},
		&fakeProvider{"hackernews", []engine.SearchType{engine.SearchTypeTechCommunity, engine.SearchTypeNews, engine.SearchTypeTrends}},
		&fakeProvider{"tavily", []engine.SearchType{engine.SearchTypeWeb, engine.SearchTypeNews, engine.SearchTypeResearch, engine.SearchTypeEducational, engine.SearchTypeFinancial}},
	)
}

func params(query string, t engine.SearchType, provider string) *engine.SearchParameters {
	return &engine.SearchParameters{Query: query, SearchType: t, Provider: provider}
}

func TestRoute_Explicit(t *testing.T) {
	l := standardLookup()
	r := New(l, analyzer.MustNew())

	d, err := r.Decide(params("Ada Lovelace", engine.SearchTypeEducational, "wikipedia"), l.Available())
	require.NoError(t, err)
	assert.Equal(t, "wikipedia", d.Provider)
	assert.Equal(t, StepExplicit, d.Step)
	assert.Nil(t, d.Analysis)
	assert.Equal(t, 0, r.CacheSize())
}

func TestRoute_ExplicitUnsupportedFallsThrough(t *testing.T) {
	l := standardLookup()
	r := New(l, analyzer.MustNew())

	// wikipedia 不支持 news
	d, err := r.Decide(params("election results", engine.SearchTypeNews, "wikipedia"), l.Available())
	require.NoError(t, err)
	assert.Equal(t, "bing", d.Provider)
	assert.Equal(t, StepPreference, d.Step)
}

func TestRoute_PreferenceOrder(t *testing.T) {
	l := standardLookup()
	r := New(l, analyzer.MustNew())

	tests := []struct {
		t         engine.SearchType
		available []string
		want      string
	}{
		{engine.SearchTypeWeb, l.Available(), "duckduckgo"},
		{engine.SearchTypeWeb, []string{"bing", "tavily"}, "bing"},
		{engine.SearchTypeEducational, l.Available(), "wikipedia"},
		{engine.SearchTypeResearch, l.Available(), "tavily"},
		{engine.SearchTypeTechCommunity, l.Available(), "hackernews"},
		{engine.SearchTypeNews, []string{"hackernews", "tavily"}, "tavily"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.t, tt.available), func(t *testing.T) {
			r.ClearCache()
			got, err := r.Route(params("anything", tt.t, engine.ProviderAuto), tt.available)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoute_AnalysisRecommendation(t *testing.T) {
	l := newLookup(
		&fakeProvider{"alpha", []engine.SearchType{engine.SearchTypeWeb}},
		&fakeProvider{"tavily", []engine.SearchType{engine.SearchTypeWeb, engine.SearchTypeFinancial}},
	)
	r := New(l, analyzer.MustNew(), WithPreferences(map[engine.SearchType][]string{}))

	d, err := r.Decide(params("AAPL stock price today", engine.SearchTypeWeb, engine.ProviderAuto), l.Available())
	require.NoError(t, err)
	assert.Equal(t, "tavily", d.Provider)
	assert.Equal(t, StepAnalysis, d.Step)
	require.NotNil(t, d.Analysis)
	assert.Equal(t, engine.SearchTypeFinancial, d.Analysis.SuggestedSearchType)
}

func TestRoute_FallbackToAny(t *testing.T) {
	l := newLookup(
		&fakeProvider{"alpha", []engine.SearchType{engine.SearchTypeNews}},
		&fakeProvider{"beta", []engine.SearchType{engine.SearchTypeWeb}},
	)
	r := New(l, analyzer.MustNew(), WithPreferences(map[engine.SearchType][]string{}))

	d, err := r.Decide(params("Ada Lovelace", engine.SearchTypeWeb, engine.ProviderAuto), l.Available())
	require.NoError(t, err)
	assert.Equal(t, "beta", d.Provider)
	assert.Equal(t, StepAny, d.Step)
}

func TestRoute_NoProvider(t *testing.T) {
	l := standardLookup()
	r := New(l, analyzer.MustNew())

	_, err := r.Route(params("flights to rome", engine.SearchTypeFlights, engine.ProviderAuto), l.Available())
	require.Error(t, err)
	var unavailable *engine.ProviderUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, engine.SearchTypeFlights, unavailable.SearchType)

	_, err = r.Route(params("q", engine.SearchTypeWeb, engine.ProviderAuto), nil)
	assert.Error(t, err)
}

func TestRoute_CacheHitIsDeterministic(t *testing.T) {
	l := standardLookup()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := New(l, analyzer.MustNew(), WithClock(c.Now))
	p := params("Go Generics", engine.SearchTypeWeb, engine.ProviderAuto)

	first, err := r.Decide(p, l.Available())
	require.NoError(t, err)
	assert.Equal(t, StepPreference, first.Step)

	for i := 0; i < 5; i++ {
		c.now = c.now.Add(time.Minute - time.Second)
		d, err := r.Decide(params("go generics", engine.SearchTypeWeb, engine.ProviderAuto), l.Available())
		require.NoError(t, err)
		assert.Equal(t, first.Provider, d.Provider)
		assert.Equal(t, StepCache, d.Step)
	}
}

func TestRoute_CacheExpires(t *testing.T) {
	l := standardLookup()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := New(l, analyzer.MustNew(), WithClock(c.Now))
	p := params("go generics", engine.SearchTypeWeb, engine.ProviderAuto)

	_, err := r.Decide(p, l.Available())
	require.NoError(t, err)

	c.now = c.now.Add(DefaultCacheTTL)
	d, err := r.Decide(p, l.Available())
	require.NoError(t, err)
	assert.Equal(t, StepPreference, d.Step)
}

func TestRoute_CachedProviderNoLongerAvailable(t *testing.T) {
	l := standardLookup()
	r := New(l, analyzer.MustNew())
	p := params("go generics", engine.SearchTypeWeb, engine.ProviderAuto)

	got, err := r.Route(p, l.Available())
	require.NoError(t, err)
	require.Equal(t, "duckduckgo", got)

	d, err := r.Decide(p, []string{"bing", "tavily"})
	require.NoError(t, err)
	assert.Equal(t, "bing", d.Provider)
	assert.Equal(t, StepPreference, d.Step)
}

func TestRoute_PrunesExpiredEntries(t *testing.T) {
	l := standardLookup()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := New(l, analyzer.MustNew(), WithClock(c.Now))

	for i := 0; i < pruneThreshold; i++ {
		_, err := r.Route(params(fmt.Sprintf("query %d", i), engine.SearchTypeWeb, engine.ProviderAuto), l.Available())
		require.NoError(t, err)
	}
	assert.Equal(t, pruneThreshold, r.CacheSize())

	c.now = c.now.Add(DefaultCacheTTL + time.Second)
	_, err := r.Route(params("fresh query", engine.SearchTypeWeb, engine.ProviderAuto), l.Available())
	require.NoError(t, err)
	assert.Equal(t, 1, r.CacheSize())
}
