package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

func TestAnalyze_Financial(t *testing.T) {
	a := MustNew()

	got := a.Analyze("AAPL stock price today")

	require.NotEmpty(t, got.Categories)
	assert.Equal(t, "financial", got.Categories[0])
	assert.Greater(t, got.Confidence["financial"], 0.0)
	assert.Equal(t, engine.SearchTypeFinancial, got.SuggestedSearchType)
	assert.Equal(t, []string{"tavily", "serpapi", "bing", "duckduckgo"}, got.PreferredProviders)
	// "today" 同时命中 news，但置信度更低
	assert.Contains(t, got.Categories, "news")
	assert.Less(t, got.Confidence["news"], got.Confidence["financial"])
}

func TestAnalyze_Technical(t *testing.T) {
	a := MustNew()

	got := a.Analyze("python asyncio tutorial")

	require.NotEmpty(t, got.Categories)
	assert.Equal(t, "technical", got.Categories[0])
	assert.Equal(t, engine.SearchTypeTechCommunity, got.SuggestedSearchType)
	assert.Equal(t, "hackernews", got.PreferredProviders[0])
	assert.NotContains(t, got.Categories, "financial")
}

func TestAnalyze_OtherCategories(t *testing.T) {
	a := MustNew()

	tests := []struct {
		query    string
		category string
		want     engine.SearchType
	}{
		{"peer-reviewed research paper on quantum physics", "academic", engine.SearchTypeResearch},
		{"breaking news headlines", "news", engine.SearchTypeNews},
		{"trending viral hot topics", "trends", engine.SearchTypeTrends},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := a.Analyze(tt.query)
			require.NotEmpty(t, got.Categories)
			assert.Equal(t, tt.category, got.Categories[0])
			assert.Equal(t, tt.want, got.SuggestedSearchType)
		})
	}
}

func TestAnalyze_NoMatch(t *testing.T) {
	a := MustNew()

	got := a.Analyze("Ada Lovelace")

	assert.Empty(t, got.Categories)
	assert.Empty(t, got.PreferredProviders)
	assert.Empty(t, got.SuggestedSearchType)
	assert.Empty(t, a.Analyze("   ").Categories)
}

func TestAnalyze_Deterministic(t *testing.T) {
	a := MustNew()
	first := a.Analyze("latest python release news")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Analyze("latest python release news"))
	}
}

func TestAnalyze_TieKeepsDeclarationOrder(t *testing.T) {
	a, err := Load([]byte(`
categories:
  - name: first
    search_type: web
    preferred_providers: [a]
    patterns: ['(?i)\bfoo\b', '(?i)\bnever\b']
  - name: second
    search_type: news
    preferred_providers: [b]
    patterns: ['(?i)\bfoo\b', '(?i)\bnothing\b']
`))
	require.NoError(t, err)

	got := a.Analyze("foo")

	assert.Equal(t, []string{"first", "second"}, got.Categories)
	assert.Equal(t, engine.SearchTypeWeb, got.SuggestedSearchType)
	assert.Equal(t, []string{"a"}, got.PreferredProviders)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        `categories: []`,
		"bad type":     "categories:\n  - name: x\n    search_type: bogus\n    patterns: ['x']\n",
		"bad pattern":  "categories:\n  - name: x\n    search_type: web\n    patterns: ['(']\n",
		"no patterns":  "categories:\n  - name: x\n    search_type: web\n",
		"invalid yaml": "categories: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(data))
			assert.Error(t, err)
		})
	}
}
