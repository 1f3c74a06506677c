package validate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

func fixedClock() func() time.Time {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func requireValidationError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var verr *engine.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
	assert.Equal(t, field, verr.Field)
}

func TestValidate_Defaults(t *testing.T) {
	v := New()

	p, err := v.Validate(map[string]any{"query": "  golang generics  "})
	require.NoError(t, err)

	assert.Equal(t, "golang generics", p.Query)
	assert.Equal(t, engine.ProviderAuto, p.Provider)
	assert.True(t, p.IsAuto())
	assert.Equal(t, engine.SearchTypeWeb, p.SearchType)
	assert.Equal(t, 10, p.MaxResults)
	assert.Equal(t, engine.SafeSearchModerate, p.SafeSearch)
	assert.Equal(t, "en", p.Language)
	assert.Equal(t, "us", p.Region)
	assert.Equal(t, engine.SearchDepthStandard, p.SearchDepth)
	assert.Equal(t, 1, p.Page)
	assert.False(t, p.IncludeImages)
	assert.Nil(t, p.StartDate)
	assert.Nil(t, p.EndDate)
	assert.Nil(t, p.AdditionalParams)
}

func TestValidate_QueryRequired(t *testing.T) {
	v := New()

	_, err := v.Validate(map[string]any{})
	requireValidationError(t, err, "query")

	_, err = v.Validate(map[string]any{"query": "   "})
	requireValidationError(t, err, "query")

	_, err = v.Validate(map[string]any{"query": 42})
	requireValidationError(t, err, "query")
}

func TestValidate_QueryLength(t *testing.T) {
	v := New()

	_, err := v.Validate(map[string]any{"query": strings.Repeat("a", MaxQueryLength)})
	assert.NoError(t, err)

	_, err = v.Validate(map[string]any{"query": strings.Repeat("a", MaxQueryLength+1)})
	requireValidationError(t, err, "query")
}

func TestValidate_MaxResultsBounds(t *testing.T) {
	v := New()

	tests := []struct {
		value any
		ok    bool
	}{
		{1, true},
		{100, true},
		{0, false},
		{101, false},
		{float64(50), true},
		{float64(10.5), false},
		{"25", true},
		{"abc", false},
		{true, false},
	}
	for _, tt := range tests {
		p, err := v.Validate(map[string]any{"query": "q", "maxResults": tt.value})
		if tt.ok {
			require.NoError(t, err, "value %v", tt.value)
			assert.GreaterOrEqual(t, p.MaxResults, 1)
		} else {
			requireValidationError(t, err, "maxResults")
		}
	}
}

func TestValidate_PageBounds(t *testing.T) {
	v := New()

	p, err := v.Validate(map[string]any{"query": "q", "page": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)

	_, err = v.Validate(map[string]any{"query": "q", "page": 0})
	requireValidationError(t, err, "page")
}

func TestValidate_SnakeCaseAndCoercion(t *testing.T) {
	v := New()

	p, err := v.Validate(map[string]any{
		"query":          "rust async",
		"search_type":    "TECH_COMMUNITY",
		"max_results":    "20",
		"safe_search":    "OFF",
		"include_images": "true",
		"search_depth":   "advanced",
		"language":       "DE",
		"region":         "At",
		"provider":       "HackerNews",
	})
	require.NoError(t, err)

	assert.Equal(t, engine.SearchTypeTechCommunity, p.SearchType)
	assert.Equal(t, 20, p.MaxResults)
	assert.Equal(t, engine.SafeSearchOff, p.SafeSearch)
	assert.True(t, p.IncludeImages)
	assert.Equal(t, engine.SearchDepthAdvanced, p.SearchDepth)
	assert.Equal(t, "de", p.Language)
	assert.Equal(t, "at", p.Region)
	assert.Equal(t, "hackernews", p.Provider)
}

func TestValidate_EnumsAndCodes(t *testing.T) {
	v := New()

	tests := map[string]map[string]any{
		"searchType":  {"searchType": "images"},
		"safesearch":  {"safesearch": "strict"},
		"searchDepth": {"searchDepth": "deep"},
		"language":    {"language": "eng"},
		"region":      {"region": "1a"},
	}
	for field, raw := range tests {
		t.Run(field, func(t *testing.T) {
			raw["query"] = "q"
			_, err := v.Validate(raw)
			requireValidationError(t, err, field)
		})
	}
}

func TestValidate_Domains(t *testing.T) {
	v := New()

	p, err := v.Validate(map[string]any{
		"query":          "q",
		"includeDomains": []any{"https://Example.com/", "docs.python.org", "example.com"},
		"excludeDomains": "spam.net, ads.example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "docs.python.org"}, p.IncludeDomains)
	assert.Equal(t, []string{"spam.net", "ads.example.org"}, p.ExcludeDomains)

	_, err = v.Validate(map[string]any{"query": "q", "includeDomains": []string{"not a domain"}})
	requireValidationError(t, err, "includeDomains")

	_, err = v.Validate(map[string]any{"query": "q", "excludeDomains": []any{1}})
	requireValidationError(t, err, "excludeDomains")
}

func TestValidate_DomainCountBoundary(t *testing.T) {
	v := New()

	ten := make([]string, 10)
	for i := range ten {
		ten[i] = string(rune('a'+i)) + "site.com"
	}
	_, err := v.Validate(map[string]any{"query": "q", "includeDomains": ten})
	assert.NoError(t, err)

	eleven := append(ten, "ksite.com")
	_, err = v.Validate(map[string]any{"query": "q", "includeDomains": eleven})
	requireValidationError(t, err, "includeDomains")
}

func TestValidate_DomainOverlap(t *testing.T) {
	v := New()

	_, err := v.Validate(map[string]any{
		"query":          "q",
		"includeDomains": []string{"example.com"},
		"excludeDomains": []string{"http://EXAMPLE.com"},
	})
	requireValidationError(t, err, "includeDomains")
}

func TestValidate_Dates(t *testing.T) {
	v := New(WithClock(fixedClock()))

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"2024-03-05T10:30:00Z", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"2024-03-05T10:30:00", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"2024-03-05 10:30:00", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"03/05/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"25/12/2024", time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := v.Validate(map[string]any{"query": "q", "startDate": tt.input})
			require.NoError(t, err)
			require.NotNil(t, p.StartDate)
			assert.True(t, tt.want.Equal(*p.StartDate), "got %s", p.StartDate)
		})
	}

	_, err := v.Validate(map[string]any{"query": "q", "endDate": "not-a-date"})
	requireValidationError(t, err, "endDate")
}

func TestValidate_DateOrder(t *testing.T) {
	v := New(WithClock(fixedClock()))

	_, err := v.Validate(map[string]any{"query": "q", "startDate": "2024-02-01", "endDate": "2024-01-01"})
	requireValidationError(t, err, "startDate")

	p, err := v.Validate(map[string]any{"query": "q", "startDate": "2024-01-01", "endDate": "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, *p.StartDate, *p.EndDate)
}

func TestValidate_FutureDates(t *testing.T) {
	v := New(WithClock(fixedClock()))

	_, err := v.Validate(map[string]any{"query": "q", "searchType": "news", "endDate": "2025-07-01"})
	requireValidationError(t, err, "endDate")

	_, err = v.Validate(map[string]any{"query": "q", "searchType": "trends", "startDate": "2025-06-16"})
	requireValidationError(t, err, "startDate")

	// 其他类型允许未来日期，例如活动搜索
	_, err = v.Validate(map[string]any{"query": "q", "searchType": "events", "startDate": "2025-07-01"})
	assert.NoError(t, err)
}

func TestValidate_AdditionalParams(t *testing.T) {
	v := New()

	p, err := v.Validate(map[string]any{
		"query":        "concerts",
		"searchType":   "events",
		"location":     "Austin",
		"departure_id": "AUS",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"location": "Austin", "departure_id": "AUS"}, p.AdditionalParams)
	assert.Equal(t, "Austin", p.Additional("location"))
}

func TestValidate_CanonicalKeyWins(t *testing.T) {
	v := New()

	for i := 0; i < 20; i++ {
		p, err := v.Validate(map[string]any{"query": "q", "maxResults": 5, "max_results": 50})
		require.NoError(t, err)
		assert.Equal(t, 5, p.MaxResults)
	}
}
