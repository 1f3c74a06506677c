package failover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  engine.ErrorCategory
		severity  engine.Severity
		retryable bool
	}{
		{"validation", &engine.ValidationError{Field: "query", Message: "required"}, engine.CategoryValidation, engine.SeverityLow, false},
		{"deadline", context.DeadlineExceeded, engine.CategoryTimeout, engine.SeverityMedium, true},
		{"cancelled", fmt.Errorf("request: %w", context.Canceled), engine.CategoryTimeout, engine.SeverityMedium, true},
		{"http 401", engine.NewProviderError("tavily", http.StatusUnauthorized, errors.New("bad key")), engine.CategoryAuthentication, engine.SeverityHigh, false},
		{"http 429", engine.NewProviderError("bing", http.StatusTooManyRequests, errors.New("slow down")), engine.CategoryRateLimit, engine.SeverityMedium, true},
		{"http 503", engine.NewProviderError("bing", http.StatusServiceUnavailable, errors.New("down")), engine.CategoryEngineError, engine.SeverityMedium, true},
		{"configuration", &engine.ConfigurationError{Provider: "serpapi", Message: "api key not configured"}, engine.CategoryConfiguration, engine.SeverityHigh, false},
		{"standardization", &engine.StandardizationError{Provider: "x", Err: errors.New("bad shape")}, engine.CategoryParsing, engine.SeverityLow, true},
		{"keyword timeout", errors.New("request timed out"), engine.CategoryTimeout, engine.SeverityMedium, true},
		{"keyword auth", errors.New("Unauthorized: invalid API key"), engine.CategoryAuthentication, engine.SeverityHigh, false},
		{"keyword rate", errors.New("Too Many Requests"), engine.CategoryRateLimit, engine.SeverityMedium, true},
		{"keyword network", errors.New("dial tcp 10.0.0.1:443: connection refused"), engine.CategoryNetwork, engine.SeverityHigh, true},
		{"unavailable", fmt.Errorf("wrapped: %w", engine.ErrEngineUnavailable), engine.CategoryEngineError, engine.SeverityMedium, true},
		{"parsing", errors.New("invalid character '<' looking for beginning of value"), engine.CategoryParsing, engine.SeverityLow, true},
		{"unknown", errors.New("something odd"), engine.CategoryUnknown, engine.SeverityMedium, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err, "p")
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.NotEmpty(t, c.SuggestedAction)
			assert.Equal(t, "p", c.Provider)
		})
	}
}

func TestClassify_ErrorInfo(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := ClassifyAt(&engine.ValidationError{Field: "page", Value: 0, Message: "must be positive"}, "", now)

	info := c.ErrorInfo()
	assert.Equal(t, "ValidationError", info.Type)
	assert.Contains(t, info.Message, "page")
	assert.Equal(t, now, info.Timestamp)
	assert.False(t, info.IsRetryable)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	c := newClock()
	b := NewBreaker(BreakerConfig{}, c.Now, quietLogger())

	for i := 0; i < 4; i++ {
		assert.False(t, b.RecordFailure("bing"))
		c.Advance(time.Second)
	}
	assert.False(t, b.IsOpen("bing"))
	assert.True(t, b.RecordFailure("bing"))
	assert.True(t, b.IsOpen("bing"))
	assert.Equal(t, StateOpen, b.State("bing"))
	assert.Equal(t, []string{"bing"}, b.Open())
	assert.Equal(t, []string{"duckduckgo"}, b.Filter([]string{"bing", "duckduckgo"}))
}

func TestBreaker_SlidingWindow(t *testing.T) {
	c := newClock()
	b := NewBreaker(BreakerConfig{}, c.Now, quietLogger())

	for i := 0; i < 4; i++ {
		b.RecordFailure("bing")
	}
	c.Advance(DefaultWindow + time.Second)
	assert.Equal(t, 0, b.Failures("bing"))

	assert.False(t, b.RecordFailure("bing"))
	assert.False(t, b.IsOpen("bing"))
	assert.Equal(t, 1, b.Failures("bing"))
}

func TestBreaker_RecoveryAndReset(t *testing.T) {
	c := newClock()
	b := NewBreaker(BreakerConfig{}, c.Now, quietLogger())

	for i := 0; i < 5; i++ {
		b.RecordFailure("bing")
	}
	require.True(t, b.IsOpen("bing"))

	c.Advance(DefaultRecovery - time.Second)
	assert.True(t, b.IsOpen("bing"))

	c.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State("bing"))
	assert.False(t, b.IsOpen("bing"))
	assert.Equal(t, 0, b.Failures("bing"))

	b.RecordFailure("bing")
	assert.False(t, b.IsOpen("bing"), "a single failure after recovery must not reopen the circuit")

	b.RecordSuccess("bing")
	assert.Equal(t, 0, b.Failures("bing"))
	assert.Equal(t, StateClosed, b.State("bing"))
}

func TestBreaker_ConcurrentFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 50}, nil, quietLogger())

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 5; j++ {
				b.RecordFailure("shared")
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Equal(t, 50, b.Failures("shared"))
	assert.True(t, b.IsOpen("shared"))
}

type fakeProvider struct {
	name  string
	types []engine.SearchType
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) SupportsSearchType(t engine.SearchType) bool {
	for _, s := range f.types {
		if s == t {
			return true
		}
	}
	return false
}
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) ExecuteSearch(context.Context, *engine.SearchParameters) (any, error) {
	return nil, nil
}
func (f *fakeProvider) Capabilities() engine.ProviderCapabilities {
	return engine.ProviderCapabilities{SearchTypes: f.types}
}
func (f *fakeProvider) CredentialConfigured() bool { return true }

type fakeCandidates struct {
	order     []string
	providers map[string]*fakeProvider
}

func (f *fakeCandidates) Healthy() []string { return f.order }
func (f *fakeCandidates) Get(name string) (engine.Provider, bool) {
	p, ok := f.providers[name]
	return p, ok
}

func educationalCandidates() *fakeCandidates {
	return &fakeCandidates{
		order: []string{"wikipedia", "duckduckgo", "bing"},
		providers: map[string]*fakeProvider{
			"wikipedia":  {"wikipedia", []engine.SearchType{engine.SearchTypeEducational}},
			"duckduckgo": {"duckduckgo", []engine.SearchType{engine.SearchTypeEducational, engine.SearchTypeWeb}},
			"bing":       {"bing", []engine.SearchType{engine.SearchTypeWeb}},
		},
	}
}

type fakeExecutor struct {
	calls      int
	candidates []string
	params     *engine.SearchParameters
	resp       *engine.SearchResponse
	used       string
	err        error
}

func (f *fakeExecutor) ExecuteAmong(_ context.Context, params *engine.SearchParameters, candidates []string) (*engine.SearchResponse, string, error) {
	f.calls++
	f.params = params
	f.candidates = candidates
	return f.resp, f.used, f.err
}

func successFrom(provider string) *engine.SearchResponse {
	return &engine.SearchResponse{
		Success:    true,
		EngineUsed: provider,
		Results:    []engine.SearchResult{{Title: "ok"}},
		Metadata:   map[string]any{},
	}
}

func TestHandle_FallbackSucceeds(t *testing.T) {
	exec := &fakeExecutor{resp: successFrom("duckduckgo"), used: "duckduckgo"}
	h := NewHandler(NewBreaker(BreakerConfig{}, nil, quietLogger()), educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "Ada Lovelace", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}

	resp := h.Handle(context.Background(), engine.NewProviderError("wikipedia", 502, errors.New("bad gateway")), params, "wikipedia", time.Second, true)

	require.True(t, resp.Success)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, []string{"duckduckgo"}, exec.candidates)
	assert.Equal(t, engine.ProviderAuto, exec.params.Provider)
	assert.Equal(t, true, resp.Metadata["fallbackUsed"])
	assert.Equal(t, "wikipedia", resp.Metadata["originalProvider"])
	assert.Equal(t, "duckduckgo", resp.Metadata["fallbackProvider"])
	assert.Equal(t, "engine_error", resp.Metadata["fallbackReason"])
	assert.Equal(t, 1, h.Breaker().Failures("wikipedia"))

	stats := h.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByProvider["wikipedia"])
	assert.Equal(t, 1, stats.FallbackAttempts)
	assert.Equal(t, 1, stats.FallbackSuccesses)
}

func TestHandle_ValidationSkipsFallbackAndBreaker(t *testing.T) {
	exec := &fakeExecutor{resp: successFrom("duckduckgo"), used: "duckduckgo"}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}

	resp := h.Handle(context.Background(), &engine.ValidationError{Field: "location", Message: "required"}, params, "wikipedia", 0, true)

	require.False(t, resp.Success)
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, engine.CategoryValidation, resp.Error.Category)
	assert.Equal(t, 0, h.Breaker().Failures("wikipedia"))
	assert.Equal(t, "validation error", resp.Metadata["fallbackSkipped"])
}

func TestHandle_ExplicitProviderRules(t *testing.T) {
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: "wikipedia"}

	exec := &fakeExecutor{resp: successFrom("duckduckgo"), used: "duckduckgo"}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())
	resp := h.Handle(context.Background(), engine.NewProviderError("wikipedia", 429, errors.New("limited")), params, "wikipedia", 0, true)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, "provider explicitly requested", resp.Metadata["fallbackSkipped"])

	resp = h.Handle(context.Background(), engine.NewProviderError("wikipedia", 500, errors.New("boom")), params, "wikipedia", 0, true)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, exec.calls)
}

func TestHandle_ExplicitProviderBypassedByRouting(t *testing.T) {
	// wikipedia 被请求但未被执行，实际失败的是路由选中的 duckduckgo
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: "wikipedia"}
	exec := &fakeExecutor{resp: successFrom("wikipedia"), used: "wikipedia"}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())

	resp := h.Handle(context.Background(), engine.NewProviderError("duckduckgo", 429, errors.New("limited")), params, "duckduckgo", 0, true)

	require.True(t, resp.Success)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, []string{"wikipedia"}, exec.candidates)
	assert.Equal(t, engine.ProviderAuto, exec.params.Provider)
	assert.Equal(t, "duckduckgo", resp.Metadata["originalProvider"])
}

func TestHandle_LocalRateLimitSkipsBreaker(t *testing.T) {
	exec := &fakeExecutor{resp: successFrom("duckduckgo"), used: "duckduckgo"}
	h := NewHandler(NewBreaker(BreakerConfig{}, nil, quietLogger()), educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}
	throttled := &engine.ProviderError{
		Provider: "wikipedia",
		Category: engine.CategoryRateLimit,
		Err:      fmt.Errorf("%w: 1 requests/minute", engine.ErrLocalRateLimit),
	}

	for i := 0; i < 6; i++ {
		resp := h.Handle(context.Background(), throttled, params, "wikipedia", 0, true)
		require.True(t, resp.Success)
	}

	assert.Equal(t, 0, h.Breaker().Failures("wikipedia"))
	assert.Equal(t, StateClosed, h.Breaker().State("wikipedia"))
	assert.Equal(t, 6, h.Stats().ByCategory[engine.CategoryRateLimit])
	assert.Equal(t, 6, exec.calls)

	// 上游返回的 429 仍然计入熔断
	h.Handle(context.Background(), engine.NewProviderError("wikipedia", 429, errors.New("limited")), params, "wikipedia", 0, true)
	assert.Equal(t, 1, h.Breaker().Failures("wikipedia"))
}

func TestHandle_NoAlternative(t *testing.T) {
	exec := &fakeExecutor{}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeFlights, Provider: engine.ProviderAuto}

	resp := h.Handle(context.Background(), errors.New("connection reset by peer"), params, "serpapi", 0, true)

	assert.False(t, resp.Success)
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, engine.CategoryNetwork, resp.Error.Category)
	assert.Equal(t, "serpapi", resp.Error.Engine)
	assert.Equal(t, false, resp.Metadata["fallbackAttempted"])
}

func TestHandle_SkipsOpenCircuits(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{}, nil, quietLogger())
	for i := 0; i < 5; i++ {
		breaker.RecordFailure("duckduckgo")
	}
	exec := &fakeExecutor{}
	h := NewHandler(breaker, educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}

	resp := h.Handle(context.Background(), errors.New("service unavailable"), params, "wikipedia", 0, true)

	assert.False(t, resp.Success)
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, "no alternative provider available", resp.Metadata["fallbackSkipped"])
}

func TestHandle_FallbackFailsReturnsLastError(t *testing.T) {
	exec := &fakeExecutor{
		used: "duckduckgo",
		err:  engine.NewProviderError("duckduckgo", 429, errors.New("limited")),
	}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}

	resp := h.Handle(context.Background(), errors.New("request timed out"), params, "wikipedia", time.Second, true)

	require.False(t, resp.Success)
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, "duckduckgo", resp.EngineUsed)
	assert.Equal(t, engine.CategoryRateLimit, resp.Error.Category)
	assert.Equal(t, true, resp.Metadata["fallbackAttempted"])
	assert.Equal(t, "wikipedia", resp.Metadata["originalProvider"])
	assert.Equal(t, "timeout", resp.Metadata["fallbackReason"])
	assert.Equal(t, 1, h.Breaker().Failures("duckduckgo"))
	assert.Equal(t, 2, h.Stats().Total)
}

func TestHandle_CancelledContext(t *testing.T) {
	exec := &fakeExecutor{resp: successFrom("duckduckgo"), used: "duckduckgo"}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := h.Handle(ctx, ctx.Err(), params, "wikipedia", 0, true)

	assert.False(t, resp.Success)
	assert.Equal(t, engine.CategoryTimeout, resp.Error.Category)
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, 1, h.Breaker().Failures("wikipedia"))
}

func TestHandle_WithoutFallback(t *testing.T) {
	exec := &fakeExecutor{resp: successFrom("duckduckgo"), used: "duckduckgo"}
	h := NewHandler(nil, educationalCandidates(), exec, quietLogger())
	params := &engine.SearchParameters{Query: "q", SearchType: engine.SearchTypeEducational, Provider: engine.ProviderAuto}

	resp := h.Handle(context.Background(), errors.New("boom"), params, "wikipedia", 0, false)

	assert.False(t, resp.Success)
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, "q", resp.Query)
	assert.Equal(t, engine.SearchTypeEducational, resp.SearchType)
}
