package failover

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

// Candidates 降级候选来源，由 *engine.Registry 实现
type Candidates interface {
	Healthy() []string
	Get(name string) (engine.Provider, bool)
}

// Executor 在候选提供方中路由并执行一次搜索，不再降级，也不做熔断计数；
// 返回实际使用的提供方，路由失败时为空
type Executor interface {
	ExecuteAmong(ctx context.Context, params *engine.SearchParameters, candidates []string) (*engine.SearchResponse, string, error)
}

var (
	errUnknown       = errors.New("unknown error")
	errEmptyResponse = errors.New("fallback returned no response")
)

// Stats 错误统计
type Stats struct {
	Total             int                          `json:"total"`
	ByCategory        map[engine.ErrorCategory]int `json:"byCategory"`
	ByProvider        map[string]int               `json:"byProvider"`
	FallbackAttempts  int                          `json:"fallbackAttempts"`
	FallbackSuccesses int                          `json:"fallbackSuccesses"`
	OpenCircuits      []string                     `json:"openCircuits"`
	LastError         *engine.ErrorInfo            `json:"lastError,omitempty"`
}

// Handler 错误处理器：分类、熔断计数、单跳降级
type Handler struct {
	breaker    *Breaker
	candidates Candidates
	executor   Executor
	now        func() time.Time
	log        logrus.FieldLogger

	mu    sync.Mutex
	stats Stats
}

// NewHandler 创建错误处理器；executor 可稍后通过 SetExecutor 设置
func NewHandler(breaker *Breaker, candidates Candidates, executor Executor, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{}, nil, log)
	}
	return &Handler{
		breaker:    breaker,
		candidates: candidates,
		executor:   executor,
		now:        breaker.now,
		log:        log.WithField("component", "failover"),
		stats: Stats{
			ByCategory: map[engine.ErrorCategory]int{},
			ByProvider: map[string]int{},
		},
	}
}

// SetExecutor 设置降级执行器，门面构造完成后注入
func (h *Handler) SetExecutor(executor Executor) {
	h.executor = executor
}

// Breaker 返回熔断器
func (h *Handler) Breaker() *Breaker {
	return h.breaker
}

// RecordSuccess 记录成功调用
func (h *Handler) RecordSuccess(provider string) {
	h.breaker.RecordSuccess(provider)
}

// Handle 处理一次提供方失败，总是返回结构化响应
func (h *Handler) Handle(ctx context.Context, err error, params *engine.SearchParameters, provider string, elapsed time.Duration, attemptFallback bool) *engine.SearchResponse {
	if err == nil {
		err = errUnknown
	}
	c := ClassifyAt(err, provider, h.now())
	h.account(c)

	fields := logrus.Fields{
		"provider":  provider,
		"category":  c.Category,
		"severity":  c.Severity,
		"retryable": c.Retryable,
		"error":     err,
	}
	if c.Category == engine.CategoryValidation {
		h.log.WithFields(fields).Info("🚫 Request rejected")
	} else {
		h.log.WithFields(fields).Warn("❌ Provider search failed")
	}

	resp := errorResponse(c, params, elapsed)
	if !attemptFallback {
		return resp
	}

	candidates, reason := h.fallbackCandidates(ctx, c, params, provider)
	if len(candidates) == 0 {
		resp.SetMetadata("fallbackAttempted", false)
		if reason != "" {
			resp.SetMetadata("fallbackSkipped", reason)
		}
		return resp
	}
	return h.fallback(ctx, c, params, provider, elapsed, candidates)
}

// fallbackCandidates 返回可用于降级的提供方；为空时附带跳过原因。
// 只有实际执行的就是请求指定的提供方时才按显式请求处理，路由绕开指定方后按自动处理
func (h *Handler) fallbackCandidates(ctx context.Context, c Classification, params *engine.SearchParameters, failed string) ([]string, string) {
	switch {
	case c.Category == engine.CategoryValidation:
		return nil, "validation error"
	case ctx.Err() != nil:
		return nil, "request cancelled"
	case params.Provider == failed && !params.IsAuto() && c.Category != engine.CategoryEngineError:
		return nil, "provider explicitly requested"
	case h.executor == nil || h.candidates == nil:
		return nil, "fallback not configured"
	}

	var out []string
	for _, name := range h.candidates.Healthy() {
		if name == failed || h.breaker.IsOpen(name) {
			continue
		}
		if p, ok := h.candidates.Get(name); ok && p.SupportsSearchType(params.SearchType) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, "no alternative provider available"
	}
	return out, ""
}

func (h *Handler) fallback(ctx context.Context, original Classification, params *engine.SearchParameters, failed string, elapsed time.Duration, candidates []string) *engine.SearchResponse {
	h.mu.Lock()
	h.stats.FallbackAttempts++
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"provider":   failed,
		"category":   original.Category,
		"candidates": candidates,
	}).Info("🔄 Attempting fallback")

	resp, used, err := h.executor.ExecuteAmong(ctx, params.WithProvider(engine.ProviderAuto), candidates)
	if err == nil && resp != nil && resp.Success {
		h.breaker.RecordSuccess(used)
		h.mu.Lock()
		h.stats.FallbackSuccesses++
		h.mu.Unlock()

		resp.ExecutionTime += elapsed.Seconds()
		resp.SetMetadata("fallbackUsed", true)
		resp.SetMetadata("originalProvider", failed)
		resp.SetMetadata("fallbackProvider", used)
		resp.SetMetadata("fallbackReason", string(original.Category))
		resp.SetMetadata("originalError", original.Err.Error())
		h.log.WithFields(logrus.Fields{"originalProvider": failed, "fallbackProvider": used}).Info("✅ Fallback succeeded")
		return resp
	}

	if used == "" {
		// 路由阶段就失败了，返回原始错误
		out := errorResponse(original, params, elapsed)
		out.SetMetadata("fallbackAttempted", true)
		if err != nil {
			out.SetMetadata("fallbackError", err.Error())
		}
		return out
	}

	if err == nil && resp != nil && resp.Error != nil {
		// 执行成功但响应本身标记失败（例如标准化失败）
		err = &engine.StandardizationError{Provider: used, Err: errors.New(resp.Error.Message)}
	} else if err == nil {
		err = &engine.ProviderError{Provider: used, Category: engine.CategoryUnknown, Err: errEmptyResponse}
	}

	last := ClassifyAt(err, used, h.now())
	h.account(last)
	h.log.WithFields(logrus.Fields{
		"originalProvider": failed,
		"fallbackProvider": used,
		"category":         last.Category,
		"error":            err,
	}).Warn("❌ Fallback failed")

	var fallbackElapsed float64
	if resp != nil {
		fallbackElapsed = resp.ExecutionTime
	}
	out := errorResponse(last, params, elapsed)
	out.EngineUsed = used
	out.ExecutionTime += fallbackElapsed
	out.SetMetadata("fallbackAttempted", true)
	out.SetMetadata("originalProvider", failed)
	out.SetMetadata("fallbackProvider", used)
	out.SetMetadata("fallbackReason", string(original.Category))
	out.SetMetadata("originalError", original.Err.Error())
	return out
}

// account 更新统计和熔断计数；校验错误不计入熔断
func (h *Handler) account(c Classification) {
	// 本地限流没有触达上游，不计入熔断
	if c.Category != engine.CategoryValidation && c.Provider != "" && !errors.Is(c.Err, engine.ErrLocalRateLimit) {
		h.breaker.RecordFailure(c.Provider)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Total++
	h.stats.ByCategory[c.Category]++
	if c.Provider != "" {
		h.stats.ByProvider[c.Provider]++
	}
	h.stats.LastError = c.ErrorInfo()
}

// Stats 返回统计快照
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	out := Stats{
		Total:             h.stats.Total,
		ByCategory:        make(map[engine.ErrorCategory]int, len(h.stats.ByCategory)),
		ByProvider:        make(map[string]int, len(h.stats.ByProvider)),
		FallbackAttempts:  h.stats.FallbackAttempts,
		FallbackSuccesses: h.stats.FallbackSuccesses,
		LastError:         h.stats.LastError,
	}
	for k, v := range h.stats.ByCategory {
		out.ByCategory[k] = v
	}
	for k, v := range h.stats.ByProvider {
		out.ByProvider[k] = v
	}
	h.mu.Unlock()

	out.OpenCircuits = h.breaker.Open()
	return out
}

// ErrorResponse 为未选中提供方的失败（如参数校验、无可用提供方）构造响应，同时计入统计
func (h *Handler) ErrorResponse(err error, params *engine.SearchParameters, provider string, elapsed time.Duration) *engine.SearchResponse {
	c := ClassifyAt(err, provider, h.now())
	h.mu.Lock()
	h.stats.Total++
	h.stats.ByCategory[c.Category]++
	h.stats.LastError = c.ErrorInfo()
	h.mu.Unlock()
	return errorResponse(c, params, elapsed)
}

func errorResponse(c Classification, params *engine.SearchParameters, elapsed time.Duration) *engine.SearchResponse {
	resp := &engine.SearchResponse{
		Success:       false,
		EngineUsed:    c.Provider,
		ExecutionTime: elapsed.Seconds(),
		Results:       []engine.SearchResult{},
		Error:         c.ErrorInfo(),
	}
	if params != nil {
		resp.SearchType = params.SearchType
		resp.Query = params.Query
	}
	resp.SetMetadata("resultCount", 0)
	return resp
}
