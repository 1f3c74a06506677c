// Package search 搜索门面：校验 → 路由 → 执行 → 标准化 → 错误处理
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/analyzer"
	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/failover"
	"github.com/cliffyan/go-web-search-router/internal/router"
	"github.com/cliffyan/go-web-search-router/internal/standardize"
	"github.com/cliffyan/go-web-search-router/internal/validate"
)

// Service 搜索门面，所有调用都返回 SearchResponse
type Service struct {
	registry     *engine.Registry
	validator    *validate.Validator
	analyzer     *analyzer.Analyzer
	router       *router.Router
	standardizer *standardize.Standardizer
	handler      *failover.Handler
	now          func() time.Time
	log          logrus.FieldLogger
}

type options struct {
	log           logrus.FieldLogger
	now           func() time.Time
	breaker       failover.BreakerConfig
	routeCacheTTL time.Duration
	preferences   map[engine.SearchType][]string
	analyzer      *analyzer.Analyzer
}

// Option 门面选项
type Option func(*options)

// WithLogger 设置日志
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithClock 替换各组件使用的时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBreakerConfig 设置熔断参数
func WithBreakerConfig(cfg failover.BreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// WithRouteCacheTTL 设置路由缓存时间
func WithRouteCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.routeCacheTTL = ttl }
}

// WithPreferences 替换搜索类型优先级表
func WithPreferences(prefs map[engine.SearchType][]string) Option {
	return func(o *options) { o.preferences = prefs }
}

// WithAnalyzer 使用自定义查询分析器
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// NewService 创建搜索门面
func NewService(registry *engine.Registry, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	o := &options{log: logrus.StandardLogger(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.analyzer == nil {
		a, err := analyzer.New()
		if err != nil {
			return nil, fmt.Errorf("load query categories: %w", err)
		}
		o.analyzer = a
	}

	s := &Service{
		registry:  registry,
		validator: validate.New(validate.WithClock(o.now)),
		analyzer:  o.analyzer,
		now:       o.now,
		log:       o.log.WithField("component", "search"),
	}
	s.router = router.New(registry, o.analyzer,
		router.WithClock(o.now),
		router.WithCacheTTL(o.routeCacheTTL),
		router.WithPreferences(o.preferences),
		router.WithLogger(o.log),
	)
	s.standardizer = standardize.New(registry, standardize.WithClock(o.now), standardize.WithLogger(o.log))
	breaker := failover.NewBreaker(o.breaker, o.now, o.log)
	s.handler = failover.NewHandler(breaker, registry, s, o.log)
	return s, nil
}

// Registry 返回提供方注册表
func (s *Service) Registry() *engine.Registry {
	return s.registry
}

// Stats 返回错误统计
func (s *Service) Stats() failover.Stats {
	return s.handler.Stats()
}

// Search 执行一次搜索
func (s *Service) Search(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	start := s.now()
	requestID := newRequestID()
	log := s.log.WithField("requestId", requestID)

	resp := s.search(ctx, raw, start, log)
	resp.SetMetadata("requestId", requestID)
	if resp.Results == nil {
		resp.Results = []engine.SearchResult{}
	}
	return resp
}

func (s *Service) search(ctx context.Context, raw map[string]any, start time.Time, log logrus.FieldLogger) *engine.SearchResponse {
	params, err := s.validator.Validate(raw)
	if err != nil {
		return s.handler.ErrorResponse(err, partialParams(raw), "", s.now().Sub(start))
	}
	if !params.IsAuto() {
		if _, ok := s.registry.Config(params.Provider); !ok {
			err := &engine.ValidationError{Field: "provider", Value: params.Provider, Message: "unknown provider"}
			return s.handler.ErrorResponse(err, params, "", s.now().Sub(start))
		}
	}

	log.WithFields(logrus.Fields{
		"query":      params.Query,
		"searchType": params.SearchType,
		"provider":   params.Provider,
	}).Info("🔍 Search request")

	decision, err := s.router.Decide(params, s.candidates())
	if err != nil {
		return s.handler.ErrorResponse(err, params, "", s.now().Sub(start))
	}

	resp, err := s.execute(ctx, params, decision.Provider)
	if err != nil {
		resp = s.handler.Handle(ctx, err, params, decision.Provider, s.now().Sub(start), true)
	} else {
		s.handler.RecordSuccess(decision.Provider)
	}

	resp.SetMetadata("routingStep", string(decision.Step))
	if decision.Analysis != nil {
		resp.SetMetadata("queryCategories", decision.Analysis.Categories)
	}
	log.WithFields(logrus.Fields{
		"provider": resp.EngineUsed,
		"success":  resp.Success,
		"results":  len(resp.Results),
		"elapsed":  fmt.Sprintf("%.3fs", resp.ExecutionTime),
	}).Info("✅ Search finished")
	return resp
}

// candidates 健康且未熔断的提供方（注册顺序）
func (s *Service) candidates() []string {
	return s.handler.Breaker().Filter(s.registry.Healthy())
}

// ExecuteAmong 在候选中路由并执行一次，供错误处理器降级使用
func (s *Service) ExecuteAmong(ctx context.Context, params *engine.SearchParameters, candidates []string) (*engine.SearchResponse, string, error) {
	name, err := s.router.Route(params, candidates)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.execute(ctx, params, name)
	return resp, name, err
}

// execute 调用提供方并标准化；提供方 panic 视为失败
func (s *Service) execute(ctx context.Context, params *engine.SearchParameters, name string) (*engine.SearchResponse, error) {
	p, ok := s.registry.Get(name)
	if !ok {
		return nil, &engine.ProviderUnavailableError{SearchType: params.SearchType, Provider: name, Reason: "not registered"}
	}
	if err := s.registry.Acquire(name); err != nil {
		return nil, err
	}

	start := s.now()
	raw, err := safeExecute(ctx, p, params)
	elapsed := s.now().Sub(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return nil, err
	}
	return s.standardizer.TryStandardize(raw, name, params.SearchType, params.Query, elapsed)
}

func safeExecute(ctx context.Context, p engine.Provider, params *engine.SearchParameters) (raw any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &engine.ProviderError{Provider: p.Name(), Category: engine.CategoryEngineError, Err: fmt.Errorf("provider panicked: %v", rec)}
		}
	}()
	return p.ExecuteSearch(ctx, params)
}

func newRequestID() string {
	return uuid.NewString()
}

// partialParams 校验失败时尽量保留查询文本，便于响应回显
func partialParams(raw map[string]any) *engine.SearchParameters {
	p := &engine.SearchParameters{SearchType: engine.SearchTypeWeb}
	if q, ok := raw["query"].(string); ok {
		p.Query = q
	}
	for _, key := range []string{"searchType", "search_type"} {
		if v, ok := raw[key].(string); ok {
			if t, ok := engine.ParseSearchType(v); ok {
				p.SearchType = t
			}
		}
	}
	return p
}
