// Package router 为单次请求选择唯一的提供方
package router

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/analyzer"
	"github.com/cliffyan/go-web-search-router/internal/engine"
)

const (
	// DefaultCacheTTL 路由决策缓存时间
	DefaultCacheTTL = 5 * time.Minute
	// pruneThreshold 缓存条目超过该值时清理过期条目
	pruneThreshold = 1000
)

// DefaultPreferences 各搜索类型的提供方优先级
var DefaultPreferences = map[engine.SearchType][]string{
	engine.SearchTypeWeb:           {"duckduckgo", "bing", "browser_google", "serpapi", "tavily"},
	engine.SearchTypeNews:          {"google_news", "bing", "serpapi", "tavily", "hackernews"},
	engine.SearchTypeTrends:        {"google_news", "serpapi", "hackernews"},
	engine.SearchTypeFlights:       {"serpapi"},
	engine.SearchTypeEvents:        {"serpapi"},
	engine.SearchTypeResearch:      {"tavily", "wikipedia", "duckduckgo"},
	engine.SearchTypeEducational:   {"wikipedia", "tavily", "duckduckgo"},
	engine.SearchTypeTechCommunity: {"hackernews", "duckduckgo", "bing"},
	engine.SearchTypeFinancial:     {"tavily", "serpapi", "bing"},
}

// Lookup 路由器所需的提供方查询能力，由 *engine.Registry 实现
type Lookup interface {
	Get(name string) (engine.Provider, bool)
	Available() []string
}

// Step 决策来源
type Step string

const (
	StepExplicit   Step = "explicit"
	StepCache      Step = "cache"
	StepPreference Step = "preference"
	StepAnalysis   Step = "analysis"
	StepAny        Step = "any"
)

// Decision 路由结果
type Decision struct {
	Provider string
	Step     Step
	Analysis *analyzer.Analysis
}

// Router 提供方路由器，可并发使用
type Router struct {
	lookup      Lookup
	analyzer    *analyzer.Analyzer
	preferences map[engine.SearchType][]string
	now         func() time.Time
	log         logrus.FieldLogger

	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

// Option 路由器选项
type Option func(*Router)

// WithClock 替换时间来源，缓存过期按该时钟判断
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCacheTTL 设置路由缓存时间
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Router) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithPreferences 替换搜索类型优先级表
func WithPreferences(prefs map[engine.SearchType][]string) Option {
	return func(r *Router) {
		if prefs != nil {
			r.preferences = prefs
		}
	}
}

// WithLogger 设置日志
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// New 创建路由器
func New(lookup Lookup, a *analyzer.Analyzer, opts ...Option) *Router {
	r := &Router{
		lookup:      lookup,
		analyzer:    a,
		preferences: DefaultPreferences,
		now:         time.Now,
		ttl:         DefaultCacheTTL,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "router")
	// 过期由 entry.storedAt 和注入的时钟判断，go-cache 自身不做过期
	r.cache = cache.New(cache.NoExpiration, 0)
	return r
}

type entry struct {
	provider string
	storedAt time.Time
}

// Route 从 available 中选择提供方
func (r *Router) Route(params *engine.SearchParameters, available []string) (string, error) {
	d, err := r.Decide(params, available)
	if err != nil {
		return "", err
	}
	return d.Provider, nil
}

// Decide 同 Route，同时返回决策来源
func (r *Router) Decide(params *engine.SearchParameters, available []string) (Decision, error) {
	set := make(map[string]struct{}, len(available))
	for _, name := range available {
		set[name] = struct{}{}
	}
	eligible := func(name string) bool {
		if _, ok := set[name]; !ok {
			return false
		}
		p, ok := r.lookup.Get(name)
		return ok && p.SupportsSearchType(params.SearchType)
	}

	// 显式指定
	if !params.IsAuto() {
		if eligible(params.Provider) {
			return Decision{Provider: params.Provider, Step: StepExplicit}, nil
		}
		r.log.WithFields(logrus.Fields{
			"provider":   params.Provider,
			"searchType": params.SearchType,
		}).Warn("⚠️ Requested provider unavailable, routing automatically")
	}

	key := cacheKey(params)
	if name, ok := r.cached(key); ok && eligible(name) {
		return Decision{Provider: name, Step: StepCache}, nil
	}

	d, ok := r.selectProvider(params, eligible)
	if !ok {
		return Decision{}, &engine.ProviderUnavailableError{
			SearchType: params.SearchType,
			Reason:     fmt.Sprintf("none of %d available providers supports it", len(available)),
		}
	}
	r.store(key, d.Provider)
	r.log.WithFields(logrus.Fields{
		"provider":   d.Provider,
		"step":       d.Step,
		"searchType": params.SearchType,
	}).Debug("🧭 Provider selected")
	return d, nil
}

func (r *Router) selectProvider(params *engine.SearchParameters, eligible func(string) bool) (Decision, bool) {
	for _, name := range r.preferences[params.SearchType] {
		if eligible(name) {
			return Decision{Provider: name, Step: StepPreference}, true
		}
	}

	if r.analyzer != nil {
		analysis := r.analyzer.Analyze(params.Query)
		if name, ok := r.fromAnalysis(params, analysis, eligible); ok {
			return Decision{Provider: name, Step: StepAnalysis, Analysis: &analysis}, true
		}
	}

	for _, name := range r.lookup.Available() {
		if eligible(name) {
			return Decision{Provider: name, Step: StepAny}, true
		}
	}
	return Decision{}, false
}

// fromAnalysis 建议类型与请求类型不同时，先尝试支持建议类型的提供方，再尝试支持原类型的，
// 两轮都按分析器给出的提供方顺序
func (r *Router) fromAnalysis(params *engine.SearchParameters, analysis analyzer.Analysis, eligible func(string) bool) (string, bool) {
	if len(analysis.PreferredProviders) == 0 {
		return "", false
	}
	if s := analysis.SuggestedSearchType; s != "" && s != params.SearchType {
		for _, name := range analysis.PreferredProviders {
			p, ok := r.lookup.Get(name)
			if ok && p.SupportsSearchType(s) && eligible(name) {
				return name, true
			}
		}
	}
	for _, name := range analysis.PreferredProviders {
		if eligible(name) {
			return name, true
		}
	}
	return "", false
}

func cacheKey(params *engine.SearchParameters) string {
	h := xxhash.Sum64String(strings.ToLower(params.Query))
	return fmt.Sprintf("%s|%s|%016x", params.SearchType, params.Provider, h)
}

func (r *Router) cached(key string) (string, bool) {
	v, found := r.cache.Get(key)
	if !found {
		return "", false
	}
	e := v.(entry)
	if r.now().Sub(e.storedAt) >= r.ttl {
		r.cache.Delete(key)
		return "", false
	}
	return e.provider, true
}

func (r *Router) store(key, provider string) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Set(key, entry{provider: provider, storedAt: now}, cache.NoExpiration)
	if r.cache.ItemCount() > pruneThreshold {
		r.prune(now)
	}
}

// prune 删除过期条目，调用方持有 r.mu
func (r *Router) prune(now time.Time) {
	removed := 0
	for key, item := range r.cache.Items() {
		if now.Sub(item.Object.(entry).storedAt) >= r.ttl {
			r.cache.Delete(key)
			removed++
		}
	}
	if removed > 0 {
		r.log.WithField("removed", removed).Debug("🧹 Pruned routing cache")
	}
}

// CacheSize 当前缓存条目数
func (r *Router) CacheSize() int {
	return r.cache.ItemCount()
}

// ClearCache 清空路由缓存
func (r *Router) ClearCache() {
	r.cache.Flush()
}
