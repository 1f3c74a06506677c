// Package standardize 将提供方原始响应转换为标准 SearchResponse
package standardize

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

// Lookup 按名称查找提供方，由 *engine.Registry 实现
type Lookup interface {
	Get(name string) (engine.Provider, bool)
}

// Standardizer 响应标准化器
type Standardizer struct {
	lookup Lookup
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option 标准化器选项
type Option func(*Standardizer)

// WithClock 替换时间来源，用于解析相对日期
func WithClock(now func() time.Time) Option {
	return func(s *Standardizer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger 设置日志
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Standardizer) {
		if log != nil {
			s.log = log
		}
	}
}

// New 创建标准化器；lookup 可为 nil，此时总是使用通用转换
func New(lookup Lookup, opts ...Option) *Standardizer {
	s := &Standardizer{
		lookup: lookup,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "standardizer")
	return s
}

// Standardize 转换原始响应，不返回错误；失败时返回 success=false 的响应
func (s *Standardizer) Standardize(raw any, provider string, searchType engine.SearchType, query string, elapsed time.Duration) *engine.SearchResponse {
	resp, err := s.TryStandardize(raw, provider, searchType, query, elapsed)
	if err != nil {
		return s.failure(err, provider, searchType, query, elapsed)
	}
	return resp
}

// TryStandardize 同 Standardize，但把失败作为错误返回，交给错误处理器
func (s *Standardizer) TryStandardize(raw any, provider string, searchType engine.SearchType, query string, elapsed time.Duration) (resp *engine.SearchResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = &engine.StandardizationError{Provider: provider, Err: fmt.Errorf("panic: %v", rec)}
			s.log.WithFields(logrus.Fields{"provider": provider, "panic": rec}).Error("💥 Standardization panicked")
		}
	}()

	results, converter, err := s.convert(raw, provider)
	if err != nil {
		var serr *engine.StandardizationError
		if !errors.As(err, &serr) {
			err = &engine.StandardizationError{Provider: provider, Err: err}
		}
		return nil, err
	}
	if results == nil {
		results = []engine.SearchResult{}
	}

	resp = &engine.SearchResponse{
		Success:       true,
		EngineUsed:    provider,
		SearchType:    searchType,
		Query:         query,
		ExecutionTime: elapsed.Seconds(),
		Results:       results,
	}
	resp.SetMetadata("resultCount", len(results))
	resp.SetMetadata("converter", converter)

	if pi, ok := raw.(engine.PageInfo); ok {
		total, page, pages := pi.Pagination()
		if total > 0 {
			resp.TotalResults = &total
		}
		if page > 0 {
			resp.Page = &page
		}
		if pages > 0 {
			resp.PagesAvailable = &pages
		}
	}
	return resp, nil
}

// convert 优先使用提供方自带的转换，否则使用通用转换
func (s *Standardizer) convert(raw any, provider string) ([]engine.SearchResult, string, error) {
	if s.lookup != nil {
		if p, ok := s.lookup.Get(provider); ok {
			if rs, ok := p.(engine.ResultStandardizer); ok {
				results, err := rs.StandardizeRaw(raw)
				return results, provider, err
			}
		}
	}
	results, err := Generic(raw, provider, s.now())
	return results, "generic", err
}

func (s *Standardizer) failure(err error, provider string, searchType engine.SearchType, query string, elapsed time.Duration) *engine.SearchResponse {
	s.log.WithFields(logrus.Fields{"provider": provider, "error": err}).Warn("⚠️ Failed to standardize response")
	resp := &engine.SearchResponse{
		Success:       false,
		EngineUsed:    provider,
		SearchType:    searchType,
		Query:         query,
		ExecutionTime: elapsed.Seconds(),
		Results:       []engine.SearchResult{},
		Error: &engine.ErrorInfo{
			Type:            "StandardizationError",
			Message:         err.Error(),
			Category:        engine.CategoryParsing,
			Severity:        engine.SeverityLow,
			Engine:          provider,
			IsRetryable:     true,
			SuggestedAction: "The provider returned an unexpected response format; retry or choose another provider",
			Timestamp:       s.now(),
		},
	}
	resp.SetMetadata("resultCount", 0)
	return resp
}

// toGeneric 把任意结构体转成 map/slice 形式，便于通用转换处理
func toGeneric(raw any) (any, error) {
	var data []byte
	switch x := raw.(type) {
	case map[string]any, []any:
		return raw, nil
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
