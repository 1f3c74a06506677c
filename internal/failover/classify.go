// Package failover 错误分类、熔断和降级
package failover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

// Classification 一次失败的分类结果
type Classification struct {
	Type            string
	Category        engine.ErrorCategory
	Severity        engine.Severity
	Retryable       bool
	SuggestedAction string
	Provider        string
	Timestamp       time.Time
	Err             error
}

// ErrorInfo 转换为响应中的错误对象
func (c Classification) ErrorInfo() *engine.ErrorInfo {
	msg := ""
	if c.Err != nil {
		msg = c.Err.Error()
	}
	return &engine.ErrorInfo{
		Type:            c.Type,
		Message:         msg,
		Category:        c.Category,
		Severity:        c.Severity,
		Engine:          c.Provider,
		IsRetryable:     c.Retryable,
		SuggestedAction: c.SuggestedAction,
		Timestamp:       c.Timestamp,
	}
}

type policy struct {
	severity  engine.Severity
	retryable bool
	action    string
}

// policies 每个类别固定的严重程度、是否可重试和建议操作
var policies = map[engine.ErrorCategory]policy{
	engine.CategoryNetwork:        {engine.SeverityHigh, true, "Check network connectivity or proxy settings and retry"},
	engine.CategoryAuthentication: {engine.SeverityHigh, false, "Verify the provider API key is configured and valid"},
	engine.CategoryRateLimit:      {engine.SeverityMedium, true, "Wait before retrying or use a different provider"},
	engine.CategoryValidation:     {engine.SeverityLow, false, "Fix the request parameters and try again"},
	engine.CategoryEngineError:    {engine.SeverityMedium, true, "The provider is temporarily unavailable; retry later or use another provider"},
	engine.CategoryTimeout:        {engine.SeverityMedium, true, "Retry the request, possibly with fewer results"},
	engine.CategoryParsing:        {engine.SeverityLow, true, "The provider returned an unexpected response; retry or use another provider"},
	engine.CategoryConfiguration:  {engine.SeverityHigh, false, "Check the provider configuration"},
	engine.CategoryUnknown:        {engine.SeverityMedium, false, "Retry later or contact support if the problem persists"},
}

// Policy 返回类别对应的严重程度和是否可重试
func Policy(category engine.ErrorCategory) (engine.Severity, bool) {
	p, ok := policies[category]
	if !ok {
		p = policies[engine.CategoryUnknown]
	}
	return p.severity, p.retryable
}

// Classify 按固定顺序检查错误类型和关键字
func Classify(err error, provider string) Classification {
	return ClassifyAt(err, provider, time.Now())
}

// ClassifyAt 同 Classify，使用指定时间戳
func ClassifyAt(err error, provider string, now time.Time) Classification {
	category := categorize(err)
	p := policies[category]
	return Classification{
		Type:            typeName(err),
		Category:        category,
		Severity:        p.severity,
		Retryable:       p.retryable,
		SuggestedAction: p.action,
		Provider:        provider,
		Timestamp:       now,
		Err:             err,
	}
}

func categorize(err error) engine.ErrorCategory {
	if err == nil {
		return engine.CategoryUnknown
	}

	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return engine.CategoryValidation
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return engine.CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return engine.CategoryTimeout
	}
	var perr *engine.ProviderError
	if errors.As(err, &perr) && perr.Category != "" {
		return perr.Category
	}
	var cerr *engine.ConfigurationError
	if errors.As(err, &cerr) {
		return engine.CategoryConfiguration
	}
	var serr *engine.StandardizationError
	if errors.As(err, &serr) {
		return engine.CategoryParsing
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return engine.CategoryTimeout
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "invalid key", "authentication"):
		return engine.CategoryAuthentication
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests", "quota"):
		return engine.CategoryRateLimit
	case containsAny(msg, "not configured", "missing api key", "configuration"):
		return engine.CategoryConfiguration
	case containsAny(msg, "connection refused", "connection reset", "no such host", "network", "dial tcp", "eof", "tls"):
		return engine.CategoryNetwork
	}

	var unavailable *engine.ProviderUnavailableError
	if errors.Is(err, engine.ErrEngineUnavailable) || errors.As(err, &unavailable) ||
		containsAny(msg, "unavailable", "service error", "bad gateway", "internal server error") {
		return engine.CategoryEngineError
	}
	if containsAny(msg, "parse", "decode", "unmarshal", "invalid character", "unexpected payload") {
		return engine.CategoryParsing
	}
	if errors.As(err, &netErr) {
		return engine.CategoryNetwork
	}
	return engine.CategoryUnknown
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// typeName 错误类型名，不含包路径
func typeName(err error) string {
	if err == nil {
		return "UnknownError"
	}
	var (
		verr *engine.ValidationError
		uerr *engine.ProviderUnavailableError
		serr *engine.StandardizationError
		cerr *engine.ConfigurationError
		perr *engine.ProviderError
	)
	switch {
	case errors.As(err, &verr):
		return "ValidationError"
	case errors.As(err, &uerr):
		return "ProviderUnavailableError"
	case errors.As(err, &serr):
		return "StandardizationError"
	case errors.As(err, &cerr):
		return "ConfigurationError"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "TimeoutError"
	case errors.As(err, &perr):
		return "ProviderError"
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
