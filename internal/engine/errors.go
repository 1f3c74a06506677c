package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory 错误类别
type ErrorCategory string

const (
	CategoryNetwork        ErrorCategory = "network"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryValidation     ErrorCategory = "validation"
	CategoryEngineError    ErrorCategory = "engine_error"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryParsing        ErrorCategory = "parsing"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryUnknown        ErrorCategory = "unknown"
)

// Severity 错误严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorInfo 响应中的结构化错误
type ErrorInfo struct {
	Type            string        `json:"type"`
	Message         string        `json:"message"`
	Category        ErrorCategory `json:"category"`
	Severity        Severity      `json:"severity"`
	Engine          string        `json:"engine,omitempty"`
	IsRetryable     bool          `json:"isRetryable"`
	SuggestedAction string        `json:"suggestedAction"`
	Timestamp       time.Time     `json:"timestamp"`
}

// ValidationError 参数校验失败
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error on field '%s' (value %v): %s", e.Field, e.Value, e.Message)
}

// ProviderUnavailableError 没有可用的提供方
type ProviderUnavailableError struct {
	SearchType SearchType
	Provider   string
	Reason     string
}

func (e *ProviderUnavailableError) Error() string {
	msg := fmt.Sprintf("no provider available for search type %q", e.SearchType)
	if e.Provider != "" {
		msg = fmt.Sprintf("provider %q unavailable for search type %q", e.Provider, e.SearchType)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StandardizationError 响应标准化失败
type StandardizationError struct {
	Provider string
	Err      error
}

func (e *StandardizationError) Error() string {
	return fmt.Sprintf("standardize %s response: %v", e.Provider, e.Err)
}

func (e *StandardizationError) Unwrap() error {
	return e.Err
}

// ConfigurationError 提供方配置错误（如缺少 API key）
type ConfigurationError struct {
	Provider string
	Message  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration error: %s", e.Provider, e.Message)
}

// ProviderError 提供方调用失败，Category 为空时由分类器根据错误内容判断
type ProviderError struct {
	Provider   string
	Category   ErrorCategory
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrEngineUnavailable 提供方声明自身不可用
var ErrEngineUnavailable = errors.New("engine unavailable")

// ErrLocalRateLimit 本地令牌桶拒绝了请求，上游未被调用
var ErrLocalRateLimit = errors.New("local rate limit exceeded")

// NewProviderError 根据 HTTP 状态码创建提供方错误
func NewProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Category:   categoryForStatus(status),
		StatusCode: status,
		Err:        err,
	}
}

func categoryForStatus(status int) ErrorCategory {
	switch {
	case status == 401 || status == 403:
		return CategoryAuthentication
	case status == 429:
		return CategoryRateLimit
	case status == 408 || status == 504:
		return CategoryTimeout
	case status >= 500:
		return CategoryEngineError
	default:
		return ""
	}
}

func fmtAny(v any) string {
	return fmt.Sprintf("%v", v)
}
