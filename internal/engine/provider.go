package engine

import "context"

// Provider 搜索提供方接口
//
// ExecuteSearch 失败时直接返回错误，不自行重试或降级。
type Provider interface {
	// Name 返回提供方名称
	Name() string
	// SupportsSearchType 是否支持该搜索类型
	SupportsSearchType(t SearchType) bool
	// IsAvailable 轻量级可用性检查，结果会被缓存
	IsAvailable() bool
	// ExecuteSearch 执行搜索，返回提供方原始响应
	ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error)
	// Capabilities 返回能力描述
	Capabilities() ProviderCapabilities
	// CredentialConfigured 凭证是否已配置
	CredentialConfigured() bool
}

// ResultStandardizer 将提供方原始响应转换为标准结果
type ResultStandardizer interface {
	StandardizeRaw(payload any) ([]SearchResult, error)
}

// PageInfo 由带分页信息的原始响应实现
type PageInfo interface {
	Pagination() (total, page, pages int)
}

// Factory 按配置构造提供方
type Factory func(cfg ProviderConfig) (Provider, error)

// baseProvider 提供方公共部分
type baseProvider struct {
	cfg ProviderConfig
}

func (b *baseProvider) Name() string {
	return b.cfg.Name
}

func (b *baseProvider) Capabilities() ProviderCapabilities {
	return b.cfg.Capabilities
}

func (b *baseProvider) SupportsSearchType(t SearchType) bool {
	return b.cfg.Capabilities.Supports(t)
}

func (b *baseProvider) CredentialConfigured() bool {
	if !b.cfg.RequiresAPIKey {
		return true
	}
	return b.cfg.APIKey != ""
}

// requireKey 缺少凭证时返回配置错误
func (b *baseProvider) requireKey() error {
	if b.cfg.RequiresAPIKey && b.cfg.APIKey == "" {
		return &ConfigurationError{Provider: b.cfg.Name, Message: "api key not configured (" + b.cfg.APIKeyName + ")"}
	}
	return nil
}

// resultLimit 结果数量上限，受提供方能力限制
func (b *baseProvider) resultLimit(params *SearchParameters) int {
	limit := params.MaxResults
	if limit <= 0 {
		limit = 10
	}
	if capped := b.cfg.Capabilities.MaxResultsPerRequest; capped > 0 && limit > capped {
		limit = capped
	}
	return limit
}
