package engine

import (
	"time"
)

// SearchType 搜索类型
type SearchType string

const (
	SearchTypeWeb           SearchType = "web"
	SearchTypeNews          SearchType = "news"
	SearchTypeTrends        SearchType = "trends"
	SearchTypeFlights       SearchType = "flights"
	SearchTypeEvents        SearchType = "events"
	SearchTypeResearch      SearchType = "research"
	SearchTypeEducational   SearchType = "educational"
	SearchTypeTechCommunity SearchType = "tech_community"
	SearchTypeFinancial     SearchType = "financial"
)

// AllSearchTypes 所有搜索类型（按声明顺序）
var AllSearchTypes = []SearchType{
	SearchTypeWeb,
	SearchTypeNews,
	SearchTypeTrends,
	SearchTypeFlights,
	SearchTypeEvents,
	SearchTypeResearch,
	SearchTypeEducational,
	SearchTypeTechCommunity,
	SearchTypeFinancial,
}

// ParseSearchType 解析搜索类型
func ParseSearchType(s string) (SearchType, bool) {
	for _, t := range AllSearchTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// SafeSearch 安全搜索级别
type SafeSearch string

const (
	SafeSearchOn       SafeSearch = "on"
	SafeSearchModerate SafeSearch = "moderate"
	SafeSearchOff      SafeSearch = "off"
)

// SearchDepth 搜索深度
type SearchDepth string

const (
	SearchDepthBasic    SearchDepth = "basic"
	SearchDepthStandard SearchDepth = "standard"
	SearchDepthAdvanced SearchDepth = "advanced"
)

// ProviderAuto 自动选择提供方
const ProviderAuto = "auto"

// SearchParameters 校验后的搜索请求，创建后只读
type SearchParameters struct {
	Query            string         `json:"query"`
	Provider         string         `json:"provider"`
	SearchType       SearchType     `json:"searchType"`
	MaxResults       int            `json:"maxResults"`
	SafeSearch       SafeSearch     `json:"safesearch"`
	Language         string         `json:"language"`
	Region           string         `json:"region"`
	IncludeImages    bool           `json:"includeImages"`
	IncludeDomains   []string       `json:"includeDomains,omitempty"`
	ExcludeDomains   []string       `json:"excludeDomains,omitempty"`
	SearchDepth      SearchDepth    `json:"searchDepth"`
	StartDate        *time.Time     `json:"startDate,omitempty"`
	EndDate          *time.Time     `json:"endDate,omitempty"`
	Page             int            `json:"page"`
	AdditionalParams map[string]any `json:"additionalParams,omitempty"`
}

// IsAuto 是否为自动选择提供方
func (p *SearchParameters) IsAuto() bool {
	return p.Provider == "" || p.Provider == ProviderAuto
}

// WithProvider 返回指定提供方的副本，原对象不变
func (p *SearchParameters) WithProvider(provider string) *SearchParameters {
	cp := *p
	cp.Provider = provider
	return &cp
}

// Additional 读取附加参数中的字符串值
func (p *SearchParameters) Additional(key string) string {
	if p.AdditionalParams == nil {
		return ""
	}
	switch v := p.AdditionalParams[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmtAny(v)
	}
}

// SearchResult 标准化后的单条搜索结果
type SearchResult struct {
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Snippet       string         `json:"snippet"`
	PublishedDate *time.Time     `json:"publishedDate,omitempty"`
	Score         *float64       `json:"score,omitempty"`
	Source        string         `json:"source"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SearchResponse 一次提供方调用的结果，无论成功与否都返回给调用方
type SearchResponse struct {
	Success        bool           `json:"success"`
	EngineUsed     string         `json:"engineUsed"`
	SearchType     SearchType     `json:"searchType"`
	Query          string         `json:"query"`
	ExecutionTime  float64        `json:"executionTime"`
	Results        []SearchResult `json:"results"`
	TotalResults   *int           `json:"totalResults,omitempty"`
	Page           *int           `json:"page,omitempty"`
	PagesAvailable *int           `json:"pagesAvailable,omitempty"`
	Error          *ErrorInfo     `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata"`
}

// SetMetadata 写入元数据
func (r *SearchResponse) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// ProviderCapabilities 提供方的静态能力描述
type ProviderCapabilities struct {
	SearchTypes            []SearchType `json:"searchTypes"`
	SupportsPagination     bool         `json:"supportsPagination"`
	SupportsDateFilter     bool         `json:"supportsDateFilter"`
	SupportsDomainFilter   bool         `json:"supportsDomainFilter"`
	SupportsSafeSearch     bool         `json:"supportsSafeSearch"`
	SupportsLanguage       bool         `json:"supportsLanguage"`
	SupportsRegion         bool         `json:"supportsRegion"`
	SupportsImages         bool         `json:"supportsImages"`
	SupportsContentExtract bool         `json:"supportsContentExtraction"`
	MaxResultsPerRequest   int          `json:"maxResultsPerRequest"`
	// RateLimit 每分钟请求数，0 表示不限制
	RateLimit int `json:"rateLimit,omitempty"`
}

// Supports 是否支持该搜索类型
func (c ProviderCapabilities) Supports(t SearchType) bool {
	for _, st := range c.SearchTypes {
		if st == t {
			return true
		}
	}
	return false
}

// ProviderConfig 提供方运行配置，构造后不可变
type ProviderConfig struct {
	Name           string               `json:"name"`
	RequiresAPIKey bool                 `json:"requiresApiKey"`
	APIKeyName     string               `json:"apiKeyName,omitempty"`
	APIKey         string               `json:"-"`
	BaseURL        string               `json:"baseUrl,omitempty"`
	ProxyURL       string               `json:"-"`
	Timeout        time.Duration        `json:"timeout"`
	MaxRetries     int                  `json:"maxRetries"`
	RetryDelay     time.Duration        `json:"retryDelay"`
	Capabilities   ProviderCapabilities `json:"capabilities"`
	DefaultParams  map[string]any       `json:"defaultParams,omitempty"`
	CacheTTL       time.Duration        `json:"cacheTtl"`
}

// ProviderHealthStatus 提供方健康状态
type ProviderHealthStatus struct {
	Name                 string               `json:"name"`
	Available            bool                 `json:"available"`
	LastCheck            time.Time            `json:"lastCheck"`
	ResponseTime         *float64             `json:"responseTime,omitempty"`
	ErrorMessage         string               `json:"errorMessage,omitempty"`
	CredentialConfigured bool                 `json:"credentialConfigured"`
	Capabilities         ProviderCapabilities `json:"capabilities"`
}

// ParameterInfo 提供方支持的单个参数描述
type ParameterInfo struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Min         *int     `json:"min,omitempty"`
	Max         *int     `json:"max,omitempty"`
}

// SupportedParameters 根据能力推导提供方接受的参数
func SupportedParameters(caps ProviderCapabilities) map[string]ParameterInfo {
	one, maxResults := 1, caps.MaxResultsPerRequest
	if maxResults <= 0 {
		maxResults = 100
	}
	types := make([]string, 0, len(caps.SearchTypes))
	for _, t := range caps.SearchTypes {
		types = append(types, string(t))
	}

	params := map[string]ParameterInfo{
		"query":      {Type: "string", Description: "Search query"},
		"searchType": {Type: "string", Description: "Search category", Enum: types},
		"maxResults": {Type: "integer", Description: "Maximum number of results", Min: &one, Max: &maxResults},
	}
	if caps.SupportsPagination {
		params["page"] = ParameterInfo{Type: "integer", Description: "Result page", Min: &one}
	}
	if caps.SupportsSafeSearch {
		params["safesearch"] = ParameterInfo{Type: "string", Description: "Safe search level", Enum: []string{"on", "moderate", "off"}}
	}
	if caps.SupportsLanguage {
		params["language"] = ParameterInfo{Type: "string", Description: "Two-letter language code"}
	}
	if caps.SupportsRegion {
		params["region"] = ParameterInfo{Type: "string", Description: "Two-letter region code"}
	}
	if caps.SupportsDomainFilter {
		params["includeDomains"] = ParameterInfo{Type: "array", Description: "Only return results from these domains"}
		params["excludeDomains"] = ParameterInfo{Type: "array", Description: "Never return results from these domains"}
	}
	if caps.SupportsDateFilter {
		params["startDate"] = ParameterInfo{Type: "string", Description: "Earliest publication date"}
		params["endDate"] = ParameterInfo{Type: "string", Description: "Latest publication date"}
	}
	if caps.SupportsImages {
		params["includeImages"] = ParameterInfo{Type: "boolean", Description: "Include image results"}
	}
	if caps.SupportsContentExtract {
		params["searchDepth"] = ParameterInfo{Type: "string", Description: "Search depth", Enum: []string{"basic", "standard", "advanced"}}
	}
	return params
}
