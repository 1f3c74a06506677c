package engine

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

// TavilyCapabilities Tavily 能力
var TavilyCapabilities = ProviderCapabilities{
	SearchTypes: []SearchType{
		SearchTypeWeb, SearchTypeNews, SearchTypeResearch,
		SearchTypeEducational, SearchTypeFinancial,
	},
	SupportsDateFilter:     true,
	SupportsDomainFilter:   true,
	SupportsImages:         true,
	SupportsContentExtract: true,
	MaxResultsPerRequest:   20,
	RateLimit:              100,
}

// TavilyProvider Tavily 搜索 API，需要 API key
type TavilyProvider struct {
	baseProvider
	client  *http.Client
	baseURL string
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    string  `json:"raw_content,omitempty"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// tavilyPayload Tavily 搜索响应
type tavilyPayload struct {
	Query        string         `json:"query"`
	Answer       string         `json:"answer,omitempty"`
	Images       []any          `json:"images,omitempty"`
	Results      []tavilyResult `json:"results"`
	ResponseTime float64        `json:"response_time"`
}

// NewTavilyProvider 创建 Tavily 提供方
func NewTavilyProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "tavily"
	}
	cfg.RequiresAPIKey = true
	if cfg.APIKeyName == "" {
		cfg.APIKeyName = "TAVILY_API_KEY"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = TavilyCapabilities
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &TavilyProvider{
		baseProvider: baseProvider{cfg: cfg},
		client:       newHTTPClient(cfg),
		baseURL:      baseURL,
	}, nil
}

// IsAvailable 配置了 API key 即视为可用
func (e *TavilyProvider) IsAvailable() bool {
	return e.CredentialConfigured()
}

// ExecuteSearch 调用 Tavily /search
func (e *TavilyProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	if err := e.requireKey(); err != nil {
		return nil, err
	}

	depth := "basic"
	if params.SearchDepth == SearchDepthAdvanced {
		depth = "advanced"
	}
	topic := "general"
	switch params.SearchType {
	case SearchTypeNews:
		topic = "news"
	case SearchTypeFinancial:
		topic = "finance"
	}

	body := map[string]any{
		"query":          params.Query,
		"search_depth":   depth,
		"topic":          topic,
		"max_results":    e.resultLimit(params),
		"include_images": params.IncludeImages,
	}
	if len(params.IncludeDomains) > 0 {
		body["include_domains"] = params.IncludeDomains
	}
	if len(params.ExcludeDomains) > 0 {
		body["exclude_domains"] = params.ExcludeDomains
	}
	if params.StartDate != nil {
		body["start_date"] = params.StartDate.Format("2006-01-02")
	}
	if params.EndDate != nil {
		body["end_date"] = params.EndDate.Format("2006-01-02")
	}
	if v, ok := params.AdditionalParams["include_answer"]; ok {
		body["include_answer"] = v
	}

	payload := &tavilyPayload{}
	if err := postJSON(ctx, e.client, e.Name(), e.baseURL+"/search", map[string]string{
		"Authorization": "Bearer " + e.cfg.APIKey,
	}, body, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// StandardizeRaw 转换为标准结果
func (e *TavilyProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	p, ok := payload.(*tavilyPayload)
	if !ok {
		return nil, &StandardizationError{Provider: e.Name(), Err: unexpectedPayload(payload)}
	}

	now := time.Now()
	results := make([]SearchResult, 0, len(p.Results))
	for _, item := range p.Results {
		score := item.Score
		meta := map[string]any{"original": item}
		if item.RawContent != "" {
			meta["rawContent"] = item.RawContent
		}
		if p.Answer != "" {
			meta["answer"] = p.Answer
		}
		result := SearchResult{
			Title:    item.Title,
			URL:      item.URL,
			Snippet:  item.Content,
			Score:    &score,
			Source:   sourceLabel(item.URL, e.Name()),
			Metadata: meta,
		}
		if t, ok := timeparse.Parse(item.PublishedDate, now, time.RFC1123, "Mon, 02 Jan 2006 15:04:05 GMT"); ok {
			result.PublishedDate = &t
		}
		results = append(results, result)
	}
	return results, nil
}
