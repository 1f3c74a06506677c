package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

// WikipediaCapabilities Wikipedia 能力
var WikipediaCapabilities = ProviderCapabilities{
	SearchTypes:          []SearchType{SearchTypeEducational, SearchTypeResearch},
	SupportsPagination:   true,
	SupportsLanguage:     true,
	MaxResultsPerRequest: 50,
	RateLimit:            100,
}

// WikipediaProvider MediaWiki 全文搜索
type WikipediaProvider struct {
	baseProvider
	client  *http.Client
	baseURL string
}

// wikipediaPayload MediaWiki list=search 响应
type wikipediaPayload struct {
	Language string `json:"-"`
	Offset   int    `json:"-"`
	Limit    int    `json:"-"`
	Query    struct {
		SearchInfo struct {
			TotalHits  int    `json:"totalhits"`
			Suggestion string `json:"suggestion"`
		} `json:"searchinfo"`
		Search []struct {
			NS        int    `json:"ns"`
			Title     string `json:"title"`
			PageID    int    `json:"pageid"`
			Size      int    `json:"size"`
			WordCount int    `json:"wordcount"`
			Snippet   string `json:"snippet"`
			Timestamp string `json:"timestamp"`
		} `json:"search"`
	} `json:"query"`
}

// Pagination 分页信息
func (p *wikipediaPayload) Pagination() (total, page, pages int) {
	total = p.Query.SearchInfo.TotalHits
	if p.Limit > 0 {
		page = p.Offset/p.Limit + 1
		pages = (total + p.Limit - 1) / p.Limit
	}
	return total, page, pages
}

// NewWikipediaProvider 创建 Wikipedia 提供方；BaseURL 中的 {lang} 会被替换为语言代码
func NewWikipediaProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "wikipedia"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = WikipediaCapabilities
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://{lang}.wikipedia.org/w/api.php"
	}
	return &WikipediaProvider{
		baseProvider: baseProvider{cfg: cfg},
		client:       newHTTPClient(cfg),
		baseURL:      baseURL,
	}, nil
}

// IsAvailable 公共 API，无需凭证
func (e *WikipediaProvider) IsAvailable() bool {
	return true
}

// ExecuteSearch 调用 MediaWiki 搜索 API
func (e *WikipediaProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	limit := e.resultLimit(params)
	offset := (params.Page - 1) * limit
	lang := params.Language
	if lang == "" {
		lang = "en"
	}

	values := url.Values{}
	values.Set("action", "query")
	values.Set("list", "search")
	values.Set("format", "json")
	values.Set("srsearch", params.Query)
	values.Set("srlimit", fmt.Sprintf("%d", limit))
	values.Set("sroffset", fmt.Sprintf("%d", offset))
	values.Set("srprop", "snippet|timestamp|wordcount|size")
	values.Set("srinfo", "totalhits|suggestion")
	endpoint := strings.ReplaceAll(e.baseURL, "{lang}", lang) + "?" + values.Encode()

	payload := &wikipediaPayload{Language: lang, Offset: offset, Limit: limit}
	if err := getJSON(ctx, e.client, e.Name(), endpoint, map[string]string{
		"User-Agent": "go-web-search-router/1.0 (https://github.com/cliffyan/go-web-search-router)",
	}, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// StandardizeRaw 转换为标准结果
func (e *WikipediaProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	p, ok := payload.(*wikipediaPayload)
	if !ok {
		return nil, &StandardizationError{Provider: e.Name(), Err: unexpectedPayload(payload)}
	}

	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	now := time.Now()
	results := make([]SearchResult, 0, len(p.Query.Search))
	for _, item := range p.Query.Search {
		pageURL := fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", lang, url.PathEscape(strings.ReplaceAll(item.Title, " ", "_")))
		result := SearchResult{
			Title:   item.Title,
			URL:     pageURL,
			Snippet: stripHTML(item.Snippet),
			Source:  "wikipedia",
			Metadata: map[string]any{
				"pageId":    item.PageID,
				"wordCount": item.WordCount,
				"size":      item.Size,
				"namespace": item.NS,
				"original":  item,
			},
		}
		if t, ok := timeparse.Parse(item.Timestamp, now, time.RFC3339); ok {
			result.PublishedDate = &t
		}
		results = append(results, result)
	}
	return results, nil
}
