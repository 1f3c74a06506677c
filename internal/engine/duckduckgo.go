package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const duckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGoCapabilities DuckDuckGo 能力
var DuckDuckGoCapabilities = ProviderCapabilities{
	SearchTypes:          []SearchType{SearchTypeWeb, SearchTypeEducational, SearchTypeResearch, SearchTypeTechCommunity},
	SupportsPagination:   true,
	SupportsDomainFilter: true,
	SupportsSafeSearch:   true,
	SupportsLanguage:     true,
	SupportsRegion:       true,
	MaxResultsPerRequest: 30,
	RateLimit:            30,
}

// DuckDuckGoProvider DuckDuckGo HTML 版搜索
type DuckDuckGoProvider struct {
	baseProvider
	client  *http.Client
	baseURL string
}

// NewDuckDuckGoProvider 创建 DuckDuckGo 提供方
func NewDuckDuckGoProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "duckduckgo"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = DuckDuckGoCapabilities
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = duckDuckGoURL
	}
	return &DuckDuckGoProvider{
		baseProvider: baseProvider{cfg: cfg},
		client:       newHTTPClient(cfg),
		baseURL:      baseURL,
	}, nil
}

// IsAvailable 无需凭证，始终可用
func (e *DuckDuckGoProvider) IsAvailable() bool {
	return true
}

// ExecuteSearch 执行 DuckDuckGo 搜索
func (e *DuckDuckGoProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	limit := e.resultLimit(params)
	query := withSiteFilters(params.Query, params.IncludeDomains, params.ExcludeDomains)

	values := url.Values{}
	values.Set("q", query)
	values.Set("kl", fmt.Sprintf("%s-%s", params.Region, params.Language))
	values.Set("kp", duckDuckGoSafeSearch(params.SafeSearch))
	if params.Page > 1 {
		values.Set("s", fmt.Sprintf("%d", (params.Page-1)*30))
		values.Set("dc", fmt.Sprintf("%d", (params.Page-1)*30+1))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	setBrowserHeaders(req, params.Language+";q=0.9,en;q=0.8")

	body, err := doRequest(e.client, req, e.Name())
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, &ProviderError{Provider: e.Name(), Category: CategoryParsing, Err: fmt.Errorf("parse HTML failed: %w", err)}
	}

	hits := e.parseResults(doc, limit)
	return &htmlPayload{Provider: e.Name(), Page: params.Page, Hits: hits}, nil
}

// StandardizeRaw 转换为标准结果
func (e *DuckDuckGoProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	return standardizeHTMLHits(e.Name(), payload)
}

// parseResults 解析搜索结果
func (e *DuckDuckGoProvider) parseResults(doc *goquery.Document, limit int) []htmlHit {
	var hits []htmlHit

	doc.Find(".result").Each(func(i int, s *goquery.Selection) {
		if len(hits) >= limit {
			return
		}
		titleEl := s.Find(".result__title")
		linkEl := s.Find(".result__a")
		if titleEl.Length() == 0 || linkEl.Length() == 0 {
			return
		}

		href, exists := linkEl.Attr("href")
		if !exists {
			return
		}
		href = resolveDuckDuckGoLink(href)
		if href == "" || !strings.HasPrefix(href, "http") {
			return
		}

		hits = append(hits, htmlHit{
			Title:      strings.TrimSpace(titleEl.Text()),
			URL:        href,
			Snippet:    strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			DisplayURL: strings.TrimSpace(s.Find(".result__url").First().Text()),
			Position:   len(hits) + 1,
		})
	})

	return dedupeHits(hits)
}

// resolveDuckDuckGoLink 解析重定向链接 //duckduckgo.com/l/?uddg=...
func resolveDuckDuckGoLink(href string) string {
	if strings.HasPrefix(href, "//duckduckgo.com/l/") || strings.HasPrefix(href, "/l/") {
		if strings.HasPrefix(href, "/l/") {
			href = "//duckduckgo.com" + href
		}
		if parsed, err := url.Parse("https:" + href); err == nil {
			return parsed.Query().Get("uddg")
		}
		return ""
	}
	return href
}

func duckDuckGoSafeSearch(level SafeSearch) string {
	switch level {
	case SafeSearchOn:
		return "1"
	case SafeSearchOff:
		return "-2"
	default:
		return "-1"
	}
}
