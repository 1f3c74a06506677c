package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const bingURL = "https://www.bing.com"

// BingCapabilities Bing 能力
var BingCapabilities = ProviderCapabilities{
	SearchTypes:          []SearchType{SearchTypeWeb, SearchTypeNews},
	SupportsPagination:   true,
	SupportsDomainFilter: true,
	SupportsSafeSearch:   true,
	SupportsLanguage:     true,
	SupportsRegion:       true,
	MaxResultsPerRequest: 50,
	RateLimit:            30,
}

// BingProvider Bing HTML 搜索
type BingProvider struct {
	baseProvider
	client  *http.Client
	baseURL string
	log     logrus.FieldLogger
}

// NewBingProvider 创建 Bing 提供方
func NewBingProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "bing"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = BingCapabilities
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = bingURL
	}
	return &BingProvider{
		baseProvider: baseProvider{cfg: cfg},
		client:       newHTTPClient(cfg),
		baseURL:      baseURL,
		log:          logrus.WithField("provider", cfg.Name),
	}, nil
}

// IsAvailable 无需凭证，始终可用
func (e *BingProvider) IsAvailable() bool {
	return true
}

// ExecuteSearch 执行 Bing 搜索，每页 10 条，最多翻 5 页
func (e *BingProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	limit := e.resultLimit(params)
	query := withSiteFilters(params.Query, params.IncludeDomains, params.ExcludeDomains)
	first := (params.Page - 1) * limit

	var hits []htmlHit
	for pn := 0; len(hits) < limit && pn < 5; pn++ {
		pageHits, err := e.searchPage(ctx, query, params, first+pn*10)
		if err != nil {
			if len(hits) > 0 {
				break
			}
			return nil, err
		}
		if len(pageHits) == 0 {
			break
		}
		hits = append(hits, pageHits...)
	}

	hits = dedupeHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Position = i + 1
	}
	return &htmlPayload{Provider: e.Name(), Page: params.Page, Hits: hits}, nil
}

// StandardizeRaw 转换为标准结果
func (e *BingProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	return standardizeHTMLHits(e.Name(), payload)
}

// searchPage 搜索单页结果
func (e *BingProvider) searchPage(ctx context.Context, query string, params *SearchParameters, offset int) ([]htmlHit, error) {
	path := "/search"
	if params.SearchType == SearchTypeNews {
		path = "/news/search"
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("first", fmt.Sprintf("%d", offset+1))
	values.Set("setlang", params.Language)
	values.Set("cc", params.Region)
	values.Set("adlt", bingSafeSearch(params.SafeSearch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	setBrowserHeaders(req, "en-US,en;q=0.9")

	body, err := doRequest(e.client, req, e.Name())
	if err != nil {
		return nil, err
	}
	e.log.WithField("bytes", len(body)).Debug("🔍 Bing response received")

	bodyStr := string(body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyStr))
	if err != nil {
		return nil, &ProviderError{Provider: e.Name(), Category: CategoryParsing, Err: fmt.Errorf("parse HTML failed: %w", err)}
	}

	var hits []htmlHit
	if params.SearchType == SearchTypeNews {
		hits = e.parseNews(doc)
	} else {
		hits = e.parseResults(doc)
	}

	// 标准解析没有结果时，尝试正则匹配
	if len(hits) == 0 && params.SearchType != SearchTypeNews {
		e.log.Debug("⚠️ Standard parsing found no results, trying regex extraction")
		hits = extractLinksWithRegex(bodyStr)
	}
	return hits, nil
}

// parseResults 解析网页搜索结果
func (e *BingProvider) parseResults(doc *goquery.Document) []htmlHit {
	var hits []htmlHit

	for _, selector := range []string{"li.b_algo", "#b_results > li.b_algo", ".b_algo"} {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			titleEl := s.Find("h2")
			href, exists := s.Find("h2 a").Attr("href")
			if titleEl.Length() == 0 || !exists || !strings.HasPrefix(href, "http") {
				return
			}

			snippet := ""
			for _, descSel := range []string{".b_caption p", "p", ".b_algoSlug"} {
				snippet = strings.TrimSpace(s.Find(descSel).First().Text())
				if snippet != "" {
					break
				}
			}

			hits = append(hits, htmlHit{
				Title:      strings.TrimSpace(titleEl.Text()),
				URL:        href,
				Snippet:    snippet,
				DisplayURL: strings.TrimSpace(s.Find("cite").First().Text()),
			})
		})
		if len(hits) > 0 {
			break
		}
	}
	return hits
}

// parseNews 解析新闻搜索结果
func (e *BingProvider) parseNews(doc *goquery.Document) []htmlHit {
	var hits []htmlHit
	doc.Find(".news-card").Each(func(i int, s *goquery.Selection) {
		linkEl := s.Find("a.title").First()
		href, exists := linkEl.Attr("href")
		if !exists || !strings.HasPrefix(href, "http") {
			return
		}
		hits = append(hits, htmlHit{
			Title:      strings.TrimSpace(linkEl.Text()),
			URL:        href,
			Snippet:    strings.TrimSpace(s.Find(".snippet").First().Text()),
			DisplayURL: strings.TrimSpace(s.AttrOr("data-author", "")),
		})
	})
	return hits
}

var bingLinkPattern = regexp.MustCompile(`<a[^>]*href="(https?://[^"]+)"[^>]*>([^<]+)</a>`)

// extractLinksWithRegex 使用正则表达式提取结果（备用方案）
func extractLinksWithRegex(html string) []htmlHit {
	var hits []htmlHit
	seen := make(map[string]bool)
	for _, match := range bingLinkPattern.FindAllStringSubmatch(html, -1) {
		href, title := match[1], strings.TrimSpace(match[2])
		if title == "" || seen[href] ||
			strings.Contains(href, "bing.com") ||
			strings.Contains(href, "microsoft.com") {
			continue
		}
		seen[href] = true
		hits = append(hits, htmlHit{Title: title, URL: href})
		if len(hits) >= 10 {
			break
		}
	}
	return hits
}

func bingSafeSearch(level SafeSearch) string {
	switch level {
	case SafeSearchOn:
		return "strict"
	case SafeSearchOff:
		return "off"
	default:
		return "moderate"
	}
}
