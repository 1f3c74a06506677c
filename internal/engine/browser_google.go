package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserGoogleCapabilities 浏览器版 Google 能力
var BrowserGoogleCapabilities = ProviderCapabilities{
	SearchTypes:          []SearchType{SearchTypeWeb},
	SupportsPagination:   true,
	SupportsDateFilter:   true,
	SupportsDomainFilter: true,
	SupportsSafeSearch:   true,
	SupportsLanguage:     true,
	SupportsRegion:       true,
	MaxResultsPerRequest: 30,
	RateLimit:            10,
}

// BrowserGoogleProvider 使用无头浏览器的 Google 搜索
type BrowserGoogleProvider struct {
	baseProvider
	browser *BrowserManager
	timeout time.Duration
}

// NewBrowserGoogleFactory 返回绑定浏览器管理器的提供方工厂
func NewBrowserGoogleFactory(bm *BrowserManager) Factory {
	return func(cfg ProviderConfig) (Provider, error) {
		if bm == nil {
			return nil, &ConfigurationError{Provider: "browser_google", Message: "browser manager is nil"}
		}
		if cfg.Name == "" {
			cfg.Name = "browser_google"
		}
		if len(cfg.Capabilities.SearchTypes) == 0 {
			cfg.Capabilities = BrowserGoogleCapabilities
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		return &BrowserGoogleProvider{
			baseProvider: baseProvider{cfg: cfg},
			browser:      bm,
			timeout:      timeout,
		}, nil
	}
}

// IsAvailable 本机安装了 Chrome 时可用
func (e *BrowserGoogleProvider) IsAvailable() bool {
	return e.browser.ChromePath() != ""
}

// ExecuteSearch 使用浏览器执行 Google 搜索，最多 3 页
func (e *BrowserGoogleProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	limit := e.resultLimit(params)
	query := withSiteFilters(params.Query, params.IncludeDomains, params.ExcludeDomains)
	query = withDateOperators(query, params.StartDate, params.EndDate)

	var hits []htmlHit
	startPage := (params.Page - 1) * ((limit + 9) / 10)
	for page := startPage; len(hits) < limit && page < startPage+3; page++ {
		pageHits, err := e.searchPage(ctx, query, params, page)
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
func (e *BrowserGoogleProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	return standardizeHTMLHits(e.Name(), payload)
}

// searchPage 搜索单页
func (e *BrowserGoogleProvider) searchPage(ctx context.Context, query string, params *SearchParameters, page int) ([]htmlHit, error) {
	tabCtx, cancel, err := e.browser.NewTab(ctx, e.timeout)
	if err != nil {
		return nil, &ProviderError{Provider: e.Name(), Category: CategoryConfiguration, Err: err}
	}
	defer cancel()

	values := url.Values{}
	values.Set("q", query)
	values.Set("start", fmt.Sprintf("%d", page*10))
	values.Set("hl", params.Language)
	values.Set("gl", params.Region)
	if params.SafeSearch == SafeSearchOn {
		values.Set("safe", "active")
	}
	searchURL := "https://www.google.com/search?" + values.Encode()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("#search", chromedp.ByID),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: e.Name(), Err: fmt.Errorf("browser navigation failed: %w", err)}
	}

	return parseGoogleHTML(html)
}

// parseGoogleHTML 解析 Google 结果页
func parseGoogleHTML(html string) ([]htmlHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ProviderError{Provider: "browser_google", Category: CategoryParsing, Err: fmt.Errorf("parse HTML failed: %w", err)}
	}

	var hits []htmlHit
	for _, selector := range []string{"div.g", "div[data-ved]", "div.Gx5Zad"} {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			// 避免嵌套容器重复
			if selector != "div.g" && s.Find("div.g").Length() > 0 {
				return
			}
			href, exists := s.Find("a[href]").First().Attr("href")
			if !exists || !strings.HasPrefix(href, "http") ||
				strings.Contains(href, "google.com") ||
				strings.Contains(href, "webcache.googleusercontent.com") {
				return
			}
			title := strings.TrimSpace(s.Find("h3").First().Text())
			if title == "" {
				return
			}

			snippet := ""
			for _, descSel := range []string{"div[data-sncf]", "div.VwiC3b", "span.aCOpRe", "div.IsZvec"} {
				snippet = strings.TrimSpace(s.Find(descSel).First().Text())
				if snippet != "" {
					break
				}
			}

			hits = append(hits, htmlHit{
				Title:      title,
				URL:        href,
				Snippet:    snippet,
				DisplayURL: strings.TrimSpace(s.Find("cite").First().Text()),
			})
		})
		if len(hits) > 0 {
			break
		}
	}
	return dedupeHits(hits), nil
}
