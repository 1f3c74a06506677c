package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

// GoogleNewsCapabilities Google News RSS 能力
var GoogleNewsCapabilities = ProviderCapabilities{
	SearchTypes:          []SearchType{SearchTypeNews, SearchTypeTrends},
	SupportsDateFilter:   true,
	SupportsDomainFilter: true,
	SupportsLanguage:     true,
	SupportsRegion:       true,
	MaxResultsPerRequest: 100,
	RateLimit:            60,
}

// GoogleNewsProvider Google News RSS 搜索
type GoogleNewsProvider struct {
	baseProvider
	parser  *gofeed.Parser
	baseURL string
}

// NewGoogleNewsProvider 创建 Google News 提供方
func NewGoogleNewsProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "google_news"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = GoogleNewsCapabilities
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://news.google.com/rss/search"
	}
	parser := gofeed.NewParser()
	parser.Client = newHTTPClient(cfg)
	parser.UserAgent = browserUserAgent
	return &GoogleNewsProvider{
		baseProvider: baseProvider{cfg: cfg},
		parser:       parser,
		baseURL:      baseURL,
	}, nil
}

// IsAvailable 公共 RSS，无需凭证
func (e *GoogleNewsProvider) IsAvailable() bool {
	return true
}

// ExecuteSearch 拉取并解析 RSS
func (e *GoogleNewsProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	query := withSiteFilters(params.Query, params.IncludeDomains, params.ExcludeDomains)
	query = withDateOperators(query, params.StartDate, params.EndDate)

	region := strings.ToUpper(params.Region)
	values := url.Values{}
	values.Set("q", query)
	values.Set("hl", fmt.Sprintf("%s-%s", params.Language, region))
	values.Set("gl", region)
	values.Set("ceid", fmt.Sprintf("%s:%s", region, params.Language))

	feed, err := e.parser.ParseURLWithContext(e.baseURL+"?"+values.Encode(), ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, NewProviderError(e.Name(), httpErr.StatusCode, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: e.Name(), Err: fmt.Errorf("fetch feed failed: %w", err)}
	}

	limit := e.resultLimit(params)
	if len(feed.Items) > limit {
		feed.Items = feed.Items[:limit]
	}
	return feed, nil
}

// StandardizeRaw 转换 RSS 条目
func (e *GoogleNewsProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	feed, ok := payload.(*gofeed.Feed)
	if !ok {
		return nil, &StandardizationError{Provider: e.Name(), Err: unexpectedPayload(payload)}
	}

	now := time.Now()
	results := make([]SearchResult, 0, len(feed.Items))
	for _, item := range feed.Items {
		title, publisher := splitNewsTitle(item.Title)
		meta := map[string]any{
			"guid":     item.GUID,
			"original": item,
		}
		if publisher != "" {
			meta["publisher"] = publisher
		}
		if len(item.Categories) > 0 {
			meta["categories"] = item.Categories
		}

		result := SearchResult{
			Title:    title,
			URL:      item.Link,
			Snippet:  stripHTML(item.Description),
			Source:   publisher,
			Metadata: meta,
		}
		if result.Source == "" {
			result.Source = sourceLabel(item.Link, e.Name())
		}
		switch {
		case item.PublishedParsed != nil:
			t := *item.PublishedParsed
			result.PublishedDate = &t
		case item.Published != "":
			if t, ok := timeparse.Parse(item.Published, now, time.RFC1123, time.RFC1123Z); ok {
				result.PublishedDate = &t
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// splitNewsTitle Google News 标题格式为 "Headline - Publisher"
func splitNewsTitle(title string) (string, string) {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return strings.TrimSpace(title), ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}
