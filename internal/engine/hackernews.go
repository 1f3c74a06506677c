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

// HackerNewsCapabilities Hacker News 能力
var HackerNewsCapabilities = ProviderCapabilities{
	SearchTypes:          []SearchType{SearchTypeTechCommunity, SearchTypeNews, SearchTypeTrends},
	SupportsPagination:   true,
	SupportsDateFilter:   true,
	MaxResultsPerRequest: 100,
	RateLimit:            300,
}

// HackerNewsProvider 基于 Algolia HN Search API
type HackerNewsProvider struct {
	baseProvider
	client  *http.Client
	baseURL string
}

type hackerNewsHit struct {
	ObjectID    string   `json:"objectID"`
	Title       string   `json:"title"`
	StoryTitle  string   `json:"story_title"`
	URL         string   `json:"url"`
	StoryURL    string   `json:"story_url"`
	Author      string   `json:"author"`
	Points      int      `json:"points"`
	NumComments int      `json:"num_comments"`
	StoryText   string   `json:"story_text"`
	CommentText string   `json:"comment_text"`
	CreatedAt   string   `json:"created_at"`
	CreatedAtI  int64    `json:"created_at_i"`
	Tags        []string `json:"_tags"`
}

// hackerNewsPayload Algolia 搜索响应
type hackerNewsPayload struct {
	Hits        []hackerNewsHit `json:"hits"`
	NbHits      int             `json:"nbHits"`
	Page        int             `json:"page"`
	NbPages     int             `json:"nbPages"`
	HitsPerPage int             `json:"hitsPerPage"`
}

// Pagination Algolia 页码从 0 开始
func (p *hackerNewsPayload) Pagination() (total, page, pages int) {
	return p.NbHits, p.Page + 1, p.NbPages
}

// NewHackerNewsProvider 创建 Hacker News 提供方
func NewHackerNewsProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "hackernews"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = HackerNewsCapabilities
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://hn.algolia.com/api/v1"
	}
	return &HackerNewsProvider{
		baseProvider: baseProvider{cfg: cfg},
		client:       newHTTPClient(cfg),
		baseURL:      baseURL,
	}, nil
}

// IsAvailable 公共 API，无需凭证
func (e *HackerNewsProvider) IsAvailable() bool {
	return true
}

// ExecuteSearch 调用 Algolia 搜索；news/trends 按时间排序
func (e *HackerNewsProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	endpoint := e.baseURL + "/search"
	if params.SearchType == SearchTypeNews || params.SearchType == SearchTypeTrends {
		endpoint = e.baseURL + "/search_by_date"
	}

	values := url.Values{}
	values.Set("query", params.Query)
	values.Set("tags", "story")
	values.Set("hitsPerPage", fmt.Sprintf("%d", e.resultLimit(params)))
	values.Set("page", fmt.Sprintf("%d", params.Page-1))

	var filters []string
	if params.StartDate != nil {
		filters = append(filters, fmt.Sprintf("created_at_i>=%d", params.StartDate.Unix()))
	}
	if params.EndDate != nil {
		filters = append(filters, fmt.Sprintf("created_at_i<=%d", params.EndDate.Unix()))
	}
	if len(filters) > 0 {
		values.Set("numericFilters", strings.Join(filters, ","))
	}

	payload := &hackerNewsPayload{}
	if err := getJSON(ctx, e.client, e.Name(), endpoint+"?"+values.Encode(), nil, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// StandardizeRaw 转换为标准结果；没有外链的帖子指向讨论页
func (e *HackerNewsProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	p, ok := payload.(*hackerNewsPayload)
	if !ok {
		return nil, &StandardizationError{Provider: e.Name(), Err: unexpectedPayload(payload)}
	}

	now := time.Now()
	results := make([]SearchResult, 0, len(p.Hits))
	for _, hit := range p.Hits {
		title := firstNonEmpty(hit.Title, hit.StoryTitle)
		discussion := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		link := firstNonEmpty(hit.URL, hit.StoryURL, discussion)
		score := float64(hit.Points)

		result := SearchResult{
			Title:   title,
			URL:     link,
			Snippet: truncate(stripHTML(firstNonEmpty(hit.StoryText, hit.CommentText)), 300),
			Score:   &score,
			Source:  "hackernews",
			Metadata: map[string]any{
				"author":        hit.Author,
				"points":        hit.Points,
				"numComments":   hit.NumComments,
				"discussionUrl": discussion,
				"tags":          hit.Tags,
				"original":      hit,
			},
		}
		if t, ok := timeparse.Parse(hit.CreatedAt, now, "2006-01-02T15:04:05.000Z", time.RFC3339); ok {
			result.PublishedDate = &t
		} else if hit.CreatedAtI > 0 {
			t := time.Unix(hit.CreatedAtI, 0).UTC()
			result.PublishedDate = &t
		}
		results = append(results, result)
	}
	return results, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
