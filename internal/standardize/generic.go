package standardize

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

var (
	titleKeys   = []string{"title", "name", "headline"}
	urlKeys     = []string{"url", "link", "href"}
	snippetKeys = []string{"snippet", "description", "content", "body"}
	dateKeys    = []string{"published_date", "publishedDate", "published", "date", "pubDate", "created_at", "createdAt", "timestamp"}
	scoreKeys   = []string{"score", "relevance", "rank"}
	sourceKeys  = []string{"source", "publisher", "site", "domain"}
	listKeys    = []string{"results", "items", "data", "hits", "articles"}
)

// Generic 通用转换：接受列表，或在 results/items/data/hits/articles 下包含列表的对象
func Generic(raw any, provider string, now time.Time) ([]engine.SearchResult, error) {
	if raw == nil {
		return []engine.SearchResult{}, nil
	}
	value, err := toGeneric(raw)
	if err != nil {
		return nil, &engine.StandardizationError{Provider: provider, Err: fmt.Errorf("decode payload: %w", err)}
	}

	items, ok := findItems(value)
	if !ok {
		return nil, &engine.StandardizationError{Provider: provider, Err: fmt.Errorf("unrecognized payload shape %T", raw)}
	}

	results := make([]engine.SearchResult, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if r, ok := convertItem(obj, provider, now); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func findItems(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := v[key].([]any); ok {
				return list, true
			}
		}
		// data: {results: [...]} 这种嵌套一层的情况
		for _, key := range listKeys {
			if nested, ok := v[key].(map[string]any); ok {
				if list, ok := findItems(nested); ok {
					return list, true
				}
			}
		}
	}
	return nil, false
}

// convertItem 至少需要标题或链接之一
func convertItem(obj map[string]any, provider string, now time.Time) (engine.SearchResult, bool) {
	used := map[string]bool{}
	title := pickString(obj, titleKeys, used)
	link := pickString(obj, urlKeys, used)
	if title == "" && link == "" {
		return engine.SearchResult{}, false
	}
	if title == "" {
		title = link
	}

	result := engine.SearchResult{
		Title:   title,
		URL:     link,
		Snippet: pickString(obj, snippetKeys, used),
		Source:  pickString(obj, sourceKeys, used),
	}
	if result.Source == "" {
		result.Source = hostOf(link, provider)
	}

	for _, key := range dateKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if t, ok := parseDate(v, now); ok {
			result.PublishedDate = &t
			used[key] = true
			break
		}
	}
	for _, key := range scoreKeys {
		if f, ok := obj[key].(float64); ok {
			result.Score = &f
			used[key] = true
			break
		}
	}

	meta := map[string]any{"original": obj}
	for key, v := range obj {
		if !used[key] {
			meta[key] = v
		}
	}
	result.Metadata = meta
	return result, true
}

func pickString(obj map[string]any, keys []string, used map[string]bool) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				used[key] = true
				return s
			}
		case map[string]any:
			// 例如 source: {name: "..."}
			if s, ok := v["name"].(string); ok && s != "" {
				used[key] = true
				return s
			}
		}
	}
	return ""
}

func parseDate(v any, now time.Time) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		return timeparse.Parse(x, now)
	case float64:
		if x <= 0 {
			return time.Time{}, false
		}
		// 毫秒时间戳
		if x > 1e12 {
			return time.UnixMilli(int64(x)).UTC(), true
		}
		return time.Unix(int64(x), 0).UTC(), true
	}
	return time.Time{}, false
}

func hostOf(link, fallback string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return fallback
	}
	return strings.TrimPrefix(u.Host, "www.")
}
