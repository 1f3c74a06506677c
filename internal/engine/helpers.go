package engine

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// htmlHit HTML 抓取类提供方的一条原始结果
type htmlHit struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Snippet    string `json:"snippet"`
	DisplayURL string `json:"displayUrl,omitempty"`
	Position   int    `json:"position"`
}

// htmlPayload HTML 抓取类提供方的原始响应
type htmlPayload struct {
	Provider string    `json:"provider"`
	Page     int       `json:"page"`
	Hits     []htmlHit `json:"hits"`
}

// standardizeHTMLHits 将 HTML 抓取结果转换为标准结果
func standardizeHTMLHits(provider string, payload any) ([]SearchResult, error) {
	p, ok := payload.(*htmlPayload)
	if !ok {
		return nil, &StandardizationError{Provider: provider, Err: unexpectedPayload(payload)}
	}
	results := make([]SearchResult, 0, len(p.Hits))
	for _, hit := range p.Hits {
		meta := map[string]any{
			"position": hit.Position,
			"original": hit,
		}
		if hit.DisplayURL != "" {
			meta["displayUrl"] = hit.DisplayURL
		}
		results = append(results, SearchResult{
			Title:    hit.Title,
			URL:      hit.URL,
			Snippet:  hit.Snippet,
			Source:   sourceLabel(hit.URL, provider),
			Metadata: meta,
		})
	}
	return results, nil
}

// withSiteFilters 把域名过滤条件拼接进查询语句
func withSiteFilters(query string, include, exclude []string) string {
	var b strings.Builder
	b.WriteString(query)
	if len(include) > 0 {
		sites := make([]string, 0, len(include))
		for _, d := range include {
			sites = append(sites, "site:"+d)
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(sites, " OR "))
		b.WriteString(")")
	}
	for _, d := range exclude {
		b.WriteString(" -site:")
		b.WriteString(d)
	}
	return b.String()
}

// withDateOperators 把日期范围拼接为 after:/before: 查询操作符
func withDateOperators(query string, start, end *time.Time) string {
	if start != nil {
		query += " after:" + start.Format("2006-01-02")
	}
	if end != nil {
		query += " before:" + end.Format("2006-01-02")
	}
	return query
}

// sourceLabel 结果来源标签，默认为域名
func sourceLabel(rawURL, fallback string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return fallback
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// stripHTML 去除 HTML 标签
func stripHTML(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}

// truncate 截断过长文本
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	// 按字符截断，避免切开多字节字符
	n := 0
	for i := range value {
		if n == limit {
			return value[:i] + "..."
		}
		n++
	}
	return value
}

// dedupeHits 按 URL 去重
func dedupeHits(hits []htmlHit) []htmlHit {
	seen := make(map[string]bool, len(hits))
	out := make([]htmlHit, 0, len(hits))
	for _, h := range hits {
		if seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		out = append(out, h)
	}
	return out
}

func unexpectedPayload(payload any) error {
	return fmt.Errorf("unexpected payload type %T", payload)
}
