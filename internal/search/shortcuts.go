package search

import (
	"context"
	"strings"

	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

// preset 复制原始参数，强制搜索类型并补充默认值
func preset(raw map[string]any, t engine.SearchType, defaults map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+len(defaults)+1)
	for k, v := range raw {
		out[k] = v
	}
	delete(out, "search_type")
	out["searchType"] = string(t)
	for k, v := range defaults {
		if _, ok := out[k]; ok {
			continue
		}
		if _, ok := out[snakeCase(k)]; ok {
			continue
		}
		out[k] = v
	}
	return out
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// News 新闻搜索
func (s *Service) News(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	return s.Search(ctx, preset(raw, engine.SearchTypeNews, nil))
}

// Educational 百科/教育类搜索
func (s *Service) Educational(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	return s.Search(ctx, preset(raw, engine.SearchTypeEducational, map[string]any{
		"safesearch": string(engine.SafeSearchOn),
	}))
}

// Research 深度研究搜索，默认 advanced 深度
func (s *Service) Research(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	return s.Search(ctx, preset(raw, engine.SearchTypeResearch, map[string]any{
		"searchDepth": string(engine.SearchDepthAdvanced),
	}))
}

// Tech 技术社区搜索
func (s *Service) Tech(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	return s.Search(ctx, preset(raw, engine.SearchTypeTechCommunity, nil))
}

// Events 活动搜索，location 必填
func (s *Service) Events(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	params := preset(raw, engine.SearchTypeEvents, nil)
	if err := requireFields(params, "location"); err != nil {
		return s.rejected(params, err)
	}
	return s.Search(ctx, params)
}

// Flights 航班搜索；departure_id、arrival_id、outbound_date 必填，日期统一为 YYYY-MM-DD
func (s *Service) Flights(ctx context.Context, raw map[string]any) *engine.SearchResponse {
	params := preset(raw, engine.SearchTypeFlights, map[string]any{"currency": "USD"})
	if _, ok := params["query"]; !ok {
		if dep, ok := params["departure_id"].(string); ok {
			arr, _ := params["arrival_id"].(string)
			params["query"] = strings.TrimSpace(dep + " to " + arr)
		}
	}
	if err := requireFields(params, "departure_id", "arrival_id", "outbound_date"); err != nil {
		return s.rejected(params, err)
	}
	for _, key := range []string{"outbound_date", "return_date"} {
		v, ok := params[key].(string)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		t, err := timeparse.ParseInput(v)
		if err != nil {
			return s.rejected(params, &engine.ValidationError{Field: key, Value: v, Message: "unrecognized date format"})
		}
		params[key] = t.Format("2006-01-02")
	}
	return s.Search(ctx, params)
}

func requireFields(raw map[string]any, keys ...string) error {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			return &engine.ValidationError{Field: key, Value: nil, Message: "required"}
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return &engine.ValidationError{Field: key, Value: v, Message: "required"}
		}
	}
	return nil
}

func (s *Service) rejected(raw map[string]any, err error) *engine.SearchResponse {
	resp := s.handler.ErrorResponse(err, partialParams(raw), "", 0)
	resp.SetMetadata("requestId", newRequestID())
	return resp
}
