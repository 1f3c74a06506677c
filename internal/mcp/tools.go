package mcp

import (
	"github.com/cliffyan/go-web-search-router/internal/engine"
)

// 工具名称
const (
	ToolSearch            = "search"
	ToolSearchNews        = "search_news"
	ToolSearchEducational = "search_educational"
	ToolSearchResearch    = "search_research"
	ToolSearchTech        = "search_tech"
	ToolSearchEvents      = "search_events"
	ToolSearchFlights     = "search_flights"
	ToolProviderInfo      = "provider_info"
)

// providerEnum provider 参数可选值
func providerEnum() []string {
	return append([]string{engine.ProviderAuto}, engine.BuiltinNames...)
}

func searchTypeEnum() []string {
	out := make([]string, 0, len(engine.AllSearchTypes))
	for _, t := range engine.AllSearchTypes {
		out = append(out, string(t))
	}
	return out
}

// commonProperties 所有搜索工具共享的参数
func commonProperties() map[string]Property {
	return map[string]Property{
		"query": {
			Type:        "string",
			Description: "The search query string",
		},
		"provider": {
			Type:        "string",
			Description: "Provider to use. 'auto' selects one from the search type and query content.",
			Default:     engine.ProviderAuto,
			Enum:        providerEnum(),
		},
		"maxResults": {
			Type:        "number",
			Description: "Maximum number of results to return (1-100, default: 10)",
			Default:     10,
		},
		"language": {
			Type:        "string",
			Description: "Two-letter language code, e.g. en",
		},
		"region": {
			Type:        "string",
			Description: "Two-letter region code, e.g. us",
		},
		"safesearch": {
			Type:        "string",
			Description: "Safe search level",
			Enum:        []string{string(engine.SafeSearchOn), string(engine.SafeSearchModerate), string(engine.SafeSearchOff)},
		},
		"includeDomains": {
			Type:        "array",
			Description: "Only return results from these domains (max 10)",
			Items:       &Items{Type: "string"},
		},
		"excludeDomains": {
			Type:        "array",
			Description: "Never return results from these domains (max 10)",
			Items:       &Items{Type: "string"},
		},
		"startDate": {
			Type:        "string",
			Description: "Earliest publication date, e.g. 2024-01-31",
		},
		"endDate": {
			Type:        "string",
			Description: "Latest publication date, e.g. 2024-12-31",
		},
		"page": {
			Type:        "number",
			Description: "Result page (default: 1)",
			Default:     1,
		},
	}
}

func withProperties(base map[string]Property, extra map[string]Property) map[string]Property {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func without(base map[string]Property, keys ...string) map[string]Property {
	for _, k := range keys {
		delete(base, k)
	}
	return base
}

// GetTools 获取所有 MCP 工具定义
func GetTools() []Tool {
	return []Tool{
		{
			Name:        ToolSearch,
			Description: "Search across multiple providers (DuckDuckGo, Bing, Wikipedia, Google News, Hacker News, Tavily, SerpAPI) with automatic provider selection and fallback. Returns a standardized response with title, URL, snippet, date and source.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: withProperties(commonProperties(), map[string]Property{
					"searchType": {
						Type:        "string",
						Description: "Search category (default: web)",
						Default:     string(engine.SearchTypeWeb),
						Enum:        searchTypeEnum(),
					},
					"searchDepth": {
						Type:        "string",
						Description: "Search depth for providers that support content extraction",
						Enum:        []string{string(engine.SearchDepthBasic), string(engine.SearchDepthStandard), string(engine.SearchDepthAdvanced)},
					},
					"includeImages": {
						Type:        "boolean",
						Description: "Include image results where supported",
					},
				}),
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolSearchNews,
			Description: "Search recent news articles. Dates in the future are rejected.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: commonProperties(),
				Required:   []string{"query"},
			},
		},
		{
			Name:        ToolSearchEducational,
			Description: "Search encyclopedic and educational sources with safe search enabled.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: without(commonProperties(), "startDate", "endDate"),
				Required:   []string{"query"},
			},
		},
		{
			Name:        ToolSearchResearch,
			Description: "In-depth research search. Uses advanced search depth unless specified.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: withProperties(commonProperties(), map[string]Property{
					"searchDepth": {
						Type:        "string",
						Description: "Search depth (default: advanced)",
						Default:     string(engine.SearchDepthAdvanced),
						Enum:        []string{string(engine.SearchDepthBasic), string(engine.SearchDepthStandard), string(engine.SearchDepthAdvanced)},
					},
				}),
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolSearchTech,
			Description: "Search developer and tech community discussions.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: commonProperties(),
				Required:   []string{"query"},
			},
		},
		{
			Name:        ToolSearchEvents,
			Description: "Search upcoming events near a location.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: withProperties(commonProperties(), map[string]Property{
					"location": {
						Type:        "string",
						Description: "City or venue to search around",
					},
				}),
				Required: []string{"query", "location"},
			},
		},
		{
			Name:        ToolSearchFlights,
			Description: "Search flights between two airports. Dates accept most common formats and are normalized to YYYY-MM-DD.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: without(withProperties(commonProperties(), map[string]Property{
					"departure_id": {
						Type:        "string",
						Description: "Departure airport code, e.g. JFK",
					},
					"arrival_id": {
						Type:        "string",
						Description: "Arrival airport code, e.g. LAX",
					},
					"outbound_date": {
						Type:        "string",
						Description: "Outbound date",
					},
					"return_date": {
						Type:        "string",
						Description: "Return date for round trips",
					},
					"currency": {
						Type:        "string",
						Description: "Price currency (default: USD)",
						Default:     "USD",
					},
				}), "includeDomains", "excludeDomains", "startDate", "endDate", "safesearch"),
				Required: []string{"departure_id", "arrival_id", "outbound_date"},
			},
		},
		{
			Name:        ToolProviderInfo,
			Description: "Report health, supported parameters, capabilities and circuit state for one provider or all of them.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"provider": {
						Type:        "string",
						Description: "Provider name; omit for all providers",
						Enum:        engine.BuiltinNames,
					},
				},
			},
		},
	}
}
