package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

// SerpAPICapabilities SerpAPI 能力
var SerpAPICapabilities = ProviderCapabilities{
	SearchTypes: []SearchType{
		SearchTypeWeb, SearchTypeNews, SearchTypeEvents,
		SearchTypeFlights, SearchTypeFinancial,
	},
	SupportsPagination:   true,
	SupportsDateFilter:   true,
	SupportsDomainFilter: true,
	SupportsSafeSearch:   true,
	SupportsLanguage:     true,
	SupportsRegion:       true,
	MaxResultsPerRequest: 100,
	RateLimit:            60,
}

// SerpAPIProvider SerpAPI（Google 各垂直搜索），需要 API key
type SerpAPIProvider struct {
	baseProvider
	client  *http.Client
	baseURL string
}

type serpOrganicResult struct {
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	DisplayedLink string `json:"displayed_link"`
	Snippet       string `json:"snippet"`
	Date          string `json:"date"`
	Source        string `json:"source"`
}

type serpNewsResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date"`
	Source   struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	} `json:"source"`
}

type serpEventResult struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	Address     []string `json:"address"`
	Date        struct {
		StartDate string `json:"start_date"`
		When      string `json:"when"`
	} `json:"date"`
	Venue struct {
		Name    string  `json:"name"`
		Rating  float64 `json:"rating"`
		Reviews int     `json:"reviews"`
	} `json:"venue"`
	TicketInfo []map[string]any `json:"ticket_info"`
}

type serpFlightLeg struct {
	DepartureAirport struct {
		Name string `json:"name"`
		ID   string `json:"id"`
		Time string `json:"time"`
	} `json:"departure_airport"`
	ArrivalAirport struct {
		Name string `json:"name"`
		ID   string `json:"id"`
		Time string `json:"time"`
	} `json:"arrival_airport"`
	Duration     int    `json:"duration"`
	Airline      string `json:"airline"`
	FlightNumber string `json:"flight_number"`
	TravelClass  string `json:"travel_class"`
}

type serpFlightOption struct {
	Flights       []serpFlightLeg  `json:"flights"`
	Layovers      []map[string]any `json:"layovers"`
	TotalDuration int              `json:"total_duration"`
	Price         float64          `json:"price"`
	Type          string           `json:"type"`
	BookingToken  string           `json:"booking_token"`
}

// serpAPIPayload SerpAPI 响应，字段按 engine 不同而填充
type serpAPIPayload struct {
	Engine         string `json:"-"`
	Currency       string `json:"-"`
	Page           int    `json:"-"`
	PageSize       int    `json:"-"`
	Error          string `json:"error"`
	SearchMetadata struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		GoogleURL        string `json:"google_url"`
		GoogleFlightsURL string `json:"google_flights_url"`
	} `json:"search_metadata"`
	SearchInformation struct {
		TotalResults int `json:"total_results"`
	} `json:"search_information"`
	OrganicResults []serpOrganicResult `json:"organic_results"`
	NewsResults    []serpNewsResult    `json:"news_results"`
	EventsResults  []serpEventResult   `json:"events_results"`
	BestFlights    []serpFlightOption  `json:"best_flights"`
	OtherFlights   []serpFlightOption  `json:"other_flights"`
}

// Pagination 仅网页搜索返回总数
func (p *serpAPIPayload) Pagination() (total, page, pages int) {
	total = p.SearchInformation.TotalResults
	page = p.Page
	if p.PageSize > 0 && total > 0 {
		pages = (total + p.PageSize - 1) / p.PageSize
	}
	return total, page, pages
}

// NewSerpAPIProvider 创建 SerpAPI 提供方
func NewSerpAPIProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "serpapi"
	}
	cfg.RequiresAPIKey = true
	if cfg.APIKeyName == "" {
		cfg.APIKeyName = "SERPAPI_API_KEY"
	}
	if len(cfg.Capabilities.SearchTypes) == 0 {
		cfg.Capabilities = SerpAPICapabilities
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://serpapi.com/search.json"
	}
	return &SerpAPIProvider{
		baseProvider: baseProvider{cfg: cfg},
		client:       newHTTPClient(cfg),
		baseURL:      baseURL,
	}, nil
}

// IsAvailable 配置了 API key 即视为可用
func (e *SerpAPIProvider) IsAvailable() bool {
	return e.CredentialConfigured()
}

// ExecuteSearch 按搜索类型选择 SerpAPI engine
func (e *SerpAPIProvider) ExecuteSearch(ctx context.Context, params *SearchParameters) (any, error) {
	if err := e.requireKey(); err != nil {
		return nil, err
	}

	limit := e.resultLimit(params)
	values := url.Values{}
	values.Set("api_key", e.cfg.APIKey)
	values.Set("hl", params.Language)
	values.Set("gl", params.Region)

	serpEngine := "google"
	switch params.SearchType {
	case SearchTypeNews:
		serpEngine = "google_news"
		values.Set("q", withSiteFilters(params.Query, params.IncludeDomains, params.ExcludeDomains))
	case SearchTypeEvents:
		serpEngine = "google_events"
		q := params.Query
		if loc := params.Additional("location"); loc != "" {
			q += " in " + loc
			values.Set("location", loc)
		}
		values.Set("q", q)
		if chips := params.Additional("htichips"); chips != "" {
			values.Set("htichips", chips)
		}
	case SearchTypeFlights:
		serpEngine = "google_flights"
		for _, key := range []string{"departure_id", "arrival_id", "outbound_date"} {
			if params.Additional(key) == "" {
				return nil, &ValidationError{Field: key, Message: "required for flight search"}
			}
			values.Set(key, params.Additional(key))
		}
		if ret := params.Additional("return_date"); ret != "" {
			values.Set("return_date", ret)
			values.Set("type", "1")
		} else {
			values.Set("type", "2")
		}
		values.Set("currency", firstNonEmpty(params.Additional("currency"), "USD"))
	default:
		q := withSiteFilters(params.Query, params.IncludeDomains, params.ExcludeDomains)
		values.Set("q", q)
		values.Set("num", fmt.Sprintf("%d", limit))
		values.Set("start", fmt.Sprintf("%d", (params.Page-1)*limit))
		values.Set("safe", serpSafeSearch(params.SafeSearch))
		if tbs := serpDateRange(params.StartDate, params.EndDate); tbs != "" {
			values.Set("tbs", tbs)
		}
	}
	values.Set("engine", serpEngine)

	payload := &serpAPIPayload{
		Engine:   serpEngine,
		Currency: values.Get("currency"),
		Page:     params.Page,
		PageSize: limit,
	}
	if err := getJSON(ctx, e.client, e.Name(), e.baseURL+"?"+values.Encode(), nil, payload); err != nil {
		return nil, err
	}
	if payload.Error != "" && !strings.Contains(strings.ToLower(payload.Error), "hasn't returned any results") {
		return nil, &ProviderError{Provider: e.Name(), Err: errors.New(payload.Error)}
	}
	trimSerpPayload(payload, limit)
	return payload, nil
}

func trimSerpPayload(p *serpAPIPayload, limit int) {
	if len(p.OrganicResults) > limit {
		p.OrganicResults = p.OrganicResults[:limit]
	}
	if len(p.NewsResults) > limit {
		p.NewsResults = p.NewsResults[:limit]
	}
	if len(p.EventsResults) > limit {
		p.EventsResults = p.EventsResults[:limit]
	}
}

// StandardizeRaw 按 engine 转换为标准结果
func (e *SerpAPIProvider) StandardizeRaw(payload any) ([]SearchResult, error) {
	p, ok := payload.(*serpAPIPayload)
	if !ok {
		return nil, &StandardizationError{Provider: e.Name(), Err: unexpectedPayload(payload)}
	}

	now := time.Now()
	var results []SearchResult
	switch p.Engine {
	case "google_news":
		for _, item := range p.NewsResults {
			r := SearchResult{
				Title:    item.Title,
				URL:      item.Link,
				Snippet:  item.Snippet,
				Source:   firstNonEmpty(item.Source.Name, sourceLabel(item.Link, e.Name())),
				Metadata: map[string]any{"position": item.Position, "original": item},
			}
			if t, ok := timeparse.Parse(item.Date, now, "01/02/2006, 03:04 PM, -0700 MST"); ok {
				r.PublishedDate = &t
			}
			results = append(results, r)
		}
	case "google_events":
		for _, item := range p.EventsResults {
			results = append(results, SearchResult{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: firstNonEmpty(item.Description, item.Date.When),
				Source:  firstNonEmpty(item.Venue.Name, sourceLabel(item.Link, e.Name())),
				Metadata: map[string]any{
					"when":      item.Date.When,
					"startDate": item.Date.StartDate,
					"address":   item.Address,
					"venue":     item.Venue,
					"tickets":   item.TicketInfo,
					"original":  item,
				},
			})
		}
	case "google_flights":
		link := firstNonEmpty(p.SearchMetadata.GoogleFlightsURL, p.SearchMetadata.GoogleURL)
		options := append(append([]serpFlightOption{}, p.BestFlights...), p.OtherFlights...)
		for i, opt := range options {
			results = append(results, flightResult(opt, link, p.Currency, i < len(p.BestFlights)))
		}
	default:
		for _, item := range p.OrganicResults {
			r := SearchResult{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: item.Snippet,
				Source:  firstNonEmpty(item.Source, sourceLabel(item.Link, e.Name())),
				Metadata: map[string]any{
					"position":      item.Position,
					"displayedLink": item.DisplayedLink,
					"original":      item,
				},
			}
			if t, ok := timeparse.Parse(item.Date, now, "Jan 2, 2006"); ok {
				r.PublishedDate = &t
			}
			results = append(results, r)
		}
	}
	return results, nil
}

// flightResult 一条航班组合转换为搜索结果
func flightResult(opt serpFlightOption, link, currency string, best bool) SearchResult {
	var legs []string
	var airlines []string
	for _, leg := range opt.Flights {
		legs = append(legs, fmt.Sprintf("%s %s→%s", leg.FlightNumber, leg.DepartureAirport.ID, leg.ArrivalAirport.ID))
		airlines = append(airlines, leg.Airline)
	}
	stops := len(opt.Flights) - 1
	if stops < 0 {
		stops = 0
	}
	title := strings.Join(legs, ", ")
	if len(airlines) > 0 {
		title = airlines[0] + ": " + title
	}
	return SearchResult{
		Title:   title,
		URL:     link,
		Snippet: fmt.Sprintf("%.0f %s, %d min, %d stop(s)", opt.Price, currency, opt.TotalDuration, stops),
		Source:  "google_flights",
		Metadata: map[string]any{
			"price":         opt.Price,
			"currency":      currency,
			"totalDuration": opt.TotalDuration,
			"stops":         stops,
			"bestFlight":    best,
			"layovers":      opt.Layovers,
			"bookingToken":  opt.BookingToken,
			"original":      opt,
		},
	}
}

func serpSafeSearch(level SafeSearch) string {
	if level == SafeSearchOn {
		return "active"
	}
	return "off"
}

// serpDateRange Google tbs 自定义日期范围
func serpDateRange(start, end *time.Time) string {
	if start == nil && end == nil {
		return ""
	}
	parts := []string{"cdr:1"}
	if start != nil {
		parts = append(parts, "cd_min:"+start.Format("01/02/2006"))
	}
	if end != nil {
		parts = append(parts, "cd_max:"+end.Format("01/02/2006"))
	}
	return strings.Join(parts, ",")
}
