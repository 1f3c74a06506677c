// Package validate 将调用方的原始参数转换为规范化的 SearchParameters
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/timeparse"
)

const (
	MaxQueryLength = 2048
	MinResults     = 1
	MaxResults     = 100
	MaxDomains     = 10

	DefaultMaxResults = 10
	DefaultLanguage   = "en"
	DefaultRegion     = "us"
)

var (
	codePattern   = regexp.MustCompile(`^[a-z]{2}$`)
	domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
	schemePattern = regexp.MustCompile(`^[a-z][a-z0-9+.-]*://`)
)

// aliases 原始键到规范字段名的映射，兼容 camelCase 和 snake_case
var aliases = map[string]string{
	"query":           "query",
	"q":               "query",
	"provider":        "provider",
	"engine":          "provider",
	"searchType":      "searchType",
	"search_type":     "searchType",
	"maxResults":      "maxResults",
	"max_results":     "maxResults",
	"limit":           "maxResults",
	"safesearch":      "safesearch",
	"safeSearch":      "safesearch",
	"safe_search":     "safesearch",
	"language":        "language",
	"lang":            "language",
	"region":          "region",
	"includeImages":   "includeImages",
	"include_images":  "includeImages",
	"includeDomains":  "includeDomains",
	"include_domains": "includeDomains",
	"excludeDomains":  "excludeDomains",
	"exclude_domains": "excludeDomains",
	"searchDepth":     "searchDepth",
	"search_depth":    "searchDepth",
	"startDate":       "startDate",
	"start_date":      "startDate",
	"endDate":         "endDate",
	"end_date":        "endDate",
	"page":            "page",
}

// Validator 参数校验器，无状态，可并发使用
type Validator struct {
	now func() time.Time
}

// Option 校验器选项
type Option func(*Validator)

// WithClock 替换时间来源，用于测试未来日期检查
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// New 创建校验器
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate 逐字段校验、补默认值，再做跨字段检查；失败时返回 *engine.ValidationError
func (v *Validator) Validate(raw map[string]any) (*engine.SearchParameters, error) {
	fields := make(map[string]any, len(raw))
	extra := make(map[string]any)
	for key, value := range raw {
		canonical, ok := aliases[key]
		if !ok {
			extra[key] = value
			continue
		}
		if _, dup := fields[canonical]; dup && key != canonical {
			// 规范名优先于别名
			continue
		}
		fields[canonical] = value
	}

	params := &engine.SearchParameters{}
	var err error

	if params.Query, err = v.query(fields["query"]); err != nil {
		return nil, err
	}
	if params.Provider, err = optionalString("provider", fields["provider"], engine.ProviderAuto); err != nil {
		return nil, err
	}
	params.Provider = strings.ToLower(params.Provider)
	if params.SearchType, err = searchType(fields["searchType"]); err != nil {
		return nil, err
	}
	if params.MaxResults, err = intInRange("maxResults", fields["maxResults"], DefaultMaxResults, MinResults, MaxResults); err != nil {
		return nil, err
	}
	if params.SafeSearch, err = safeSearch(fields["safesearch"]); err != nil {
		return nil, err
	}
	if params.Language, err = code("language", fields["language"], DefaultLanguage); err != nil {
		return nil, err
	}
	if params.Region, err = code("region", fields["region"], DefaultRegion); err != nil {
		return nil, err
	}
	if params.IncludeImages, err = boolValue("includeImages", fields["includeImages"], false); err != nil {
		return nil, err
	}
	if params.IncludeDomains, err = domains("includeDomains", fields["includeDomains"]); err != nil {
		return nil, err
	}
	if params.ExcludeDomains, err = domains("excludeDomains", fields["excludeDomains"]); err != nil {
		return nil, err
	}
	if params.SearchDepth, err = searchDepth(fields["searchDepth"]); err != nil {
		return nil, err
	}
	if params.StartDate, err = date("startDate", fields["startDate"]); err != nil {
		return nil, err
	}
	if params.EndDate, err = date("endDate", fields["endDate"]); err != nil {
		return nil, err
	}
	if params.Page, err = intInRange("page", fields["page"], 1, 1, math.MaxInt32); err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		params.AdditionalParams = extra
	}

	if err := v.crossCheck(params); err != nil {
		return nil, err
	}
	return params, nil
}

func (v *Validator) query(value any) (string, error) {
	if value == nil {
		return "", invalid("query", value, "query is required")
	}
	s, ok := value.(string)
	if !ok {
		return "", invalid("query", value, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("query", value, "query must not be empty")
	}
	if n := len([]rune(s)); n > MaxQueryLength {
		return "", invalid("query", fmt.Sprintf("<%d chars>", n), fmt.Sprintf("must be at most %d characters", MaxQueryLength))
	}
	return s, nil
}

func (v *Validator) crossCheck(p *engine.SearchParameters) error {
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return invalid("startDate", p.StartDate.Format(time.RFC3339), "start date must not be after end date")
	}

	if p.SearchType == engine.SearchTypeNews || p.SearchType == engine.SearchTypeTrends {
		now := v.now()
		if p.StartDate != nil && p.StartDate.After(now) {
			return invalid("startDate", p.StartDate.Format(time.RFC3339), "must not be in the future for "+string(p.SearchType)+" search")
		}
		if p.EndDate != nil && p.EndDate.After(now) {
			return invalid("endDate", p.EndDate.Format(time.RFC3339), "must not be in the future for "+string(p.SearchType)+" search")
		}
	}

	if len(p.IncludeDomains) > 0 && len(p.ExcludeDomains) > 0 {
		excluded := make(map[string]struct{}, len(p.ExcludeDomains))
		for _, d := range p.ExcludeDomains {
			excluded[d] = struct{}{}
		}
		for _, d := range p.IncludeDomains {
			if _, ok := excluded[d]; ok {
				return invalid("includeDomains", d, "domain appears in both includeDomains and excludeDomains")
			}
		}
	}
	return nil
}

func invalid(field string, value any, msg string) *engine.ValidationError {
	return &engine.ValidationError{Field: field, Value: value, Message: msg}
}

func optionalString(field string, value any, def string) (string, error) {
	if value == nil {
		return def, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", invalid(field, value, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return s, nil
}

func searchType(value any) (engine.SearchType, error) {
	s, err := optionalString("searchType", value, string(engine.SearchTypeWeb))
	if err != nil {
		return "", err
	}
	t, ok := engine.ParseSearchType(strings.ToLower(s))
	if !ok {
		return "", invalid("searchType", value, "must be one of "+joinTypes(engine.AllSearchTypes))
	}
	return t, nil
}

func joinTypes(types []engine.SearchType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func safeSearch(value any) (engine.SafeSearch, error) {
	s, err := optionalString("safesearch", value, string(engine.SafeSearchModerate))
	if err != nil {
		return "", err
	}
	switch level := engine.SafeSearch(strings.ToLower(s)); level {
	case engine.SafeSearchOn, engine.SafeSearchModerate, engine.SafeSearchOff:
		return level, nil
	}
	return "", invalid("safesearch", value, "must be one of on, moderate, off")
}

func searchDepth(value any) (engine.SearchDepth, error) {
	s, err := optionalString("searchDepth", value, string(engine.SearchDepthStandard))
	if err != nil {
		return "", err
	}
	switch depth := engine.SearchDepth(strings.ToLower(s)); depth {
	case engine.SearchDepthBasic, engine.SearchDepthStandard, engine.SearchDepthAdvanced:
		return depth, nil
	}
	return "", invalid("searchDepth", value, "must be one of basic, standard, advanced")
}

func code(field string, value any, def string) (string, error) {
	s, err := optionalString(field, value, def)
	if err != nil {
		return "", err
	}
	s = strings.ToLower(s)
	if !codePattern.MatchString(s) {
		return "", invalid(field, value, "must be a two-letter code")
	}
	return s, nil
}

// intInRange 接受 int、整数值的 float64（JSON 数字）和数字字符串
func intInRange(field string, value any, def, lo, hi int) (int, error) {
	if value == nil {
		return def, nil
	}
	var n int
	switch x := value.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, invalid(field, value, "must be an integer")
		}
		n = int(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return def, nil
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return 0, invalid(field, value, "must be an integer")
		}
		n = parsed
	default:
		return 0, invalid(field, value, "must be an integer")
	}
	if n < lo || n > hi {
		return 0, invalid(field, value, fmt.Sprintf("must be between %d and %d", lo, hi))
	}
	return n, nil
}

func boolValue(field string, value any, def bool) (bool, error) {
	switch x := value.(type) {
	case nil:
		return def, nil
	case bool:
		return x, nil
	case string:
		s := strings.TrimSpace(strings.ToLower(x))
		switch s {
		case "":
			return def, nil
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	}
	return false, invalid(field, value, "must be a boolean")
}

// domains 接受字符串列表或逗号分隔字符串；去掉协议和路径后小写
func domains(field string, value any) ([]string, error) {
	var items []string
	switch x := value.(type) {
	case nil:
		return nil, nil
	case string:
		for _, part := range strings.Split(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	case []string:
		items = append(items, x...)
	case []any:
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(field, item, "domain entries must be strings")
			}
			items = append(items, s)
		}
	default:
		return nil, invalid(field, value, "must be a list of domains")
	}

	if len(items) > MaxDomains {
		return nil, invalid(field, len(items), fmt.Sprintf("at most %d domains allowed", MaxDomains))
	}
	if len(items) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		d := normalizeDomain(item)
		if !domainPattern.MatchString(d) {
			return nil, invalid(field, item, "invalid domain")
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

func normalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = schemePattern.ReplaceAllString(d, "")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}

func date(field string, value any) (*time.Time, error) {
	switch x := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &x, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		t, err := timeparse.ParseInput(x)
		if err != nil {
			return nil, invalid(field, value, "unrecognized date format")
		}
		return &t, nil
	}
	return nil, invalid(field, value, "must be a date string")
}
