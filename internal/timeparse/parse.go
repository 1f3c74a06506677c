// Package timeparse 多格式日期解析，供参数校验和响应标准化共用
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// InputLayouts 调用方输入可接受的日期格式，美式斜杠格式优先于欧式
var InputLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

// commonLayouts 提供方响应中常见的日期格式
var commonLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	time.RFC822,
	time.RFC822Z,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"01/02/2006, 03:04 PM, -0700 MST",
}

// ParseInput 解析调用方传入的日期，所有格式失败时返回错误
func ParseInput(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range InputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date format %q", value)
	}
	return t, nil
}

// Parse 解析提供方返回的日期：先用指定格式和常见格式，
// 再交给 dateparse，最后尝试 "3 days ago" 这类相对时间
func Parse(value string, now time.Time, layouts ...string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range commonLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseAny(value); err == nil {
		return t, true
	}
	return ParseRelative(value, now)
}

var relativePattern = regexp.MustCompile(`(?i)^(\d+|an?)\s*(s|sec|secs|seconds?|m|min|mins|minutes?|h|hr|hrs|hours?|d|days?|w|wk|wks|weeks?|mo|mos|months?|y|yr|yrs|years?)\s+ago$`)

// ParseRelative 解析相对时间，如 "5 minutes ago"、"1 day ago"、"yesterday"
func ParseRelative(value string, now time.Time) (time.Time, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "just now", "now", "today":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}

	m := relativePattern.FindStringSubmatch(value)
	if m == nil {
		return time.Time{}, false
	}
	n := 1
	if m[1] != "a" && m[1] != "an" {
		parsed, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		n = parsed
	}

	switch unit := m[2]; {
	case strings.HasPrefix(unit, "s"):
		return now.Add(-time.Duration(n) * time.Second), true
	case unit == "m" || strings.HasPrefix(unit, "min"):
		return now.Add(-time.Duration(n) * time.Minute), true
	case strings.HasPrefix(unit, "h"):
		return now.Add(-time.Duration(n) * time.Hour), true
	case strings.HasPrefix(unit, "d"):
		return now.AddDate(0, 0, -n), true
	case strings.HasPrefix(unit, "w"):
		return now.AddDate(0, 0, -7*n), true
	case strings.HasPrefix(unit, "mo"):
		return now.AddDate(0, -n, 0), true
	case strings.HasPrefix(unit, "y"):
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}
