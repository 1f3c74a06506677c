// Package analyzer 根据查询文本推断主题类别和适合的提供方
package analyzer

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

//go:embed categories.yaml
var defaultCategories []byte

// Category 主题类别定义
type Category struct {
	Name               string            `yaml:"name"`
	SearchType         engine.SearchType `yaml:"search_type"`
	PreferredProviders []string          `yaml:"preferred_providers"`
	Patterns           []string          `yaml:"patterns"`

	compiled []*regexp.Regexp
}

type categoryFile struct {
	Categories []Category `yaml:"categories"`
}

// Analysis 查询分析结果
type Analysis struct {
	// Categories 命中的类别，按置信度降序
	Categories         []string           `json:"categories"`
	PreferredProviders []string           `json:"preferredProviders"`
	Confidence         map[string]float64 `json:"confidence"`
	// SuggestedSearchType 无命中时为空
	SuggestedSearchType engine.SearchType `json:"suggestedSearchType,omitempty"`
}

// Analyzer 查询分析器，构造后只读，可并发使用
type Analyzer struct {
	categories []Category
}

// New 使用内置类别表创建分析器
func New() (*Analyzer, error) {
	return Load(defaultCategories)
}

// MustNew 内置类别表无效时 panic
func MustNew() *Analyzer {
	a, err := New()
	if err != nil {
		panic(err)
	}
	return a
}

// Load 从 YAML 加载类别表
func Load(data []byte) (*Analyzer, error) {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse category table: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("category table is empty")
	}

	for i := range file.Categories {
		c := &file.Categories[i]
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		if _, ok := engine.ParseSearchType(string(c.SearchType)); !ok {
			return nil, fmt.Errorf("category %s: unknown search type %q", c.Name, c.SearchType)
		}
		if len(c.Patterns) == 0 {
			return nil, fmt.Errorf("category %s has no patterns", c.Name)
		}
		c.compiled = make([]*regexp.Regexp, 0, len(c.Patterns))
		for _, p := range c.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("category %s: invalid pattern %q: %w", c.Name, p, err)
			}
			c.compiled = append(c.compiled, re)
		}
	}
	return &Analyzer{categories: file.Categories}, nil
}

// Categories 返回类别名称（声明顺序）
func (a *Analyzer) Categories() []string {
	names := make([]string, len(a.categories))
	for i, c := range a.categories {
		names[i] = c.Name
	}
	return names
}

type scored struct {
	index      int
	confidence float64
}

// Analyze 计算每个类别的置信度（命中模式数 / 模式总数）
func (a *Analyzer) Analyze(query string) Analysis {
	result := Analysis{
		Categories:         []string{},
		PreferredProviders: []string{},
		Confidence:         map[string]float64{},
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return result
	}

	var hits []scored
	for i, c := range a.categories {
		matched := 0
		for _, re := range c.compiled {
			if re.MatchString(query) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, scored{index: i, confidence: float64(matched) / float64(len(c.compiled))})
	}
	if len(hits) == 0 {
		return result
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].confidence > hits[j].confidence
	})

	for _, h := range hits {
		c := a.categories[h.index]
		result.Categories = append(result.Categories, c.Name)
		result.Confidence[c.Name] = h.confidence
	}
	top := a.categories[hits[0].index]
	result.PreferredProviders = append(result.PreferredProviders, top.PreferredProviders...)
	result.SuggestedSearchType = top.SearchType
	return result
}
