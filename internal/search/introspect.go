package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cliffyan/go-web-search-router/internal/analyzer"
	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/failover"
)

// ProviderDetails 单个提供方的诊断信息
type ProviderDetails struct {
	Name                string                          `json:"name"`
	Health              engine.ProviderHealthStatus     `json:"health"`
	Capabilities        engine.ProviderCapabilities     `json:"capabilities"`
	SupportedParameters map[string]engine.ParameterInfo `json:"supportedParameters"`
	RequiresAPIKey      bool                            `json:"requiresApiKey"`
	APIKeyName          string                          `json:"apiKeyName,omitempty"`
	Timeout             string                          `json:"timeout,omitempty"`
	MaxRetries          int                             `json:"maxRetries"`
	RetryDelay          string                          `json:"retryDelay,omitempty"`
	Circuit             failover.State                  `json:"circuit"`
	RecentFailures      int                             `json:"recentFailures"`
}

// ProviderReport 诊断报告
type ProviderReport struct {
	Providers []ProviderDetails `json:"providers"`
	Healthy   []string          `json:"healthy"`
	Errors    failover.Stats    `json:"errors"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// ProviderInfo 返回一个（name 非空）或全部提供方的健康状态、支持参数和能力
func (s *Service) ProviderInfo(ctx context.Context, name string) (*ProviderReport, error) {
	var names []string
	health := map[string]engine.ProviderHealthStatus{}
	if name != "" {
		if _, ok := s.registry.Config(name); !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		names = []string{name}
		health[name] = s.registry.Health(name)
	} else {
		names = s.registry.Available()
		health = s.registry.HealthSnapshotAll(ctx)
	}

	breaker := s.handler.Breaker()
	report := &ProviderReport{
		Providers: make([]ProviderDetails, 0, len(names)),
		Healthy:   []string{},
		Errors:    s.handler.Stats(),
		CheckedAt: s.now(),
	}
	for _, n := range names {
		status, ok := health[n]
		if !ok {
			status = s.registry.Health(n)
		}
		details := ProviderDetails{
			Name:           n,
			Health:         status,
			Circuit:        breaker.State(n),
			RecentFailures: breaker.Failures(n),
		}
		if p, ok := s.registry.Get(n); ok {
			details.Capabilities = p.Capabilities()
		} else {
			details.Capabilities = status.Capabilities
		}
		details.SupportedParameters = engine.SupportedParameters(details.Capabilities)
		if cfg, ok := s.registry.Config(n); ok {
			details.RequiresAPIKey = cfg.RequiresAPIKey
			details.APIKeyName = cfg.APIKeyName
			details.MaxRetries = cfg.MaxRetries
			if cfg.Timeout > 0 {
				details.Timeout = cfg.Timeout.String()
			}
			if cfg.RetryDelay > 0 {
				details.RetryDelay = cfg.RetryDelay.String()
			}
		}
		if status.Available && details.Circuit != failover.StateOpen {
			report.Healthy = append(report.Healthy, n)
		}
		report.Providers = append(report.Providers, details)
	}
	sort.Strings(report.Healthy)
	return report, nil
}

// Analyze 返回查询分析结果，仅用于诊断
func (s *Service) Analyze(query string) analyzer.Analysis {
	return s.analyzer.Analyze(query)
}
