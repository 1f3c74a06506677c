package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

// Config 应用配置
type Config struct {
	// 服务器配置
	Server ServerConfig `yaml:"server"`

	// 搜索路由配置
	Search SearchConfig `yaml:"search"`

	// 熔断配置
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// 代理配置
	Proxy ProxyConfig `yaml:"proxy"`

	// 浏览器配置
	Browser BrowserConfig `yaml:"browser"`

	// 各提供方配置，键为提供方名称
	Providers map[string]ProviderSettings `yaml:"providers"`

	// 日志配置
	Log LogConfig `yaml:"log"`

	// MCP 配置
	MCP MCPConfig `yaml:"mcp"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int        `yaml:"port"`
	Host string     `yaml:"host"`
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Origin  string `yaml:"origin"`
}

// SearchConfig 搜索路由配置
type SearchConfig struct {
	// DefaultProvider 请求未指定 provider 时使用，auto 表示自动路由
	DefaultProvider   string        `yaml:"default_provider"`
	AllowedProviders  []string      `yaml:"allowed_providers"`
	RouteCacheTTL     time.Duration `yaml:"route_cache_ttl"`
	HealthCacheTTL    time.Duration `yaml:"health_cache_ttl"`
	HealthRefreshCron string        `yaml:"health_refresh_cron"`
}

// CircuitBreakerConfig 熔断配置
type CircuitBreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
	Recovery  time.Duration `yaml:"recovery"`
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Enabled  bool `yaml:"enabled"`
	Headless bool `yaml:"headless"`
}

// ProviderSettings 单个提供方配置
type ProviderSettings struct {
	// Enabled 未设置时视为启用
	Enabled    *bool         `yaml:"enabled"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	// RateLimit 每分钟请求数，覆盖内置值
	RateLimit  int `yaml:"rate_limit"`
	MaxResults int `yaml:"max_results"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MCPConfig MCP 协议配置
type MCPConfig struct {
	ServerName    string `yaml:"server_name"`
	ServerVersion string `yaml:"server_version"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3456,
			Host: "0.0.0.0",
			CORS: CORSConfig{
				Enabled: false,
				Origin:  "*",
			},
		},
		Search: SearchConfig{
			DefaultProvider:  engine.ProviderAuto,
			AllowedProviders: []string{},
			RouteCacheTTL:    5 * time.Minute,
			HealthCacheTTL:   engine.DefaultHealthTTL,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
			Recovery:  5 * time.Minute,
		},
		Proxy: ProxyConfig{
			Enabled: false,
			URL:     "http://127.0.0.1:7890",
		},
		Browser: BrowserConfig{
			Enabled:  false,
			Headless: true,
		},
		Providers: map[string]ProviderSettings{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MCP: MCPConfig{
			ServerName:    "go-web-search-router",
			ServerVersion: "1.0.0",
		},
	}
}

var log = logrus.WithField("component", "config")

// configSearchPaths 配置文件搜索路径
var configSearchPaths = []string{
	"config.yaml",
	"config.yml",
	"configs/config.yaml",
	"configs/config.yml",
}

// Load 从 YAML 配置文件加载配置
// 支持通过 CONFIG_FILE 环境变量指定配置文件路径，读取或解析失败时使用默认配置
func Load() *Config {
	configPath := findConfigFile()
	if configPath == "" {
		log.Warn("⚠️ No config file found, using default configuration")
		log.Info("💡 You can create a config.yaml file or set CONFIG_FILE environment variable")
		cfg := DefaultConfig()
		cfg.validate()
		return cfg
	}

	log.WithField("path", configPath).Info("📄 Loading configuration")
	cfg, err := LoadFromFile(configPath)
	if err != nil {
		log.WithError(err).Warn("⚠️ Failed to load config file, using defaults")
		cfg = DefaultConfig()
		cfg.validate()
	}
	return cfg
}

// LoadFromFile 从指定路径加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置，未出现的字段保留默认值
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderSettings{}
	}
	cfg.validate()
	return cfg, nil
}

// findConfigFile 查找配置文件
func findConfigFile() string {
	if envPath := os.Getenv("CONFIG_FILE"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		log.WithField("path", envPath).Warn("⚠️ CONFIG_FILE not found, searching default paths")
	}

	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}
	workDir, _ := os.Getwd()

	searchDirs := []string{workDir}
	if execDir != "" && execDir != workDir {
		searchDirs = append(searchDirs, execDir)
	}

	for _, dir := range searchDirs {
		for _, name := range configSearchPaths {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// validate 验证并修正配置
func (c *Config) validate() {
	def := DefaultConfig()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		log.Warnf("⚠️ Invalid port %d, using default %d", c.Server.Port, def.Server.Port)
		c.Server.Port = def.Server.Port
	}
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.CORS.Origin == "" {
		c.Server.CORS.Origin = def.Server.CORS.Origin
	}

	validAllowed := []string{}
	for _, name := range c.Search.AllowedProviders {
		name = strings.TrimSpace(name)
		if engine.IsBuiltin(name) {
			validAllowed = append(validAllowed, name)
		} else {
			log.Warnf("⚠️ Unknown search provider ignored: %s", name)
		}
	}
	c.Search.AllowedProviders = validAllowed

	c.Search.DefaultProvider = strings.TrimSpace(c.Search.DefaultProvider)
	switch {
	case c.Search.DefaultProvider == "" || strings.EqualFold(c.Search.DefaultProvider, engine.ProviderAuto):
		c.Search.DefaultProvider = engine.ProviderAuto
	case !c.ProviderEnabled(c.Search.DefaultProvider):
		log.Warnf("⚠️ Default provider %s is unknown or disabled, falling back to %s", c.Search.DefaultProvider, engine.ProviderAuto)
		c.Search.DefaultProvider = engine.ProviderAuto
	}

	if c.Search.RouteCacheTTL <= 0 {
		c.Search.RouteCacheTTL = def.Search.RouteCacheTTL
	}
	if c.Search.HealthCacheTTL <= 0 {
		c.Search.HealthCacheTTL = def.Search.HealthCacheTTL
	}

	if c.CircuitBreaker.Threshold <= 0 {
		log.Warnf("⚠️ Invalid circuit breaker threshold %d, using default %d", c.CircuitBreaker.Threshold, def.CircuitBreaker.Threshold)
		c.CircuitBreaker.Threshold = def.CircuitBreaker.Threshold
	}
	if c.CircuitBreaker.Window <= 0 {
		c.CircuitBreaker.Window = def.CircuitBreaker.Window
	}
	if c.CircuitBreaker.Recovery <= 0 {
		c.CircuitBreaker.Recovery = def.CircuitBreaker.Recovery
	}

	if c.Proxy.Enabled && c.Proxy.URL == "" {
		log.Warn("⚠️ Proxy enabled but URL is empty, using default")
		c.Proxy.URL = def.Proxy.URL
	}

	for name, settings := range c.Providers {
		if !engine.IsBuiltin(name) {
			log.Warnf("⚠️ Settings for unknown provider ignored: %s", name)
			delete(c.Providers, name)
			continue
		}
		if settings.MaxRetries < 0 {
			settings.MaxRetries = 0
		}
		if settings.RateLimit < 0 {
			settings.RateLimit = 0
		}
		if settings.MaxResults < 0 {
			settings.MaxResults = 0
		}
		c.Providers[name] = settings
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		log.Warnf("⚠️ Invalid log level %q, using %s", c.Log.Level, def.Log.Level)
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		c.Log.Format = def.Log.Format
	}

	if c.MCP.ServerName == "" {
		c.MCP.ServerName = def.MCP.ServerName
	}
	if c.MCP.ServerVersion == "" {
		c.MCP.ServerVersion = def.MCP.ServerVersion
	}
}

// Print 打印配置信息
func (c *Config) Print(log logrus.FieldLogger) {
	log.Infof("🔍 Default search provider: %s", c.Search.DefaultProvider)
	if len(c.Search.AllowedProviders) > 0 {
		log.Infof("🔍 Allowed search providers: %s", strings.Join(c.Search.AllowedProviders, ", "))
	} else {
		log.Info("🔍 No search provider restrictions, all builtin providers can be used")
	}
	log.Infof("🧭 Route cache TTL: %s, health cache TTL: %s", c.Search.RouteCacheTTL, c.Search.HealthCacheTTL)
	log.Infof("🔌 Circuit breaker: %d failures in %s, recovery after %s",
		c.CircuitBreaker.Threshold, c.CircuitBreaker.Window, c.CircuitBreaker.Recovery)
	if c.Proxy.Enabled {
		log.Infof("🌐 Using proxy: %s", c.Proxy.URL)
	} else {
		log.Info("🌐 No proxy configured")
	}
	if c.Server.CORS.Enabled {
		log.Infof("🔒 CORS enabled with origin: %s", c.Server.CORS.Origin)
	} else {
		log.Info("🔒 CORS disabled")
	}
	log.Infof("🔧 MCP Server: %s v%s", c.MCP.ServerName, c.MCP.ServerVersion)
	log.Infof("🖥️ Server will listen on %s", c.Addr())
}

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ProviderEnabled 提供方是否启用：内置、在允许列表中且未被单独禁用
func (c *Config) ProviderEnabled(name string) bool {
	if !engine.IsBuiltin(name) {
		return false
	}
	if name == "browser_google" && !c.Browser.Enabled {
		return false
	}
	if len(c.Search.AllowedProviders) > 0 && !contains(c.Search.AllowedProviders, name) {
		return false
	}
	if s, ok := c.Providers[name]; ok && s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// ProviderConfig 合并内置默认值与配置文件，API key 从环境变量读取
func (c *Config) ProviderConfig(b engine.Builtin) engine.ProviderConfig {
	s := c.Providers[b.Name]
	cfg := engine.ProviderConfig{
		Name:           b.Name,
		RequiresAPIKey: b.APIKeyName != "",
		APIKeyName:     b.APIKeyName,
		BaseURL:        s.BaseURL,
		Timeout:        s.Timeout,
		MaxRetries:     s.MaxRetries,
		RetryDelay:     s.RetryDelay,
		Capabilities:   b.Capabilities,
	}
	if s.APIKeyEnv != "" {
		cfg.APIKeyName = s.APIKeyEnv
	}
	if cfg.APIKeyName != "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv(cfg.APIKeyName))
	}
	if c.Proxy.Enabled {
		cfg.ProxyURL = c.Proxy.URL
	}
	if s.RateLimit > 0 {
		cfg.Capabilities.RateLimit = s.RateLimit
	}
	if s.MaxResults > 0 {
		cfg.Capabilities.MaxResultsPerRequest = s.MaxResults
	}
	return cfg
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
