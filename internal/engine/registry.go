package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultHealthTTL 可用性缓存时间
const DefaultHealthTTL = 5 * time.Minute

// Registry 搜索提供方注册表
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*registryEntry
	order    []string
	limiters map[string]*rate.Limiter

	health    *cache.Cache
	healthTTL time.Duration
	probes    singleflight.Group

	cron *cron.Cron
	log  logrus.FieldLogger
}

type registryEntry struct {
	factory  Factory
	cfg      ProviderConfig
	instance Provider
}

// RegistryOption 注册表选项
type RegistryOption func(*Registry)

// WithHealthTTL 设置可用性缓存时间
func WithHealthTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.healthTTL = ttl
		}
	}
}

// NewRegistry 创建提供方注册表
func NewRegistry(log logrus.FieldLogger, opts ...RegistryOption) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Registry{
		entries:   make(map[string]*registryEntry),
		limiters:  make(map[string]*rate.Limiter),
		healthTTL: DefaultHealthTTL,
		log:       log.WithField("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.health = cache.New(r.healthTTL, 2*r.healthTTL)
	return r
}

// Register 注册已构造的提供方
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = &registryEntry{instance: p, cfg: ProviderConfig{Name: name, Capabilities: p.Capabilities()}}
	r.log.WithField("provider", name).Info("📝 Registered search provider")
}

// RegisterFactory 注册延迟构造的提供方，首次 Get 时才构造
func (r *Registry) RegisterFactory(factory Factory, cfg ProviderConfig) {
	if factory == nil || cfg.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[cfg.Name]; !exists {
		r.order = append(r.order, cfg.Name)
	}
	r.entries[cfg.Name] = &registryEntry{factory: factory, cfg: cfg}
	r.log.WithField("provider", cfg.Name).Info("📝 Registered search provider factory")
}

// Get 获取提供方；构造失败时记录日志并视为不存在
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	if ok && entry.instance != nil {
		p := entry.instance
		r.mu.RUnlock()
		return p, true
	}
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.instance != nil {
		return entry.instance, true
	}
	p, err := construct(entry)
	if err != nil {
		r.log.WithFields(logrus.Fields{"provider": name, "error": err}).Error("❌ Failed to initialize search provider")
		return nil, false
	}
	entry.instance = p
	r.log.WithField("provider", name).Debug("✅ Search provider initialized")
	return p, true
}

func construct(entry *registryEntry) (p Provider, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider factory panicked: %v", rec)
		}
	}()
	p, err = entry.factory(entry.cfg)
	if err == nil && p == nil {
		err = errors.New("provider factory returned nil")
	}
	return p, err
}

// Config 返回注册时的提供方配置
func (r *Registry) Config(name string) (ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return ProviderConfig{}, false
	}
	return entry.cfg, true
}

// Available 所有已注册提供方名称（注册顺序）
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Healthy 可用性检查通过的提供方
func (r *Registry) Healthy() []string {
	names := r.Available()
	healthy := make([]string, 0, len(names))
	for _, name := range names {
		if r.Health(name).Available {
			healthy = append(healthy, name)
		}
	}
	return healthy
}

// ForSearchType 支持该搜索类型的提供方
func (r *Registry) ForSearchType(t SearchType) []string {
	var names []string
	for _, name := range r.Available() {
		if p, ok := r.Get(name); ok && p.SupportsSearchType(t) {
			names = append(names, name)
		}
	}
	return names
}

// WithCredentialsConfigured 凭证已配置的提供方
func (r *Registry) WithCredentialsConfigured() []string {
	var names []string
	for _, name := range r.Available() {
		if p, ok := r.Get(name); ok && p.CredentialConfigured() {
			names = append(names, name)
		}
	}
	return names
}

// Health 返回提供方健康状态，缓存期内不会重复探测
func (r *Registry) Health(name string) ProviderHealthStatus {
	if cached, found := r.health.Get(name); found {
		return cached.(ProviderHealthStatus)
	}
	v, _, _ := r.probes.Do(name, func() (interface{}, error) {
		if cached, found := r.health.Get(name); found {
			return cached, nil
		}
		status := r.probe(name)
		r.health.Set(name, status, cache.DefaultExpiration)
		return status, nil
	})
	return v.(ProviderHealthStatus)
}

// probe 调用提供方自身的可用性检查
func (r *Registry) probe(name string) ProviderHealthStatus {
	status := ProviderHealthStatus{Name: name, LastCheck: time.Now()}
	p, ok := r.Get(name)
	if !ok {
		status.ErrorMessage = "provider not found or failed to initialize"
		return status
	}
	status.CredentialConfigured = p.CredentialConfigured()
	status.Capabilities = p.Capabilities()

	start := time.Now()
	available, err := safeAvailable(p)
	elapsed := time.Since(start).Seconds()
	status.ResponseTime = &elapsed
	status.Available = available
	switch {
	case err != nil:
		status.ErrorMessage = err.Error()
	case !available && !status.CredentialConfigured:
		status.ErrorMessage = "credential not configured"
	case !available:
		status.ErrorMessage = "provider reported unavailable"
	}

	fields := logrus.Fields{"provider": name, "available": available}
	if available {
		r.log.WithFields(fields).Debug("❤️ Provider health checked")
	} else {
		r.log.WithFields(fields).WithField("reason", status.ErrorMessage).Warn("⚠️ Provider unavailable")
	}
	return status
}

func safeAvailable(p Provider) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("availability check panicked: %v", rec)
		}
	}()
	return p.IsAvailable(), nil
}

// InvalidateHealth 清除某个提供方的可用性缓存
func (r *Registry) InvalidateHealth(name string) {
	r.health.Delete(name)
}

// HealthSnapshotAll 并发获取所有提供方健康状态
func (r *Registry) HealthSnapshotAll(ctx context.Context) map[string]ProviderHealthStatus {
	names := r.Available()
	snapshot := make(map[string]ProviderHealthStatus, len(names))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			status := r.Health(name)
			mu.Lock()
			snapshot[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return snapshot
}

// Acquire 按能力声明的速率限制占用一次调用配额
func (r *Registry) Acquire(name string) error {
	p, ok := r.Get(name)
	if !ok {
		return &ProviderUnavailableError{Provider: name, Reason: "not registered"}
	}
	perMinute := p.Capabilities().RateLimit
	if perMinute <= 0 {
		return nil
	}

	r.mu.Lock()
	lim, ok := r.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		r.limiters[name] = lim
	}
	r.mu.Unlock()

	if !lim.Allow() {
		return &ProviderError{
			Provider: name,
			Category: CategoryRateLimit,
			Err:      fmt.Errorf("%w: %d requests/minute", ErrLocalRateLimit, perMinute),
		}
	}
	return nil
}

// StartHealthRefresh 按 cron 表达式定期刷新健康状态
func (r *Registry) StartHealthRefresh(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		for _, name := range r.Available() {
			r.InvalidateHealth(name)
		}
		snapshot := r.HealthSnapshotAll(context.Background())
		healthy := 0
		for _, s := range snapshot {
			if s.Available {
				healthy++
			}
		}
		r.log.WithFields(logrus.Fields{"healthy": healthy, "total": len(snapshot)}).Info("❤️ Provider health refreshed")
	}); err != nil {
		return fmt.Errorf("invalid health refresh schedule %q: %w", spec, err)
	}
	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	c.Start()
	r.log.WithField("schedule", spec).Info("⏰ Provider health refresh scheduled")
	return nil
}

// Stop 停止后台任务
func (r *Registry) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
