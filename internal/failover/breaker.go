package failover

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultThreshold = 5
	DefaultWindow    = 15 * time.Minute
	DefaultRecovery  = 5 * time.Minute
)

// BreakerConfig 熔断参数
type BreakerConfig struct {
	// Threshold 窗口内失败次数达到该值即熔断
	Threshold int
	// Window 失败计数的滑动窗口
	Window time.Duration
	// Recovery 最后一次失败之后经过该时间进入半开状态
	Recovery time.Duration
}

// State 熔断器状态
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type circuit struct {
	failures    []time.Time
	lastFailure time.Time
	open        bool
}

// Breaker 按提供方统计失败并熔断，可并发使用
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	cfg      BreakerConfig
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewBreaker 创建熔断器；零值参数使用默认值
func NewBreaker(cfg BreakerConfig, now func() time.Time, log logrus.FieldLogger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Recovery <= 0 {
		cfg.Recovery = DefaultRecovery
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		cfg:      cfg,
		now:      now,
		log:      log.WithField("component", "breaker"),
	}
}

// Config 返回生效的熔断参数
func (b *Breaker) Config() BreakerConfig {
	return b.cfg
}

// RecordFailure 记录一次失败，返回是否因此熔断
func (b *Breaker) RecordFailure(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	c := b.circuit(provider)
	c.failures = append(pruneBefore(c.failures, now.Add(-b.cfg.Window)), now)
	c.lastFailure = now

	if !c.open && len(c.failures) >= b.cfg.Threshold {
		c.open = true
		b.log.WithFields(logrus.Fields{
			"provider": provider,
			"failures": len(c.failures),
		}).Warn("🔌 Circuit breaker opened")
		return true
	}
	return false
}

// RecordSuccess 成功后清零
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return
	}
	if c.open {
		b.log.WithField("provider", provider).Info("🔌 Circuit breaker closed")
	}
	delete(b.circuits, provider)
}

// IsOpen 是否处于熔断状态；最后一次失败超过恢复时间后清零并放行（半开）
func (b *Breaker) IsOpen(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok || !c.open {
		return false
	}
	if b.now().Sub(c.lastFailure) >= b.cfg.Recovery {
		c.open = false
		c.failures = nil
		b.log.WithField("provider", provider).Info("🔌 Circuit breaker half-open after recovery period")
		return false
	}
	return true
}

// State 返回提供方当前状态，不修改计数
func (b *Breaker) State(provider string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok || !c.open {
		return StateClosed
	}
	if b.now().Sub(c.lastFailure) >= b.cfg.Recovery {
		return StateHalfOpen
	}
	return StateOpen
}

// Failures 窗口内的失败次数
func (b *Breaker) Failures(provider string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[provider]
	if !ok {
		return 0
	}
	return len(pruneBefore(c.failures, b.now().Add(-b.cfg.Window)))
}

// Filter 去掉处于熔断状态的提供方，保持原有顺序
func (b *Breaker) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !b.IsOpen(name) {
			out = append(out, name)
		}
	}
	return out
}

// Open 当前处于熔断状态的提供方（排序后）
func (b *Breaker) Open() []string {
	b.mu.Lock()
	names := make([]string, 0, len(b.circuits))
	for name := range b.circuits {
		names = append(names, name)
	}
	b.mu.Unlock()

	var open []string
	for _, name := range names {
		if b.IsOpen(name) {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// Reset 清除所有状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.circuits = make(map[string]*circuit)
}

func (b *Breaker) circuit(provider string) *circuit {
	c, ok := b.circuits[provider]
	if !ok {
		c = &circuit{}
		b.circuits[provider] = c
	}
	return c
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
