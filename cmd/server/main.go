package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/config"
	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/failover"
	"github.com/cliffyan/go-web-search-router/internal/logging"
	"github.com/cliffyan/go-web-search-router/internal/search"
	"github.com/cliffyan/go-web-search-router/internal/server"
)

func main() {
	// 加载配置
	cfg := config.Load()

	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("🔍 Starting go-web-search router...")
	cfg.Print(log)

	// 浏览器仅在启用时创建
	var browser *engine.BrowserManager
	if cfg.Browser.Enabled {
		proxy := ""
		if cfg.Proxy.Enabled {
			proxy = cfg.Proxy.URL
		}
		browser = engine.NewBrowserManager(proxy, cfg.Browser.Headless, log)
	}

	// 注册提供方
	registry := engine.NewRegistry(log, engine.WithHealthTTL(cfg.Search.HealthCacheTTL))
	for _, b := range engine.Builtins(browser) {
		if !cfg.ProviderEnabled(b.Name) {
			log.WithField("provider", b.Name).Info("⏭️ Search provider disabled")
			continue
		}
		registry.RegisterFactory(b.Factory, cfg.ProviderConfig(b))
	}
	if err := registry.StartHealthRefresh(cfg.Search.HealthRefreshCron); err != nil {
		log.WithError(err).Fatal("❌ Invalid health refresh schedule")
	}

	svc, err := search.NewService(registry,
		search.WithLogger(log),
		search.WithRouteCacheTTL(cfg.Search.RouteCacheTTL),
		search.WithBreakerConfig(failover.BreakerConfig{
			Threshold: cfg.CircuitBreaker.Threshold,
			Window:    cfg.CircuitBreaker.Window,
			Recovery:  cfg.CircuitBreaker.Recovery,
		}),
	)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to create search service")
	}

	srv := server.New(cfg, svc, log)

	// 优雅关闭
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("🛑 Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("⚠️ Server shutdown incomplete")
		}
	}()

	if err := srv.Start(); err != nil {
		shutdown(registry, browser, log)
		log.WithError(err).Fatal("❌ Server failed")
	}
	<-done
	shutdown(registry, browser, log)
	log.Info("👋 Bye")
}

func shutdown(registry *engine.Registry, browser *engine.BrowserManager, log logrus.FieldLogger) {
	registry.Stop()
	if browser != nil {
		browser.Close()
	}
	log.Debug("🧹 Background tasks stopped")
}
