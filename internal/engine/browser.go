package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// BrowserManager 无头浏览器管理器，多个浏览器类提供方共享一个实例
type BrowserManager struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancelFunc  context.CancelFunc
	initialized bool
	proxyURL    string
	headless    bool
	chromePath  string
	log         logrus.FieldLogger
}

// NewBrowserManager 创建浏览器管理器，浏览器在首次使用时启动
func NewBrowserManager(proxyURL string, headless bool, log logrus.FieldLogger) *BrowserManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BrowserManager{
		proxyURL: proxyURL,
		headless: headless,
		log:      log.WithField("component", "browser"),
	}
}

// chromeCandidates 各平台 Chrome 可执行文件路径
func chromeCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			os.Getenv("LOCALAPPDATA") + `\Google\Chrome\Application\chrome.exe`,
		}
	}
	return nil
}

// ChromePath 查找 Chrome 可执行文件，找不到时返回空串
func (bm *BrowserManager) ChromePath() string {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.chromePath != "" {
		return bm.chromePath
	}
	for _, p := range chromeCandidates() {
		if _, err := os.Stat(p); err == nil {
			bm.chromePath = p
			break
		}
	}
	return bm.chromePath
}

// initialize 启动浏览器，调用方需持有锁
func (bm *BrowserManager) initialize() error {
	if bm.initialized {
		return nil
	}

	chromePath := bm.chromePath
	if chromePath == "" {
		for _, p := range chromeCandidates() {
			if _, err := os.Stat(p); err == nil {
				chromePath = p
				break
			}
		}
	}
	if chromePath == "" {
		return fmt.Errorf("Chrome/Chromium not found. Please install Chrome browser")
	}
	bm.chromePath = chromePath

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.Flag("headless", bm.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(browserUserAgent),
	)
	if bm.proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(bm.proxyURL))
	}

	bm.allocCtx, bm.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	bm.browserCtx, bm.cancelFunc = chromedp.NewContext(bm.allocCtx,
		chromedp.WithLogf(bm.log.Debugf),
	)

	// 预热
	if err := chromedp.Run(bm.browserCtx); err != nil {
		bm.cancelFunc()
		bm.allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	bm.initialized = true
	bm.log.WithFields(logrus.Fields{"headless": bm.headless, "path": chromePath}).Info("✅ Browser initialized")
	return nil
}

// NewTab 创建新的标签页上下文；调用方的 ctx 取消时标签页随之关闭
func (bm *BrowserManager) NewTab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if err := bm.initialize(); err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(bm.browserCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)

	stop := context.AfterFunc(ctx, timeoutCancel)
	return timeoutCtx, func() {
		stop()
		timeoutCancel()
		tabCancel()
	}, nil
}

// Close 关闭浏览器
func (bm *BrowserManager) Close() {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if !bm.initialized {
		return
	}
	bm.cancelFunc()
	bm.allocCancel()
	bm.initialized = false
	bm.log.Info("🔴 Browser closed")
}
