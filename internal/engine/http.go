package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// newHTTPClient 创建带代理和 cookie 的 HTTP 客户端
func newHTTPClient(cfg ProviderConfig) *http.Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if proxy, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxy)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: transport,
	}
}

// doRequest 发送请求并返回响应体；非 2xx 状态转换为 ProviderError
func doRequest(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Category: CategoryNetwork, Err: fmt.Errorf("read body failed: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewProviderError(provider, resp.StatusCode,
			fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body[:min(len(body), 200)])))
	}
	return body, nil
}

// getJSON 发送 GET 请求并解析 JSON
func getJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ProviderError{Provider: provider, Category: CategoryConfiguration, Err: fmt.Errorf("create request failed: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := doRequest(client, req, provider)
	if err != nil {
		return err
	}
	return decodeJSON(provider, body, out)
}

// postJSON 发送 JSON POST 请求并解析 JSON
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &ProviderError{Provider: provider, Category: CategoryParsing, Err: fmt.Errorf("encode payload failed: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return &ProviderError{Provider: provider, Category: CategoryConfiguration, Err: fmt.Errorf("create request failed: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := doRequest(client, req, provider)
	if err != nil {
		return err
	}
	return decodeJSON(provider, body, out)
}

func decodeJSON(provider string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Category: CategoryParsing, Err: fmt.Errorf("decode response failed: %w", err)}
	}
	return nil
}

// setBrowserHeaders 设置模拟浏览器的请求头
func setBrowserHeaders(req *http.Request, acceptLanguage string) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
