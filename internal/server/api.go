package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/engine"
)

// maxBodyBytes REST 请求体上限
const maxBodyBytes = 1 << 20

// handleSearch POST /api/search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, s.service.Search)
}

// handleShortcut POST /api/search/{kind}
func (s *Server) handleShortcut(w http.ResponseWriter, r *http.Request) {
	shortcuts := map[string]func(context.Context, map[string]any) *engine.SearchResponse{
		"news":        s.service.News,
		"educational": s.service.Educational,
		"research":    s.service.Research,
		"tech":        s.service.Tech,
		"events":      s.service.Events,
		"flights":     s.service.Flights,
	}
	fn, ok := shortcuts[r.PathValue("kind")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown search kind: " + r.PathValue("kind")})
		return
	}
	s.serveSearch(w, r, fn)
}

func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request, fn func(context.Context, map[string]any) *engine.SearchResponse) {
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if raw == nil {
		raw = map[string]any{}
	}
	resp := fn(r.Context(), raw)
	writeJSON(w, statusFor(resp), resp)
}

// statusFor 校验失败返回 400，其余失败返回 502
func statusFor(resp *engine.SearchResponse) int {
	switch {
	case resp.Success:
		return http.StatusOK
	case resp.Error != nil && resp.Error.Category == engine.CategoryValidation:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// handleProviders GET /api/providers[/{name}]
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	report, err := s.service.ProviderInfo(r.Context(), name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleAnalyze GET /api/analyze?q=
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	writeJSON(w, http.StatusOK, s.service.Analyze(q))
}

// handleHealth 健康检查端点
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	registry := s.service.Registry()
	healthy := registry.Healthy()
	status := "ok"
	if len(healthy) == 0 {
		status = "degraded"
	}
	s.log.WithFields(logrus.Fields{"healthy": len(healthy)}).Debug("❤️ Health check")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"service":   s.config.MCP.ServerName,
		"version":   s.config.MCP.ServerVersion,
		"providers": registry.Available(),
		"healthy":   healthy,
	})
}
