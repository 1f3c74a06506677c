package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/config"
	"github.com/cliffyan/go-web-search-router/internal/mcp"
	"github.com/cliffyan/go-web-search-router/internal/search"
)

const sessionHeader = "mcp-session-id"

// Server MCP + REST HTTP 服务器
type Server struct {
	config     *config.Config
	service    *search.Service
	mcpHandler *mcp.Handler
	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	httpServer *http.Server
	keepalive  time.Duration
	log        logrus.FieldLogger
}

// Session 会话信息
type Session struct {
	ID        string
	CreatedAt time.Time
}

// New 创建新的服务器实例
func New(cfg *config.Config, svc *search.Service, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		config:     cfg,
		service:    svc,
		mcpHandler: mcp.NewHandler(cfg, svc, log),
		sessions:   make(map[string]*Session),
		keepalive:  30 * time.Second,
		log:        log.WithField("component", "server"),
	}
}

// Handler 构造路由（含 CORS）
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// MCP 端点
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/messages", s.handleMessages)

	// REST 端点
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/search/{kind}", s.handleShortcut)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /api/providers/{name}", s.handleProviders)
	mux.HandleFunc("GET /api/analyze", s.handleAnalyze)

	// 健康检查
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = mux
	if s.config.Server.CORS.Enabled {
		c := cors.New(cors.Options{
			AllowedOrigins:   []string{s.config.Server.CORS.Origin},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", sessionHeader},
			ExposedHeaders:   []string{sessionHeader},
			AllowCredentials: true,
		})
		handler = c.Handler(mux)
	}
	return handler
}

// Start 启动 HTTP 服务器，Shutdown 后返回 nil
func (s *Server) Start() error {
	addr := s.config.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.sessionsMu.Lock()
	s.httpServer = srv
	s.sessionsMu.Unlock()

	s.log.Infof("🚀 Starting HTTP server on %s", addr)
	s.log.Infof("📡 MCP endpoint: http://%s/mcp", addr)
	s.log.Infof("📡 SSE endpoint: http://%s/sse", addr)
	s.log.Infof("🔎 Search API: http://%s/api/search", addr)
	s.log.Infof("❤️ Health check: http://%s/health", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessionsMu.RLock()
	srv := s.httpServer
	s.sessionsMu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleMCP 处理 MCP 请求
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r)
	case http.MethodGet:
		s.handleMCPGet(w, r)
	case http.MethodDelete:
		s.handleMCPDelete(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMCPPost 处理 MCP POST 请求
func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	var req mcp.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, mcp.ParseErrorResponse(err))
		return
	}

	// 初始化请求创建新会话
	sessionID := r.Header.Get(sessionHeader)
	if req.Method == "initialize" && sessionID == "" {
		sessionID = s.newSession()
		w.Header().Set(sessionHeader, sessionID)
	}

	s.dispatch(w, r, req)
}

// dispatch 执行 JSON-RPC 请求；通知返回 204
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req mcp.JSONRPCRequest) {
	resp := s.mcpHandler.HandleRequest(r.Context(), req)
	if resp.IsEmpty() || (req.IsNotification() && resp.Error == nil) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMCPGet 处理 MCP GET 请求（SSE 流）
func (s *Server) handleMCPGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}
	if !s.hasSession(sessionID) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	s.stream(w, r, `{"uri": "/mcp"}`, nil)
}

// handleMCPDelete 处理 MCP DELETE 请求（关闭会话）
func (s *Server) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}
	s.deleteSession(sessionID)
	s.log.WithField("session", sessionID).Info("🗑️ Deleted session")
	w.WriteHeader(http.StatusOK)
}

// handleSSE 处理 SSE 端点（兼容旧客户端）
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := s.newSession()
	data := fmt.Sprintf(`{"uri": "/messages?sessionId=%s"}`, sessionID)
	s.log.WithField("session", sessionID).Info("📡 SSE connection established")
	s.stream(w, r, data, func() {
		s.deleteSession(sessionID)
		s.log.WithField("session", sessionID).Info("📡 SSE connection closed")
	})
}

// handleMessages SSE 客户端的 JSON-RPC 入口
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.hasSession(r.URL.Query().Get("sessionId")) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	var req mcp.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, mcp.ParseErrorResponse(err))
		return
	}
	s.dispatch(w, r, req)
}

// stream 发送 endpoint 事件并保持连接，定期发送心跳
func (s *Server) stream(w http.ResponseWriter, r *http.Request, endpoint string, onClose func()) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			if onClose != nil {
				onClose()
			}
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) newSession() string {
	id := uuid.NewString()
	s.sessionsMu.Lock()
	s.sessions[id] = &Session{ID: id, CreatedAt: time.Now()}
	s.sessionsMu.Unlock()
	s.log.WithField("session", id).Info("📝 Created new session")
	return id
}

func (s *Server) hasSession(id string) bool {
	if id == "" {
		return false
	}
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Server) deleteSession(id string) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("❌ Failed to encode response")
	}
}
