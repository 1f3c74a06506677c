package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cliffyan/go-web-search-router/internal/config"
	"github.com/cliffyan/go-web-search-router/internal/engine"
	"github.com/cliffyan/go-web-search-router/internal/search"
)

const (
	MCPVersion = "2024-11-05"
)

// JSON-RPC 错误码
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Searcher 搜索门面
type Searcher interface {
	Search(ctx context.Context, raw map[string]any) *engine.SearchResponse
	News(ctx context.Context, raw map[string]any) *engine.SearchResponse
	Educational(ctx context.Context, raw map[string]any) *engine.SearchResponse
	Research(ctx context.Context, raw map[string]any) *engine.SearchResponse
	Tech(ctx context.Context, raw map[string]any) *engine.SearchResponse
	Events(ctx context.Context, raw map[string]any) *engine.SearchResponse
	Flights(ctx context.Context, raw map[string]any) *engine.SearchResponse
	ProviderInfo(ctx context.Context, name string) (*search.ProviderReport, error)
}

type searchFunc func(ctx context.Context, raw map[string]any) *engine.SearchResponse

// Handler MCP 请求处理器
type Handler struct {
	config *config.Config
	search Searcher
	tools  map[string]searchFunc
	log    logrus.FieldLogger
}

// NewHandler 创建 MCP 处理器
func NewHandler(cfg *config.Config, s Searcher, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		config: cfg,
		search: s,
		tools: map[string]searchFunc{
			ToolSearch:            s.Search,
			ToolSearchNews:        s.News,
			ToolSearchEducational: s.Educational,
			ToolSearchResearch:    s.Research,
			ToolSearchTech:        s.Tech,
			ToolSearchEvents:      s.Events,
			ToolSearchFlights:     s.Flights,
		},
		log: log.WithField("component", "mcp"),
	}
}

// rpcError 携带 JSON-RPC 错误码的错误
type rpcError struct {
	code int
	err  error
}

func (e *rpcError) Error() string { return e.err.Error() }

// HandleRequest 处理 MCP JSON-RPC 请求
func (h *Handler) HandleRequest(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	h.log.WithFields(logrus.Fields{"method": req.Method, "id": req.ID}).Info("📥 MCP Request")

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result = h.handleInitialize()
	case "notifications/initialized":
		// 通知类型，不需要返回结果
		return JSONRPCResponse{}
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = ListToolsResult{Tools: GetTools()}
	case "tools/call":
		result, err = h.handleToolsCall(ctx, req.Params)
	case "resources/list":
		result = ListResourcesResult{Resources: []interface{}{}}
	case "prompts/list":
		result = ListPromptsResult{Prompts: []interface{}{}}
	default:
		err = &rpcError{code: codeMethodNotFound, err: fmt.Errorf("unknown method: %s", req.Method)}
	}

	if err != nil {
		h.log.WithError(err).WithField("method", req.Method).Error("❌ MCP Error")
		code := codeInternalError
		if re, ok := err.(*rpcError); ok {
			code = re.code
		}
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: code, Message: err.Error()},
		}
	}

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

// ParseErrorResponse 请求体无法解析时的响应
func ParseErrorResponse(err error) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: codeParseError, Message: fmt.Sprintf("parse error: %v", err)},
	}
}

// handleInitialize 处理初始化请求
func (h *Handler) handleInitialize() InitializeResult {
	return InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: Capability{
			Tools: ToolCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    h.config.MCP.ServerName,
			Version: h.config.MCP.ServerVersion,
		},
	}
}

// handleToolsCall 处理工具调用请求
func (h *Handler) handleToolsCall(ctx context.Context, params interface{}) (*CallToolResult, error) {
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return nil, &rpcError{code: codeInvalidParams, err: fmt.Errorf("failed to marshal params: %w", err)}
	}

	var callParams CallToolParams
	if err := json.Unmarshal(paramsBytes, &callParams); err != nil {
		return nil, &rpcError{code: codeInvalidParams, err: fmt.Errorf("failed to unmarshal params: %w", err)}
	}
	if callParams.Arguments == nil {
		callParams.Arguments = map[string]interface{}{}
	}

	h.log.WithFields(logrus.Fields{"tool": callParams.Name, "args": callParams.Arguments}).Info("🔧 Tool call")

	if callParams.Name == ToolProviderInfo {
		name, _ := callParams.Arguments["provider"].(string)
		report, err := h.search.ProviderInfo(ctx, name)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(report, false), nil
	}

	fn, ok := h.tools[callParams.Name]
	if !ok {
		return errorResult(fmt.Sprintf("Unknown tool: %s", callParams.Name)), nil
	}
	resp := fn(ctx, h.withDefaultProvider(callParams.Arguments))
	return jsonResult(resp, !resp.Success), nil
}

// withDefaultProvider 未指定 provider 时使用配置的默认提供方
func (h *Handler) withDefaultProvider(args map[string]interface{}) map[string]interface{} {
	def := h.config.Search.DefaultProvider
	if def == "" || def == engine.ProviderAuto {
		return args
	}
	for _, key := range []string{"provider", "engine"} {
		if _, ok := args[key]; ok {
			return args
		}
	}
	out := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["provider"] = def
	return out
}

func jsonResult(v any, isError bool) *CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to format results: %v", err))
	}
	return &CallToolResult{
		Content: []ContentItem{{Type: "text", Text: string(data)}},
		IsError: isError,
	}
}

func errorResult(text string) *CallToolResult {
	return &CallToolResult{
		Content: []ContentItem{{Type: "text", Text: text}},
		IsError: true,
	}
}
