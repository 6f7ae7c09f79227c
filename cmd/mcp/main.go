package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/med-timely/bot/internal/logger"
)

// JSON-RPC structures
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// MCP structures
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var tools = []Tool{
	{
		Name:        "list_schedules",
		Description: "List a user's active medications with their daily dose times and the next due dose.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"telegram_id": {Type: "integer", Description: "Telegram user ID"},
			},
			Required: []string{"telegram_id"},
		},
	},
	{
		Name:        "adherence_report",
		Description: "Report how many doses a user took, on time or late, and missed per medication.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"telegram_id": {Type: "integer", Description: "Telegram user ID"},
				"days":        {Type: "integer", Description: "Length of the window in days, 1..365 (default 7)"},
			},
			Required: []string{"telegram_id"},
		},
	},
}

// MCPServer exposes the bot's JSON API as MCP tools over stdio.
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
	log         *zap.Logger
}

func NewMCPServer(log *zap.Logger) *MCPServer {
	apiURL := os.Getenv("MEDTIMELY_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiUsername: os.Getenv("MEDTIMELY_API_USERNAME"),
		apiPassword: os.Getenv("MEDTIMELY_API_PASSWORD"),
		client:      &http.Client{Timeout: 15 * time.Second},
		log:         log,
	}
}

// Run answers newline-delimited requests from r on w until r is exhausted.
func (s *MCPServer) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.log.Warn("invalid request", zap.Error(err))
			if err := enc.Encode(errorResponse(nil, codeParseError, "Parse error")); err != nil {
				return err
			}
			continue
		}

		resp, ok := s.handleRequest(ctx, req)
		if !ok {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// handleRequest returns false for notifications, which get no response.
func (s *MCPServer) handleRequest(ctx context.Context, req JSONRPCRequest) (JSONRPCResponse, bool) {
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return JSONRPCResponse{}, false
	}

	switch req.Method {
	case "initialize":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: InitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      serverInfo{Name: "medtimely-mcp", Version: "1.0.0"},
		}}, true
	case "ping":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}, true
	case "tools/list":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: tools}}, true
	case "tools/call":
		return s.handleToolsCall(ctx, req), true
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found"), true
	}
}

func errorResponse(id any, code int, msg string) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
}

func (s *MCPServer) handleToolsCall(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params")
	}

	telegramID, err := intArg(params.Arguments, "telegram_id")
	if err != nil {
		return toolResult(req.ID, err.Error(), true)
	}

	var text string
	var isError bool
	switch params.Name {
	case "list_schedules":
		text, isError = s.apiGet(ctx, fmt.Sprintf("/api/users/%d/schedules", telegramID), nil)
	case "adherence_report":
		q := url.Values{}
		if _, ok := params.Arguments["days"]; ok {
			days, err := intArg(params.Arguments, "days")
			if err != nil {
				return toolResult(req.ID, err.Error(), true)
			}
			q.Set("days", strconv.FormatInt(days, 10))
		}
		text, isError = s.apiGet(ctx, fmt.Sprintf("/api/users/%d/adherence", telegramID), q)
	default:
		text, isError = "Unknown tool: "+params.Name, true
	}
	return toolResult(req.ID, text, isError)
}

func toolResult(id any, text string, isError bool) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: isError,
	}}
}

// intArg reads an integer argument sent either as a JSON number or string.
func intArg(args map[string]any, name string) (int64, error) {
	switch v := args[name].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%s is required", name)
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

func (s *MCPServer) apiGet(ctx context.Context, path string, q url.Values) (string, bool) {
	u := s.apiURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}
	req.SetBasicAuth(s.apiUsername, s.apiPassword)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("api request failed", zap.String("path", path), zap.Error(err))
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return strings.TrimSpace(string(body)), resp.StatusCode >= http.StatusBadRequest
	}
	if !apiResp.Success {
		return "API Error: " + apiResp.Error, true
	}
	if len(apiResp.Data) == 0 {
		return "[]", false
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, apiResp.Data, "", "  "); err != nil {
		return string(apiResp.Data), false
	}
	return pretty.String(), false
}

func main() {
	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := NewMCPServer(log).Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Fatal("mcp server stopped", zap.Error(err))
	}
}
