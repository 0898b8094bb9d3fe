package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/soyeahso/wayfarer/internal/agent"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// defaultSchema is advertised for tools that declare no input schema.
const defaultSchema = `{"type":"object"}`

// Server exposes a ToolSource over newline-delimited JSON-RPC.
type Server struct {
	info  ServerInfo
	tools agent.ToolSource
	log   *logging.Logger

	wmu sync.Mutex
	w   io.Writer
}

// NewServer creates a server advertising the given identity.
func NewServer(info ServerInfo, tools agent.ToolSource, log *logging.Logger) *Server {
	return &Server{info: info, tools: tools, log: log.Sub("mcp.server")}
}

// Serve handles requests from r until it reaches EOF or ctx is cancelled.
// Requests are handled one at a time, in order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.w = w
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s.log.Info().Str("server", s.info.Name).Msg("listening for requests on stdin")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleRequest(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	s.log.Info().Msg("server shutting down")
	return nil
}

func (s *Server) handleRequest(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn().Err(err).Msg("parse error")
		s.sendError(nil, codeParseError, "Parse error", err.Error())
		return
	}
	s.log.Debug().Str("method", req.Method).Msg("handling request")

	switch req.Method {
	case "initialize":
		s.sendResult(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		})
	case "tools/list":
		s.handleListTools(ctx, req)
	case "tools/call":
		s.handleCallTool(ctx, req)
	case "notifications/initialized":
		return
	default:
		if len(req.ID) == 0 {
			return
		}
		s.sendError(req.ID, codeMethodNotFound, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (s *Server) handleListTools(ctx context.Context, req Request) {
	specs, err := s.tools.ListTools(ctx)
	if err != nil {
		s.sendError(req.ID, codeInvalidParams, "Listing tools failed", err.Error())
		return
	}
	infos := make([]ToolInfo, 0, len(specs))
	for _, spec := range specs {
		schema := spec.InputSchema
		if schema == "" {
			schema = defaultSchema
		}
		infos = append(infos, ToolInfo{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: json.RawMessage(schema),
		})
	}
	s.sendResult(req.ID, ListToolsResult{Tools: infos})
}

func (s *Server) handleCallTool(ctx context.Context, req Request) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	input := string(params.Arguments)
	if input == "" {
		input = "{}"
	}

	s.log.Info().Str("tool", params.Name).Msg("calling tool")
	out, err := s.tools.ExecuteTool(ctx, agent.ToolRequest{Name: params.Name, Input: input})
	if err != nil {
		s.sendResult(req.ID, CallToolResult{
			Content: []ContentItem{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
		return
	}
	s.sendResult(req.ID, CallToolResult{Content: []ContentItem{{Type: "text", Text: out}}})
}

func (s *Server) sendResult(id json.RawMessage, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.sendError(id, -32603, "Internal error", err.Error())
		return
	}
	s.send(Response{JSONRPC: "2.0", ID: id, Result: raw})
}

func (s *Server) sendError(id json.RawMessage, code int, message, data string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.send(Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}})
}

func (s *Server) send(resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshalling response")
		return
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		s.log.Error().Err(err).Msg("writing response")
	}
}
