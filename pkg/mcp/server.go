// Package mcp serves the pipeline to agents as an MCP server over stdio:
// answering questions, and reporting cache and history statistics.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/pipeline"
)

// Answerer answers questions. *pipeline.Coordinator implements it.
type Answerer interface {
	Process(ctx context.Context, questions []models.Question) ([]pipeline.Result, error)
}

// CacheStatter provides cache statistics without coupling to a concrete cache.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// HistoryReader queries past runs.
type HistoryReader interface {
	Summary(ctx context.Context, runID string) ([]models.ToolSummary, error)
	Runs(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// Server is a minimal MCP server speaking line-delimited JSON-RPC 2.0.
// Any dependency may be nil; its tools then report that it is not configured.
type Server struct {
	answerer Answerer
	cache    CacheStatter
	history  HistoryReader
	version  string
	logger   *slog.Logger
}

// New creates a Server.
func New(a Answerer, c CacheStatter, h HistoryReader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{answerer: a, cache: c, history: h, version: version, logger: logger}
}

// Run reads requests from r line by line and writes responses to w.
// It blocks until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "benchrun", Version: s.version},
			Capabilities:    Capabilities{Tools: &struct{}{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: toolDefinitions})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, CodeInvalidParams, "invalid params")
		}
		handler, ok := toolHandlers[params.Name]
		if !ok {
			return result(req.ID, errorResult("unknown tool: "+params.Name))
		}
		s.logger.Debug("mcp tool call", "tool", params.Name)
		return result(req.ID, handler(ctx, s, params.Arguments))
	default:
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp: write response", "error", err)
	}
}
