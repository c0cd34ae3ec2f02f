package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/token-tracker/tracker/pkg/budget"
	"github.com/token-tracker/tracker/pkg/models"
	"github.com/token-tracker/tracker/pkg/pricing"
	"github.com/token-tracker/tracker/pkg/tracker"
)

// ServerName is reported in the initialize handshake.
const ServerName = "token-tracker"

// CacheStatter provides cache statistics without coupling to a concrete cache implementation.
type CacheStatter interface {
	Stats() (models.CacheStats, error)
}

// Pricer loads the pricing dataset and resolves model ids.
type Pricer interface {
	Fetch(ctx context.Context) (*pricing.Dataset, error)
	Lookup(modelID string) (pricing.Match, bool)
}

// UsageReader aggregates usage from a sessions directory.
type UsageReader interface {
	Read(root string) []models.UsageRecord
}

// Deps are the collaborators behind the tools. Nil members disable the tools
// that need them.
type Deps struct {
	Tracker     tracker.Tracker
	Pricer      Pricer
	Usage       UsageReader
	SessionsDir string
	Cache       CacheStatter
	Enforcer    *budget.Enforcer
	Logger      *slog.Logger
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	tracker     tracker.Tracker
	pricer      Pricer
	usage       UsageReader
	sessionsDir string
	cache       CacheStatter
	enforcer    *budget.Enforcer
	logger      *slog.Logger
	version     string
}

// New creates a new MCP Server.
func New(d Deps, version string) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tracker:     d.Tracker,
		pricer:      d.Pricer,
		usage:       d.Usage,
		sessionsDir: d.SessionsDir,
		cache:       d.Cache,
		enforcer:    d.Enforcer,
		logger:      logger,
		version:     version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			// notification
			continue
		}
		s.writeResponse(w, resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	s.logger.Debug("mcp request", "method", req.Method)
	switch req.Method {
	case MethodInitialize:
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: ServerName, Version: s.version},
		})
	case MethodInitialized:
		return nil
	case MethodToolsList:
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.Debug("mcp tool call", "tool", params.Name)
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
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
