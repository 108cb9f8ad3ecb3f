package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"rolloutctl/pkg/logging"
)

const subsystem = "agent"

// Config defines where the agent endpoint listens.
type Config struct {
	Host string
	Port int
}

// Server serves the rollout tools over MCP's SSE transport.
type Server struct {
	config Config
	tools  *RolloutTools

	server *server.MCPServer
	sse    *server.SSEServer

	mu sync.Mutex
}

// NewServer creates an agent server over the given API.
func NewServer(cfg Config, api RolloutAPI) *Server {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}
	return &Server{
		config: cfg,
		tools:  NewRolloutTools(api),
	}
}

// Start registers the tools and begins serving. It returns once the listener
// goroutine is up; use Stop to shut down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("agent server already started")
	}

	mcpServer := server.NewMCPServer(
		"rolloutctl-agent",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	mcpServer.AddTools(s.tools.ServerTools()...)
	s.server = mcpServer

	baseURL := fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
	s.sse = server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(baseURL),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	logging.Info(subsystem, "Starting MCP agent on %s", addr)

	sse := s.sse
	go func() {
		if err := sse.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Error(subsystem, err, "SSE server error")
		}
	}()

	return nil
}

// Stop shuts the SSE server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.server == nil {
		s.mu.Unlock()
		return fmt.Errorf("agent server not started")
	}
	sse := s.sse
	s.server = nil
	s.sse = nil
	s.mu.Unlock()

	logging.Info(subsystem, "Stopping MCP agent")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down SSE server: %w", err)
	}
	return nil
}

// Endpoint returns the SSE endpoint URL clients connect to.
func (s *Server) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/sse", s.config.Host, s.config.Port)
}
