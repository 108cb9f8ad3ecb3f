package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"rolloutctl/internal/agent"
)

var agentListen string

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve rollout operations as MCP tools",
		Long: `Starts an MCP server that exposes rolloutctl's operations as tools over
an SSE endpoint: listing environments and units, planning and running
rollouts, inspecting live unit status, freezing units and promoting the
gateway. Point an MCP-capable assistant at the printed endpoint URL.

Tool calls run against the same engine the CLI uses, with the same
catalog and control-plane connection. The server runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: runAgent,
	}

	cmd.Flags().StringVar(&agentListen, "listen", "", "host:port to listen on (default: from config)")

	return cmd
}

func runAgent(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	initLogging(r.cfg)

	cfg := agent.Config{
		Host: r.cfg.Agent.Host,
		Port: r.cfg.Agent.Port,
	}
	if agentListen != "" {
		host, port, err := splitListenAddr(agentListen)
		if err != nil {
			return err
		}
		cfg.Host = host
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := agent.NewServer(cfg, r)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	fmt.Printf("MCP agent listening on %s\n", server.Endpoint())
	fmt.Println("Press Ctrl+C to stop.")

	<-ctx.Done()

	// The signal context is already done; give the shutdown a fresh one.
	return server.Stop(context.Background())
}

func splitListenAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --listen address %q (want host:port): %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid --listen port %q", portStr)
	}
	return host, port, nil
}
