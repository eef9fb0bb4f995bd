package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/servers/demo"
)

var (
	configFile     string
	host           string
	port           int
	endpoint       string
	sessionTimeout time.Duration
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "mcpd",
	Short: "MCP tool server over Streamable HTTP",
	Long: `mcpd serves a set of schema-described tools over the MCP Streamable HTTP
transport. Clients initialize a session, list tools, and call them either
synchronously over POST or asynchronously over an SSE event stream.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	rootCmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "", "HTTP endpoint path (overrides config)")
	rootCmd.Flags().DurationVar(&sessionTimeout, "session-timeout", 0, "Idle session timeout (overrides config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := mcpd.Options{}
	if configFile != "" {
		cfg, err := mcpd.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		opts, err = cfg.Options()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Flags override the config file.
	if host != "" {
		opts.Host = host
	}
	if port != 0 {
		opts.Port = port
	}
	if endpoint != "" {
		opts.Endpoint = endpoint
	}
	if sessionTimeout != 0 {
		opts.SessionTimeout = sessionTimeout
	}
	opts.Logger = logger

	srv := mcpd.NewServer(opts)
	for _, tool := range demo.Tools() {
		if err := srv.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %q: %w", tool.Name, err)
		}
	}

	errs := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-sigs:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
