package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/everything-chalna/oh-my-notionmcp/internal/config"
)

var version = "v0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "oh-my-notionmcp",
		Short:   "Tiered MCP router and read-cache in front of the hosted Notion MCP server",
		Version: version,
		RunE:    runServe,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP stdio server (default command)",
		RunE:  runServe,
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Connect both backends and print a diagnostic report",
		RunE:  runDoctor,
	}

	reauthCmd := &cobra.Command{
		Use:   "reauth",
		Short: "Manually trigger re-authentication of the remote backend",
		RunE:  runReauth,
	}

	rootCmd.AddCommand(serveCmd, doctorCmd, reauthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		a.logger.Error("no backend reachable at startup", zap.Error(err))
		return err
	}
	a.logger.Info("router ready", zap.String("state", a.router.State().String()))

	return a.mcpServer.ServeStdio(ctx)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	startErr := a.Start(ctx)

	report := doctorReport{
		State:         a.router.State().String(),
		ExposedTools:  a.router.ExposedTools(),
		TokenCacheDir: cfg.TokenCacheDir,
		LocalAppCache: cfg.LocalAppCache.Enabled,
		MetricsAddr:   cfg.MetricsAddr,
	}
	if startErr != nil {
		report.Error = startErr.Error()
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal doctor report: %w", err)
	}
	fmt.Println(string(encoded))
	return startErr
}

func runReauth(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 120*time.Second)
	defer cancel()

	summary, err := a.official.Reauth(ctx)
	if err != nil {
		return fmt.Errorf("reauth: %w", err)
	}
	encoded, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(encoded))
	return nil
}

type doctorReport struct {
	State         string   `json:"state"`
	ExposedTools  []string `json:"exposed_tools"`
	TokenCacheDir string   `json:"token_cache_dir"`
	LocalAppCache bool     `json:"local_app_cache_enabled"`
	MetricsAddr   string   `json:"metrics_addr,omitempty"`
	Error         string   `json:"error,omitempty"`
}
