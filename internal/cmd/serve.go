package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/health"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/metrics"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/server"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reviews over HTTP",
	Long: `Start an HTTP server that runs reviews on request.

Endpoints:
  POST /v1/reviews     - run the gate; body carries the plan or an s3:// plan_uri
  GET  /health/live    - liveness probe
  GET  /health/ready   - readiness probe (approval store and evaluator)
  GET  /health/startup - startup probe
  GET  /healthz        - readiness, for load balancers
  GET  /metrics        - Prometheus metrics

On SIGTERM or SIGINT the server fails readiness and drains connections.

Example:
  iamgate serve --addr :9090 --shutdown-timeout 60s`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr            string
	serveShutdownTimeout time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr from config)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 0, "connection drain limit (default server.shutdown_timeout from config)")

	rootCmd.AddCommand(serveCmd)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	gin.SetMode(gin.ReleaseMode)

	reg, m := metrics.NewRegistry()
	comps := newComponents(appCfg, logger)
	asm, err := comps.pipeline(ctx, m)
	if err != nil {
		return err
	}

	pm := health.NewProbeManager(version.Version)
	pm.AddChecker(health.NewApprovalStoreChecker(asm.Approvals))
	pm.AddChecker(health.NewEvaluatorChecker(asm.Evaluator))
	if p, ok := asm.Approvals.(pinger); ok {
		pm.AddChecker(health.NewPingChecker(appCfg.Bundle.Backend, p.Ping))
	}

	addr := serveAddr
	if addr == "" {
		addr = appCfg.Server.Addr
	}
	timeout := serveShutdownTimeout
	if timeout == 0 {
		timeout = appCfg.Server.ShutdownTimeout
	}
	srv := server.New(server.Config{
		Address:         addr,
		ServiceName:     appCfg.Telemetry.ServiceName,
		ShutdownTimeout: timeout,
	}, server.Deps{
		Runner:   asm.Pipeline,
		Probes:   pm,
		Fetcher:  comps.fetcher(ctx),
		Gatherer: reg,
		Logger:   logger,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down", "timeout", timeout.String())
		if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	}
}
