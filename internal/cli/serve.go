package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/tacrodose/pkengine/internal/estd"
	"github.com/tacrodose/pkengine/internal/estimation"
	"github.com/tacrodose/pkengine/internal/metrics"
	"github.com/tacrodose/pkengine/pkg/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var grpcAddr, httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the estimation service",
		Long: `Serve the estimation API over HTTP (REST and /metrics) and gRPC until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if grpcAddr != "" {
				cfg.GRPCAddr = grpcAddr
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}

			pipeline, err := estimation.NewPipeline(cfg.Model, estimation.SettingsFromConfig(cfg))
			if err != nil {
				return fmt.Errorf("create pipeline: %w", err)
			}
			recorder := metrics.NewRecorder()
			service := estd.NewService(pipeline, estd.NewEstimateStore(), recorder)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.GRPCAddr, cfg.HTTPAddr, service, recorder)
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, grpcAddr, httpAddr string, service *estd.Service, recorder *metrics.Recorder) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// TODO: Configure gRPC server security (e.g., TLS, authentication, rate limiting)
	// before using this service in a production environment.
	grpcServer := grpc.NewServer()
	estd.RegisterEstimationServer(grpcServer, estd.NewEstimationGRPCServer(service))

	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen for gRPC on %s: %w", grpcAddr, err)
	}

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           estd.NewHTTPServer(service, recorder).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start servers.
	go func() {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
		return err
	}
	return nil
}
