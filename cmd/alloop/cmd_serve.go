package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/active-learning/internal/telemetry"
	"github.com/danielpatrickdp/active-learning/internal/traceserver"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var grpcAddr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored run traces over gRPC and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, store, log, err := root.open()
			if err != nil {
				return err
			}
			defer store.Close()
			defer log.Sync()

			if cmd.Flags().Changed("addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = metricsAddr
			}

			var m *telemetry.Metrics
			if cfg.Server.MetricsAddr != "" {
				if m, err = storeMetrics(store); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
			}
			srv := grpc.NewServer()
			traceserver.Register(srv, store, log)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("trace service listening", zap.String("addr", lis.Addr().String()))
				return srv.Serve(lis)
			})
			g.Go(func() error {
				<-ctx.Done()
				srv.GracefulStop()
				return nil
			})

			if m != nil {
				serveMetrics(ctx, g, cfg.Server.MetricsAddr, m, log)
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "addr", "", "gRPC listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for /metrics, empty to disable")
	return cmd
}

// storeMetrics builds a registry that exports the runs persisted in store.
func storeMetrics(store telemetry.RunLister) (*telemetry.Metrics, error) {
	m := telemetry.New()
	if err := m.WatchStore(store, 0); err != nil {
		return nil, fmt.Errorf("watch trace store: %w", err)
	}
	return m, nil
}

// serveMetrics exposes m on addr/metrics until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, m *telemetry.Metrics, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
}
