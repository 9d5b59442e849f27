package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/framed"
)

type serveFlags struct {
	addr            string
	metricsAddr     string
	heartbeat       time.Duration
	maxSize         int
	shutdownTimeout time.Duration
	broadcast       bool
}

func serveCmd(global *globalFlags) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		Long: `Run a server that echoes every message back to its sender, or to every
connected client with --broadcast.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(global)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, flags, logger)
		},
	}

	cmd.Flags().StringVarP(&flags.addr, "addr", "a", "127.0.0.1:12345", "listen address")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&flags.heartbeat, "heartbeat", 30*time.Second, "idle connections time out after twice this")
	cmd.Flags().IntVar(&flags.maxSize, "max-size", 1024*1024, "maximum message payload in bytes")
	cmd.Flags().DurationVar(&flags.shutdownTimeout, "shutdown-timeout", 0, "keep accepting this long after a shutdown signal")
	cmd.Flags().BoolVar(&flags.broadcast, "broadcast", false, "echo each message to every client")

	return cmd
}

func runServe(ctx context.Context, flags serveFlags, logger framed.Logger) error {
	registry := prometheus.NewRegistry()
	metrics := framed.NewMetrics(framed.WithRegistry(registry))

	server, err := framed.Listen(flags.addr,
		framed.ServerLoggerOption(logger),
		framed.ServerShutdownTimeoutOption(flags.shutdownTimeout),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	group, gctx := errgroup.WithContext(ctx)

	var hub *framed.Hub
	hub, err = framed.NewHub(gctx,
		func(conn *framed.Conn, payload []byte) error {
			if flags.broadcast {
				hub.Broadcast(payload)
				return nil
			}
			return conn.Write(payload)
		},
		framed.LoggerOption(logger),
		framed.MetricsOption(metrics),
		framed.HeartbeatOption(flags.heartbeat),
		framed.MessageMaxSize(flags.maxSize),
		framed.OnErrorOption(func(err error) framed.ErrorAction {
			logger.Warn("connection error", "error", err)
			return framed.Disconnect
		}),
	)
	if err != nil {
		return err
	}

	group.Go(func() error {
		err := server.Serve(gctx, hub)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if flags.metricsAddr != "" {
		httpServer := &http.Server{
			Addr:              flags.metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		group.Go(func() error {
			logger.Info("metrics listening", "addr", flags.metricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})

		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = group.Wait()
	hub.Wait()
	return err
}
