package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kkanellis/MLOS/internal/server"
	"github.com/kkanellis/MLOS/internal/storage"
	"github.com/kkanellis/MLOS/pkg/logger"
)

var (
	httpAddr string
	grpcAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve experiment status over HTTP and gRPC health",
		RunE:  serve,
	}
)

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (default from config, else :8080)")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (default from config, else :50051)")
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := newLauncher()
	if err != nil {
		return err
	}
	httpAddr = firstNonEmpty(httpAddr, l.cfg.Server.HTTPAddr, ":8080")
	grpcAddr = firstNonEmpty(grpcAddr, l.cfg.Server.GRPCAddr, ":50051")

	store, err := storage.New(ctx, l.cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	grpcServer := server.NewGRPCServer()
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           server.NewHTTPServer(store).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		return grpcServer.Serve(grpcLis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.Shutdown()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
