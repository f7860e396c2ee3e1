package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// GRPCServerWorker serves s on address until the context is canceled, then
// stops it gracefully.
type GRPCServerWorker struct {
	log     *slog.Logger
	server  *grpc.Server
	address string
}

func NewGRPCServerWorker(log *slog.Logger, server *grpc.Server, address string) *GRPCServerWorker {
	return &GRPCServerWorker{log: log, server: server, address: address}
}

func (w *GRPCServerWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC server", "address", w.address, "at", time.Now().UTC())
		for serviceName := range w.server.GetServiceInfo() {
			w.log.Debug("gRPC exposed service", "name", serviceName)
		}
		errChan <- w.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		w.log.Info("Stopping gRPC server")
		w.server.GracefulStop()
		return nil
	case err = <-errChan:
		if err == nil || stderrors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("gRPC server error: %w", err)
	}
}

// HTTPServerWorker serves handler on address. onShutdown runs before the
// server drains, to release connections Shutdown does not track.
type HTTPServerWorker struct {
	log        *slog.Logger
	address    string
	handler    http.Handler
	onShutdown func()
}

func NewHTTPServerWorker(log *slog.Logger, address string, handler http.Handler, onShutdown func()) *HTTPServerWorker {
	return &HTTPServerWorker{log: log, address: address, handler: handler, onShutdown: onShutdown}
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}
	server := &http.Server{Handler: w.handler, ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting HTTP server", "address", listener.Addr().String(), "at", time.Now().UTC())
		errChan <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		w.log.Info("Stopping HTTP server")
		if w.onShutdown != nil {
			w.onShutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = server.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("HTTP server did not drain", "error", err)
		}
		return nil
	case err = <-errChan:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	}
}
