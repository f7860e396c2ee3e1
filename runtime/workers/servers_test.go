package workers

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())
	return address
}

func TestHTTPServerWorker_Serves_Until_Canceled(t *testing.T) {
	req := require.New(t)
	address := freeAddress(t)
	shutdownCalled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") })
	worker := NewHTTPServerWorker(slog.Default(), address, handler, func() { close(shutdownCalled) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Given the server answers
	req.Eventually(func() bool {
		resp, err := http.Get("http://" + address)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	// When the context is canceled
	cancel()

	// Then the shutdown hook ran and the worker returned without error
	req.NoError(<-done)
	<-shutdownCalled
}

func TestHTTPServerWorker_Fails_On_Busy_Address(t *testing.T) {
	req := require.New(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer func() { _ = listener.Close() }()

	worker := NewHTTPServerWorker(slog.Default(), listener.Addr().String(), http.NotFoundHandler(), nil)
	req.Error(worker.Run(context.Background()))
}

func TestGRPCServerWorker_Stops_Gracefully(t *testing.T) {
	req := require.New(t)
	worker := NewGRPCServerWorker(slog.Default(), grpc.NewServer(), freeAddress(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("gRPC worker should return after cancel")
	}
}
