package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	logger "github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

// MetricsServer exposes the Prometheus handler on its own listener.
type MetricsServer struct {
	server *http.Server
	addr   string
}

// NewMetricsServer serves handler at /metrics on addr.
func NewMetricsServer(addr string, handler http.Handler) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &MetricsServer{
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Start binds the listener and serves in the background.
func (s *MetricsServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server on %s stopped: %v", s.addr, err)
		}
	}()
	logger.Infof("Metrics served on http://%s/metrics", s.addr)
	return nil
}

// Addr returns the bound address, which differs from the configured one for ":0".
func (s *MetricsServer) Addr() string { return s.addr }

// Stop shuts the server down.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
