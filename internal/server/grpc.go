package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name reported alongside "".
const ServiceName = "receipt-analyzer.Pipeline"

// Health serves grpc.health.v1 and mirrors record store reachability into
// the serving status.
type Health struct {
	srv      *grpc.Server
	health   *health.Server
	store    Pinger
	interval time.Duration
	logger   *slog.Logger
}

func NewHealth(store Pinger, interval time.Duration, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	// Reflection for grpcurl
	reflection.Register(srv)

	h := &Health{srv: srv, health: hs, store: store, interval: interval, logger: logger}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) set(s healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", s)
	h.health.SetServingStatus(ServiceName, s)
}

// Check pings the store once and updates the serving status.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.store != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.store.Ping(pctx)
		cancel()
		if err != nil {
			h.logger.Warn("server.grpc.health.not_serving", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.set(status)
	return status
}

// Serve listens on addr until ctx is cancelled.
func (h *Health) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.ServeListener(ctx, lis)
}

func (h *Health) ServeListener(ctx context.Context, lis net.Listener) error {
	h.Check(ctx)
	go h.poll(ctx)

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("server.grpc.listen", "addr", lis.Addr().String())
		errCh <- h.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		h.health.Shutdown()
		h.srv.GracefulStop()
		return nil
	}
}

func (h *Health) poll(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}
