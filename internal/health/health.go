// Package health serves the standard gRPC health protocol for the cart service.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/cartsync/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health entry reported alongside the overall "" entry.
const ServiceName = "cartsync.CartService"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Checker struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	log      *slog.Logger
	serving  bool
}

func NewChecker(pinger Pinger, interval time.Duration, log *slog.Logger) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	c := &Checker{
		server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		log:      logger.OrDefault(log).With("component", "health"),
	}
	c.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// NewGRPCServer builds a traced gRPC server exposing health and reflection.
func (c *Checker) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, c.server)
	reflection.Register(srv)
	return srv
}

// Run checks immediately and then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) Check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, c.interval/2)
	defer cancel()

	if err := c.pinger.Ping(pingCtx); err != nil {
		if c.serving {
			c.log.WarnContext(ctx, "dependency ping failed", "error", err)
		}
		c.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	if !c.serving {
		c.log.InfoContext(ctx, "service is serving")
	}
	c.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// Shutdown marks every entry NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

func (c *Checker) Server() healthpb.HealthServer {
	return c.server
}

func (c *Checker) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	c.serving = status == healthpb.HealthCheckResponse_SERVING
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
