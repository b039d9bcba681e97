package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves the standard gRPC health service.
type GRPCServer struct {
	*grpc.Server
	health *health.Server
}

// NewGRPCServer creates a gRPC server reporting SERVING until Shutdown.
func NewGRPCServer(opts ...grpc.ServerOption) *GRPCServer {
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &GRPCServer{Server: srv, health: hs}
}

// SetServing updates the status of a named service ("" is the server).
func (s *GRPCServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
