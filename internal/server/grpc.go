// Package server assembles the gRPC server: interceptor chain, OTel stats
// handler, and service registration.
package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"

	"auth-session-control/internal/audit/event"
	auditrepo "auth-session-control/internal/audit/repository"
	"auth-session-control/internal/security"
	"auth-session-control/internal/server/interceptors"
)

// Health service full method names; always public and never audited.
const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// Deps holds the dependencies the server wires into its interceptor chain.
type Deps struct {
	// Tokens validates Bearer access tokens for protected RPCs.
	Tokens *security.TokenProvider
	// AuditRepo persists per-RPC audit entries. If nil, RPCs are not audited.
	AuditRepo auditrepo.Repository
	// Emitter streams per-RPC events (Kafka, OTel logs). If nil, no events are emitted.
	Emitter event.Emitter
}

// New builds the gRPC server with the auth, audit, and telemetry interceptors
// and registers the standard health service. The returned health server starts
// in NOT_SERVING; the caller flips it once the database is reachable.
func New(deps Deps) (*grpc.Server, *health.Server) {
	publicMethods := map[string]bool{
		healthCheckMethod: true,
		healthWatchMethod: true,
	}
	skipMethods := map[string]bool{
		healthCheckMethod: true,
		healthWatchMethod: true,
	}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(deps.Tokens, publicMethods),
			interceptors.AuditUnary(deps.AuditRepo, skipMethods),
			interceptors.TelemetryUnary(deps.Emitter, skipMethods),
		),
	)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, healthSrv)
	return s, healthSrv
}
