package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"auth-session-control/internal/audit/event"
	"auth-session-control/internal/audit/producer"
	auditrepo "auth-session-control/internal/audit/repository"
	"auth-session-control/internal/config"
	"auth-session-control/internal/db"
	"auth-session-control/internal/policy/engine"
	"auth-session-control/internal/security"
	"auth-session-control/internal/server"
	"auth-session-control/internal/telemetry/otel"
)

const serviceName = "auth-session-control"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, otel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	tokens, err := security.NewTokenProvider(
		[]byte(cfg.JWTAccessSecret), []byte(cfg.JWTRefreshSecret),
		cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL(),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	policyEval := engine.NewOPAEvaluator("")
	if err := policyEval.HealthCheck(ctx); err != nil {
		log.Fatalf("policy: %v", err)
	}

	kafkaProducer, err := producer.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	var kafkaEmitter event.Emitter
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		kafkaEmitter = kafkaProducer
	}
	emitter := event.Multi(kafkaEmitter, otel.NewEventEmitter(providers.LoggerProvider))

	s, healthSrv := server.New(server.Deps{
		Tokens:    tokens,
		AuditRepo: auditrepo.NewPostgresRepository(conn),
		Emitter:   emitter,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	readinessCtx, stopReadiness := context.WithCancel(ctx)
	defer stopReadiness()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			if err := conn.Ping(); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthSrv.SetServingStatus("", status)
			select {
			case <-readinessCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	healthSrv.Shutdown()
	s.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("gRPC server stopped")
}
