package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/flatroom/flat-server-go/internal/convert"
	"github.com/flatroom/flat-server-go/internal/core"
	"github.com/flatroom/flat-server-go/internal/login"
	"github.com/flatroom/flat-server-go/internal/metrics"
	natsbackend "github.com/flatroom/flat-server-go/internal/nats"
	flatotel "github.com/flatroom/flat-server-go/internal/otel"
	"github.com/flatroom/flat-server-go/internal/rediscache"
	"github.com/flatroom/flat-server-go/internal/scheduler"
	"github.com/flatroom/flat-server-go/internal/server"
	"github.com/flatroom/flat-server-go/internal/storage/sqlite"
	"github.com/flatroom/flat-server-go/internal/token"
	"github.com/flatroom/flat-server-go/internal/whiteboard"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const grpcServiceName = "flat.v1.FlatServer"

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	ctx := context.Background()

	// OpenTelemetry is opt-in via FLAT_OTEL_ENDPOINT.
	otelShutdown, err := flatotel.Setup(ctx, flatotel.Config{
		ServiceName:    "flat-server",
		ServiceVersion: version,
		Endpoint:       cfg.OTELEndpoint,
	})
	if err != nil {
		slog.Error("failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// NATS always carries file events; it backs the login cache unless Redis is chosen.
	backend, err := natsbackend.New(cfg.NatsURL, core.AuthStateTTL)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	slog.Info("connected to NATS", "url", cfg.NatsURL)

	checks := map[string]server.Pinger{"sqlite": store, "nats": backend}
	var cache core.AuthCache = backend.AuthCache()
	if cfg.CacheDriver == server.CacheDriverRedis {
		redisCache, err := rediscache.New(ctx, cfg.RedisURL, core.AuthStateTTL)
		if err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		cache = redisCache
		checks["redis"] = redisCache
		slog.Info("using Redis login cache")
	}

	metrics.Init(version, cfg.CacheDriver)

	broker := natsbackend.NewPubSubBroker(backend.Conn())
	defer broker.Close()

	converted, unsubscribe, err := broker.SubscribeConverted()
	if err != nil {
		slog.Warn("conversion audit log disabled", "error", err)
	} else {
		defer unsubscribe()
		go logConversions(converted)
	}

	tokens, err := token.NewManager(token.Config{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})
	if err != nil {
		slog.Error("failed to create token manager", "error", err)
		os.Exit(1)
	}

	wb := whiteboard.New(whiteboard.Config{
		BaseURL:         cfg.WhiteboardBaseURL,
		SDKToken:        cfg.WhiteboardSDKToken,
		AccessKey:       cfg.WhiteboardAccessKey,
		SecretAccessKey: cfg.WhiteboardSecretAccessKey,
		TaskTokenTTL:    cfg.WhiteboardTaskTokenTTL,
	}, nil)
	convertSvc := convert.NewService(store, wb,
		convert.WithEvents(broker),
		convert.WithDefaultRegion(core.Region(cfg.WhiteboardRegion)),
	)

	github := login.NewGithubProvider(login.GithubConfig{
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
		RedirectURI:  cfg.GithubRedirectURI,
	}, nil)
	loginSvc := login.NewService(cache, store, tokens, github)

	sched, err := scheduler.New(convertSvc, scheduler.Config{
		Schedule: cfg.ReconcileSchedule,
		Age:      cfg.ReconcileAge,
		Limit:    cfg.ReconcileLimit,
	})
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	router := server.NewRouter(server.Deps{
		Convert: convertSvc,
		Login:   loginSvc,
		Tokens:  tokens,
		Health:  checks,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("flat server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("failed to listen for gRPC", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		slog.Info("gRPC health server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	healthSrv.Shutdown()
	sched.Stop()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// logConversions writes an audit line for every settled conversion,
// including those settled by another instance.
func logConversions(events <-chan *core.FileEvent) {
	for event := range events {
		slog.Info("file conversion settled",
			"file_uuid", event.FileUUID,
			"step", string(event.Step),
			"occurred_at", event.OccurredAt,
		)
	}
}
