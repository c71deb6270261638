// Package app собирает сервис клиентов из конфигурации и управляет жизненным циклом компонентов.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/customers/internal/health"
	"github.com/vladislavdragonenkov/customers/internal/httpserver"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
	"github.com/vladislavdragonenkov/customers/internal/service/customer"
	"github.com/vladislavdragonenkov/customers/internal/service/events"
	"github.com/vladislavdragonenkov/customers/internal/version"
)

// Run запускает HTTP API, gRPC health сервер и outbox relay и останавливает их при отмене ctx.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer deps.close(logger)

	customerMetrics := metrics.NewCustomerMetrics()
	dispatcher := events.NewLoggingDispatcher(log.WithField("component", "domain-events"), customerMetrics)
	rules := cfg.BusinessRules()
	svc, err := customer.NewService(deps.customers, dispatcher, &rules,
		customer.WithLogger(log.WithField("component", "customer-service")),
		customer.WithMetrics(customerMetrics),
	)
	if err != nil {
		return err
	}

	// ошибка уже залогирована, сервис работает без relay
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	healthHandler := newHealthHandler(deps, cfg, producer != nil)
	httpSrv := httpserver.New(cfg.HTTPAddr, svc, healthHandler, nil, log.WithField("component", "http"))
	grpcServer, grpcHealth := newGRPCServer(logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", lis.Addr().String()).Info("grpc server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	if producer != nil {
		worker := newOutboxWorker(deps.outbox, producer, cfg, metrics.NewOutboxMetrics(), logger)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	} else {
		logger.Info("kafka is not configured, outbox relay disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdown(httpSrv, grpcServer, cfg.ShutdownTimeout, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newHealthHandler собирает проверки готовности. Backlog outbox проверяется
// только при работающем relay: без него события копятся намеренно.
func newHealthHandler(deps *runtimeDependencies, cfg Config, relayEnabled bool) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.Version())
	handler.RegisterChecker("storage", deps.storageChecker)
	if relayEnabled {
		handler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outbox, cfg.OutboxMaxAge))
	}
	return handler
}

// shutdown останавливает HTTP и gRPC серверы в пределах timeout.
func shutdown(httpSrv *httpserver.Server, grpcServer *grpc.Server, timeout time.Duration, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}
