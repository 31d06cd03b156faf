package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/config"
	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-order-fulfillment/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/logger"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-order-fulfillment/internal/telemetry"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	lg, err := logger.NewLogger(cfg.ServiceName, cfg.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("fulfillment service exited", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTelemetry(sctx); err != nil {
			lg.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	store := postgres.NewStore(db)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		// cache is optional; invalidation errors are logged per order
		lg.Warn("redis unreachable, continuing", zap.Error(err))
	}

	engine := fulfillment.NewEngine(store, lg.Named("engine"),
		fulfillment.WithMaxAttempts(cfg.ReservationAttempts))
	runnerOpts := []fulfillment.RunnerOption{fulfillment.WithWorkers(cfg.FulfillmentWorkers)}

	// Producers: reserved & rejected (dua topic berbeda)
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		pOK := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderReserved, 1024, lg)
		pOK.Start(ctx)
		pRJ := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderRejected, 1024, lg)
		pRJ.Start(ctx)
		producers = append(producers, pOK, pRJ)
		runnerOpts = append(runnerOpts, fulfillment.WithPublisher(kafkax.NewOutcomePublisher(pOK, pRJ, cfg.ServiceName)))
	} else {
		lg.Info("KAFKA_BROKERS empty, outcome events disabled")
	}

	runner := fulfillment.NewRunner(store.Orders(), engine, redisx.NewInvalidator(rdb, lg), lg.Named("runner"), runnerOpts...)
	scheduler := fulfillment.NewScheduler(runner, cfg.FulfillmentInterval, lg.Named("scheduler"))
	monitor := fulfillment.NewMonitor(scheduler, store.Orders(), redisx.NewStatsCache(rdb), lg)

	router := httpx.NewRouter(lg.Named("http"))
	(&httpx.StatusHandler{Monitor: monitor, Log: lg}).Register(router)
	srv := httpx.NewServer(cfg.HTTPAddr, router)

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		lg.Info("shutting down", zap.String("signal", s.String()))
	case err := <-serveErr:
		lg.Error("http server failed", zap.Error(err))
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if err := scheduler.Stop(ctx2); err != nil {
		lg.Warn("scheduler stop", zap.Error(err))
	}
	for _, p := range producers {
		p.Close() // flush & close writer
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	return nil
}
