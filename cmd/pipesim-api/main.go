// pipesim-api — HTTP-сервер симулятора CI/CD pipeline.
//
// Запуск run проходит стадии checkout → build → test → scan → push → deploy,
// события стадий раздаются по SSE (/api/events) и WebSocket (/ws)
// и, если задан amqp.url, зеркалируются в RabbitMQ.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shaiso/pipesim/internal/api"
	"github.com/shaiso/pipesim/internal/config"
	"github.com/shaiso/pipesim/internal/events"
	"github.com/shaiso/pipesim/internal/mq"
	"github.com/shaiso/pipesim/internal/orchestrator"
	"github.com/shaiso/pipesim/internal/repo"
	"github.com/shaiso/pipesim/internal/telemetry"
	"github.com/shaiso/pipesim/internal/worker"
)

var startTime = time.Now()

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $PIPESIM_CONFIG or ./pipesim.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info("starting pipesim-api",
		"stages", cfg.Pipeline.Stages,
		"stage_delay", cfg.Pipeline.StageDelay,
	)

	shutdownTracing, err := telemetry.SetupTracing(cfg.Tracing.Stdout, os.Stderr)
	if err != nil {
		return err
	}

	// Хранилище и шина событий
	store := repo.NewRunRepo()
	bus := events.New(events.Config{
		Buffer: cfg.Events.Buffer,
		Logger: logger,
	})

	driver := worker.New(worker.Config{
		Store:      store,
		Publisher:  bus,
		Stages:     cfg.Pipeline.Stages,
		StageDelay: cfg.Pipeline.StageDelay,
		Logger:     logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Repo:   store,
		Driver: driver,
		Logger: logger,
	})

	// RabbitMQ необязателен
	var relay *mq.Relay
	var amqpConn *mq.Connection
	if cfg.AMQPEnabled() {
		amqpConn, relay, err = startRelay(cfg, bus, logger)
		if err != nil {
			return err
		}
	}

	handler := api.NewHandler(api.Config{
		Runs:      orch,
		Bus:       bus,
		Heartbeat: cfg.Events.Heartbeat,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
		if amqpConn != nil && !amqpConn.IsConnected() {
			fmt.Fprint(w, " amqp=down")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	mux.Handle("/", handler.Routes())

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           otelhttp.NewHandler(mux, telemetry.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down", "timeout", cfg.Shutdown.Timeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer shutdownCancel()

	// 1. Новые runs не принимаются, работающие дорабатывают или отменяются
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Warn("runs cancelled on shutdown", "error", err)
	}

	// 2. Закрываем шину: SSE и WebSocket клиенты получают конец потока
	bus.Close()

	// 3. HTTP сервер. Потоковые соединения уже завершаются сами
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if relay != nil {
		relay.Stop()
		amqpConn.Close()
	}

	if err := shutdownTracing(context.Background()); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}

// startRelay подключается к RabbitMQ и запускает зеркалирование событий.
func startRelay(cfg *config.Config, bus *events.Broadcaster, logger *slog.Logger) (*mq.Connection, *mq.Relay, error) {
	conn, err := mq.NewConnection(cfg.AMQP.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	exchange := mq.Exchange(cfg.AMQP.Exchange)
	if err := mq.SetupTopology(context.Background(), conn, exchange); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("setup topology: %w", err)
	}
	logger.Debug("rabbitmq topology", "info", mq.TopologyInfo(exchange))

	relay := mq.NewRelay(mq.RelayConfig{
		Source:    bus,
		Publisher: mq.NewPublisher(conn, exchange, logger),
		Logger:    logger,
	})
	relay.Start(context.Background())

	return conn, relay, nil
}
