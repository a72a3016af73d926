package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/blobrelay/internal/ingest"
	"github.com/your-org/blobrelay/internal/ledger"
	"github.com/your-org/blobrelay/pkg/config"
	"github.com/your-org/blobrelay/pkg/kafka"
	"github.com/your-org/blobrelay/pkg/logger"
	"github.com/your-org/blobrelay/pkg/storage/objectstore"
	"github.com/your-org/blobrelay/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
		ResourceAttr: cfg.Tracing.ResourceAttr,
		ServiceName:  cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.DeadLetterTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})

	ledgr := ledger.New(cfg.Ledger.TTL)
	defer ledgr.Stop()

	pipeline := ingest.NewPipeline(ingest.PipelineParams{
		Store:         store,
		Ledger:        ledgr,
		Logger:        logr,
		DestContainer: cfg.Pipeline.DestContainer,
		DestPrefix:    cfg.Pipeline.DestPrefix,
	})

	dispatcher := ingest.NewDispatcher(ingest.DispatcherParams{
		Processor:   pipeline,
		DeadLetter:  ingest.NewKafkaDeadLetter(producer),
		Logger:      logr,
		Workers:     cfg.Dispatcher.Workers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		BackoffBase: cfg.Dispatcher.BackoffBase,
		BackoffMax:  cfg.Dispatcher.BackoffMax,
		Jitter:      cfg.Dispatcher.Jitter,
		RunTimeout:  cfg.Pipeline.RunTimeout,
	})
	dispatcher.Start()

	handler := ingest.NewHTTPHandler(dispatcher, logr, cfg.HTTP.MaxBodyBytes)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logr.Error("dispatcher drain incomplete", zap.Error(err))
		}
		if err := producer.Close(shutdownCtx); err != nil {
			logr.Error("producer shutdown failed", zap.Error(err))
		}
		if err := store.Close(); err != nil {
			logr.Error("object store shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("relay service starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}
