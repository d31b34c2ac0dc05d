package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/essencelink/internal/dispatcher"
	"github.com/your-org/essencelink/internal/handler"
	"github.com/your-org/essencelink/internal/listener"
	"github.com/your-org/essencelink/internal/mediahaven"
	"github.com/your-org/essencelink/internal/ops"
	"github.com/your-org/essencelink/internal/pid"
	"github.com/your-org/essencelink/internal/ports"
	"github.com/your-org/essencelink/pkg/config"
	"github.com/your-org/essencelink/pkg/kafka"
	"github.com/your-org/essencelink/pkg/logger"
	"github.com/your-org/essencelink/pkg/rabbitmq"
	"github.com/your-org/essencelink/pkg/retry"
	"github.com/your-org/essencelink/pkg/storage/objectstore"
	"github.com/your-org/essencelink/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  tracing.ParseAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	rmq, err := rabbitmq.Dial(ctx, rabbitmq.Config{
		Host:         cfg.RabbitMQ.Host,
		Port:         cfg.RabbitMQ.Port,
		Username:     cfg.RabbitMQ.Username,
		Password:     cfg.RabbitMQ.Password,
		VHost:        cfg.RabbitMQ.VHost,
		Exchange:     cfg.RabbitMQ.Exchange,
		ExchangeType: cfg.RabbitMQ.ExchangeType,
		Queue:        cfg.RabbitMQ.Queue,
		RoutingKeys: []string{
			cfg.RabbitMQ.EssenceLinkedRoutingKey,
			cfg.RabbitMQ.EssenceUnlinkedRoutingKey,
			cfg.RabbitMQ.ObjectDeletedRoutingKey,
		},
		Prefetch:       cfg.RabbitMQ.Prefetch,
		ReconnectDelay: cfg.RabbitMQ.ReconnectDelay,
		ConsumerTag:    cfg.App.Name,
	}, logger.Named(logr, "rabbitmq"))
	if err != nil {
		logr.Fatal("connection to rabbitmq failed", zap.Error(err))
	}

	var publisher ports.Publisher = rmq
	if cfg.Outbound.Transport == config.TransportKafka {
		publisher = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Kafka.Retries,
		})
	}

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
	var probe handler.EssenceProbe
	if store != nil {
		probe = store
		defer store.Close() //nolint:errcheck
	}

	retryCfg := retry.Config{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}
	deps := handler.Deps{
		Backend: mediahaven.New(mediahaven.Config{
			Host:       cfg.MediaHaven.Host,
			Username:   cfg.MediaHaven.Username,
			Password:   cfg.MediaHaven.Password,
			PageSize:   cfg.MediaHaven.PageSize,
			HTTPClient: &http.Client{Timeout: cfg.MediaHaven.Timeout},
			Logger:     logger.Named(logr, "mediahaven"),
		}),
		PID: pid.New(pid.Config{
			URL:        cfg.PID.URL,
			HTTPClient: &http.Client{Timeout: cfg.PID.Timeout},
			Retry:      retryCfg,
			Logger:     logger.Named(logr, "pid"),
		}),
		Publisher:             publisher,
		Probe:                 probe,
		Logger:                logr,
		GetMetadataRoutingKey: cfg.RabbitMQ.GetMetadataRoutingKey,
		Retry:                 retryCfg,
	}

	disp := dispatcher.New(dispatcher.Params{
		Routes: []dispatcher.Route{
			{Key: cfg.RabbitMQ.EssenceLinkedRoutingKey, Name: "essence_linked", Handler: handler.NewLinkedHandler(deps)},
			{Key: cfg.RabbitMQ.EssenceUnlinkedRoutingKey, Name: "essence_unlinked", Handler: handler.NewEssenceUnlinkedHandler(deps)},
			{Key: cfg.RabbitMQ.ObjectDeletedRoutingKey, Name: "object_deleted", Handler: handler.NewObjectDeletedHandler(deps)},
		},
		RequeueDelay: cfg.App.RequeueDelay,
		Logger:       logger.Named(logr, "dispatcher"),
	})

	service := listener.NewService(listener.Params{
		Consumer:  rmq,
		Handler:   disp.Handle,
		Publisher: publisher,
		Logger:    logr,
	})

	opsHandler := ops.NewHTTPHandler(func() error {
		if !rmq.Healthy() {
			return errors.New("rabbitmq not connected")
		}
		return nil
	}, logger.Named(logr, "ops"))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      opsHandler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		logr.Info("ops server starting", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		return nil
	})

	logr.Info("essence event listener starting",
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.String("outbound_transport", cfg.Outbound.Transport),
	)
	runErr := g.Wait()

	if err := service.Close(context.Background()); err != nil {
		logr.Error("service shutdown failed", zap.Error(err))
	}
	if runErr != nil {
		logr.Fatal("essence event listener failed", zap.Error(runErr))
	}
}
