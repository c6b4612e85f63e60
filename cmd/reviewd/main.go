package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/claims-review/internal/async"
	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/events"
	kafkaevents "github.com/joseph-ayodele/claims-review/internal/events/kafka"
	"github.com/joseph-ayodele/claims-review/internal/export"
	"github.com/joseph-ayodele/claims-review/internal/ingest"
	"github.com/joseph-ayodele/claims-review/internal/preview"
	"github.com/joseph-ayodele/claims-review/internal/records"
	"github.com/joseph-ayodele/claims-review/internal/review"
	"github.com/joseph-ayodele/claims-review/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := records.NewFileStore(records.DirsFromConfig(cfg.Queue), logger)
	if err != nil {
		logger.Error("failed to open record store", "error", err)
		os.Exit(1)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Events.Brokers) > 0 {
		kp := kafkaevents.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka writer close failed", "error", err)
			}
		}()
		queue := async.NewPublishQueue(kp, logger, async.WithWorkers(2), async.WithQueueSize(256))
		defer queue.Shutdown(context.Background())
		publisher = queue
		logger.Info("publishing review events", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}

	extractor := preview.NewExtractor(preview.Config{
		Pdftoppm: cfg.Preview.Pdftoppm,
		DPI:      cfg.Preview.DPI,
		MaxWidth: cfg.Preview.MaxWidth,
		Timeout:  cfg.Preview.Timeout,
	}, logger)

	session := review.NewSession(store, logger,
		review.WithRenderer(extractor),
		review.WithPublisher(publisher),
	)
	if err := session.Refresh(ctx); err != nil {
		logger.Error("failed to list pending records", "dir", cfg.Queue.FailsDir, "error", err)
		os.Exit(1)
	}
	pending := len(session.Queue())
	session.Subscribe(func(e review.Event) {
		logger.Debug("review.state", "command", e.Command, "record_id", e.Snapshot.RecordID, "cursor", e.Snapshot.Cursor, "total", e.Snapshot.Total)
	})

	reviewServer := server.NewReviewServer(session, export.NewService(store, publisher, logger), logger,
		server.WithMaxMessageBytes(cfg.Server.MaxMessageBytes),
	)

	if cfg.Queue.Watch {
		changes, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Dir:      cfg.Queue.FailsDir,
			Debounce: cfg.Queue.WatchDebounce,
		}, logger)
		if err != nil {
			logger.Error("failed to watch fails directory", "dir", cfg.Queue.FailsDir, "error", err)
			os.Exit(1)
		}
		go func() {
			for {
				select {
				case ids, ok := <-changes:
					if !ok {
						return
					}
					snap, err := reviewServer.Dispatch(ctx, review.Refresh{})
					if err != nil {
						logger.Warn("queue refresh failed", "error", err)
						continue
					}
					logger.Info("queue refreshed", "changed", len(ids), "pending", snap.Total)
				case err, ok := <-errs:
					if !ok {
						return
					}
					logger.Warn("watcher error", "error", err)
				}
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.UnaryLogging(logger)),
		grpc.MaxSendMsgSize(cfg.Server.MaxMessageBytes),
	)
	server.RegisterReviewServiceServer(grpcServer, reviewServer)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	logger.Info("reviewd listening", "addr", cfg.Server.GRPCAddr, "pending", pending)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
}
