package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/config"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/gateway"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/handler"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/notify"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/repository"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/server"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/service"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/worker"
	"github.com/Astemirdum/library-borrowing/borrowing/migrations"
	"github.com/Astemirdum/library-borrowing/pkg/kafka"
	"github.com/Astemirdum/library-borrowing/pkg/logger"
	"github.com/Astemirdum/library-borrowing/pkg/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "borrowing")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	asyncProducer, err := kafka.NewAsyncProducer(cfg.Kafka)
	if err != nil {
		log.Fatal("kafka.NewAsyncProducer", zap.Error(err))
	}
	eventLog := notify.NewEventLog(asyncProducer, log)
	notifiers := notify.Multi{eventLog}
	var telegram *notify.Telegram
	if cfg.Telegram.Enabled() {
		telegram = notify.NewTelegram(cfg.Telegram, log)
		notifiers = append(notifiers, telegram)
	}

	svc := service.NewService(repo, gateway.NewStripe(cfg.Stripe, log), notifiers, log,
		service.WithHoldTTL(cfg.Borrowing.HoldTTL))

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Fatal("kafka.NewProducer", zap.Error(err))
	}
	consumerGroup, err := kafka.NewConsumer(cfg.Kafka, kafka.BorrowingConsumerGroup)
	if err != nil {
		log.Fatal("kafka.NewConsumer", zap.Error(err))
	}

	h := handler.New(svc, handler.NewEnqueuer(producer), log)
	srv := server.NewServer(cfg.Server, h.NewRouter())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr",
				net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		return srv.Run()
	})
	g.Go(func() error {
		return kafka.Consume(gctx, consumerGroup,
			handler.NewConsumer(svc.ConfirmSession, log), kafka.PaymentConfirmationTopic)
	})
	g.Go(func() error {
		return worker.NewDigest(svc, cfg.Borrowing.DigestInterval, log).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Debug("Graceful shutdown", zap.NamedError("cause", context.Cause(gctx)))

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})

	if err = g.Wait(); err != nil {
		log.Error("app stopped", zap.Error(err))
	}

	if err = consumerGroup.Close(); err != nil {
		log.Error("consumerGroup.Close", zap.Error(err))
	}
	if err = producer.Close(); err != nil {
		log.Error("producer.Close", zap.Error(err))
	}
	if telegram != nil {
		telegram.Close()
	}
	if err = eventLog.Close(); err != nil {
		log.Error("eventLog.Close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
