package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/skill_market/internal/app"
	"github.com/Freeeeeet/skill_market/internal/chat"
	"github.com/Freeeeeet/skill_market/internal/config"
	"github.com/Freeeeeet/skill_market/internal/controller"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/Freeeeeet/skill_market/internal/payment"
	"github.com/Freeeeeet/skill_market/internal/payment/paymenttest"
	"github.com/Freeeeeet/skill_market/internal/repository"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/Freeeeeet/skill_market/internal/service"
	"github.com/Freeeeeet/skill_market/internal/settlement"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const serviceName = "skill_market"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment, cfg.LogLevel, serviceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Marketplace stopped with error", zap.Error(err))
	}
	logger.Info("Marketplace stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting marketplace engine",
		zap.String("environment", cfg.Environment),
		zap.String("currency", cfg.Currency))

	shutdownTracer, err := app.InitTracer(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	// База данных
	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		return err
	}
	err = migrator.Run(ctx)
	migrator.Close()
	if err != nil {
		return err
	}

	// Репозитории
	tx := base.NewTransactor(pool)
	units := repository.NewUnitRepository(pool)
	requests := repository.NewRequestRepository(pool)
	proposals := repository.NewProposalRepository(pool)
	engagements := repository.NewEngagementRepository(pool)
	occupants := repository.NewOccupantRepository(pool)
	ledger := repository.NewLedgerRepository(pool)
	users := repository.NewIdentityRepository(pool)
	identity := repository.NewCachedIdentity(users, cfg.IdentityCacheTTL)

	// Платёжный процессор
	processor, err := newProcessor(cfg, logger)
	if err != nil {
		return err
	}
	escrow := settlement.NewOrchestrator(tx, ledger, repository.NewAdvisoryLocker(pool, logger), processor, cfg.Currency, logger)

	// Уведомления
	var sinks []notify.Sink
	var notifyBot *controller.BotController
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		sinks = append(sinks, notify.NewTelegramSink(b, identity))
		notifyBot = controller.NewBotController(b, users, logger)
		if err := notifyBot.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands not registered", zap.Error(err))
		}
	}
	if cfg.AMQPURL != "" {
		sink, err := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer sink.Close()
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		logger.Warn("No notification sinks configured, notifications will be dropped")
	}
	dispatcher := notify.NewDispatcher(cfg.NotifyWorkers, cfg.NotifyQueue, logger, sinks...)

	var conversations service.ConversationStarter
	if cfg.StreamAPIKey != "" {
		starter, err := chat.NewStreamStarter(cfg.StreamAPIKey, cfg.StreamAPISecret, logger)
		if err != nil {
			return err
		}
		conversations = starter
	}

	// Сервисы
	settings := service.Settings{
		MaxLeadTime:    cfg.MaxLeadTime,
		ResponseWindow: cfg.ResponseWindow,
		HoldTTL:        cfg.HoldTTL,
		DraftTTL:       cfg.DraftTTL,
		SweepBatch:     cfg.SweepBatch,
	}
	unitSv := service.NewUnitService(tx, units, occupants, engagements, identity, settings, logger)
	projectSv := service.NewProjectService(tx, requests, proposals, engagements, escrow, identity, dispatcher, conversations, logger)
	requestSv := service.NewRequestService(tx, requests, proposals, projectSv, identity, dispatcher, settings, logger)
	sessionSv := service.NewSessionService(tx, units, engagements, occupants, escrow, identity, dispatcher, conversations, logger)
	expirySv := service.NewExpiryService(requests, occupants, units, requestSv, sessionSv, unitSv, settings, logger)

	dispatcher.Start(ctx)
	scheduler := app.NewScheduler(expirySv, cfg.SweepInterval, logger)
	scheduler.Start(ctx)

	if notifyBot != nil {
		go notifyBot.Start(ctx)
	}

	logger.Info("✅ Marketplace engine is running")
	<-ctx.Done()

	logger.Info("Shutting down...")
	scheduler.Stop()
	dispatcher.Wait()
	return nil
}

func newProcessor(cfg *config.Config, logger *zap.Logger) (payment.Processor, error) {
	// В production ключи обязательны, это проверяет config.Validate
	if cfg.OmiseSecretKey == "" {
		logger.Warn("⚠️  Omise keys not set, using in-memory payment processor")
		return paymenttest.New(), nil
	}

	client, err := payment.NewOmiseClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		return nil, err
	}
	return payment.NewOmiseProcessor(client, cfg.ProcessorRPS, logger), nil
}
