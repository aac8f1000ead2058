package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/audit"
	"github.com/MillerSebastian/telegram-call/internal/auth"
	"github.com/MillerSebastian/telegram-call/internal/calls"
	"github.com/MillerSebastian/telegram-call/internal/config"
	"github.com/MillerSebastian/telegram-call/internal/flow"
	"github.com/MillerSebastian/telegram-call/internal/notify"
	"github.com/MillerSebastian/telegram-call/internal/session"
	"github.com/MillerSebastian/telegram-call/internal/telegram"
	"github.com/MillerSebastian/telegram-call/internal/telephony"
	"github.com/MillerSebastian/telegram-call/internal/validation"
	"github.com/MillerSebastian/telegram-call/pkg/logger"
	"github.com/MillerSebastian/telegram-call/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, closeRepo, err := openSessionRepo(rootCtx, cfg)
	if err != nil {
		log.Error("session repository init failed", "err", err)
		os.Exit(1)
	}
	defer closeRepo()

	store := session.NewStore(repo, log)
	if err := store.Load(rootCtx); err != nil {
		// Start from an empty table rather than refusing to serve calls.
		log.Warn("session snapshot load failed, starting empty", "err", err)
	}

	flowCfg := flow.DefaultConfig()
	flowCfg.RetryLimit = cfg.Flow.RetryLimit
	flowCfg.CorrectionLimit = cfg.Flow.CorrectionLimit
	flowCfg.WaitSeconds = cfg.Flow.WaitSeconds

	tgClient := telegram.NewClient(cfg.Telegram.BotToken, log)
	dispatcher := notify.NewDispatcher(tgClient, cfg.Telegram.BroadcastChatID, log)

	engine := flow.NewEngine(flowCfg, store, dispatcher, log)
	gate := telephony.NewNotifyGate(cfg.Flow.NotifySuppressWindow, cfg.Flow.NotifyGateTTL)
	statusSvc := telephony.NewStatusService(store, gate, dispatcher, log)

	firstStep, ok := flowCfg.FirstStep()
	if !ok {
		log.Error("flow config has no steps")
		os.Exit(1)
	}
	dialer := telephony.NewTwilioDialer(
		cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken,
		cfg.Twilio.FromNumber,
		cfg.App.BaseURL+"/voice/step/"+firstStep.Field,
		cfg.App.BaseURL+"/voice/status",
		log,
	)
	callsSvc := calls.NewService(dialer, store, dispatcher, log)

	auditSvc := audit.NewService(audit.NewMemoryRepo(), log)
	coordinator := validation.NewCoordinator(store, flowCfg, log)
	gateway := telegram.NewGateway(tgClient, coordinator, callsSvc, auditSvc, cfg.Telegram.PollInterval, log)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:         cfg,
		engine:      engine,
		statusSvc:   statusSvc,
		store:       store,
		coordinator: coordinator,
		callsSvc:    callsSvc,
		gateway:     gateway,
		auditSvc:    auditSvc,
		authManager: authManager,
	})

	// The operator channel must be listening before the first call needs a
	// decision.
	gateway.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	gateway.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// openSessionRepo builds the configured snapshot repository and returns a
// cleanup for whatever connection it holds.
func openSessionRepo(ctx context.Context, cfg config.Config) (session.Repository, func(), error) {
	noop := func() {}

	switch cfg.Session.Backend {
	case config.SessionBackendFile:
		repo, err := session.NewFileRepo(cfg.Session.FilePath)
		return repo, noop, err

	case config.SessionBackendRedis:
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return nil, noop, err
		}
		repo, err := session.NewRedisRepo(rdb)
		if err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return repo, func() { _ = rdb.Close() }, nil

	case config.SessionBackendPostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, noop, err
		}
		repo, err := session.NewPostgresRepo(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return repo, func() { _ = db.Close() }, nil

	default:
		return nil, noop, errors.New("unsupported session backend")
	}
}
