package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/anonlounge/anonlounge/internal/adminpoll"
	"github.com/anonlounge/anonlounge/internal/admission"
	"github.com/anonlounge/anonlounge/internal/antiflood"
	"github.com/anonlounge/anonlounge/internal/app"
	"github.com/anonlounge/anonlounge/internal/bot"
	"github.com/anonlounge/anonlounge/internal/broadcast"
	"github.com/anonlounge/anonlounge/internal/captcha"
	"github.com/anonlounge/anonlounge/internal/commands"
	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/cache"
	"github.com/anonlounge/anonlounge/internal/platform/db"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/resolver"
	"github.com/anonlounge/anonlounge/internal/roles"
	"github.com/anonlounge/anonlounge/internal/security"
	"github.com/anonlounge/anonlounge/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	api := telegram.NewClient(cfg.BotToken, "", logger)

	roleService := roles.NewService(roles.NewRepository(pool), logger)
	defaultMask, err := permission.ParseList(cfg.DefaultPermissions)
	if err != nil {
		logger.Error("parse default permissions", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := roleService.EnsureDefault(ctx, defaultMask); err != nil {
		logger.Error("ensure default role", slog.Any("error", err))
		os.Exit(1)
	}

	userService := users.NewService(users.NewRepository(pool), roles.DefaultRoleName, logger)

	assignments, err := roles.ParseAssignments(cfg.RoleAssignments)
	if err != nil {
		logger.Error("parse role assignments", slog.Any("error", err))
		os.Exit(1)
	}
	for roleName, ids := range assignments {
		for _, id := range ids {
			if _, err := userService.GetOrCreate(ctx, id); err != nil {
				logger.Error("seed assigned user", slog.Int64("user_id", id), slog.Any("error", err))
				os.Exit(1)
			}
			if err := userService.SetRole(ctx, id, roleName); err != nil {
				logger.Warn("seed role assignment",
					slog.Int64("user_id", id),
					slog.String("role", roleName),
					slog.Any("error", err))
			}
		}
	}

	queue := broadcast.NewQueue(cfg.SendRate)
	pollPool := broadcast.NewPollPool()
	relay := broadcast.NewRelay(api, queue, userService, broadcast.NewLogStore(pool), pollPool, logger)

	captchaManager := captcha.NewManager(captcha.Config{
		FailuresPerNewChallenge: cfg.CaptchaRegenEvery,
		Expiry:                  cfg.CaptchaExpiry,
		MinDelay:                cfg.CaptchaMinDelay,
		MaxTries:                cfg.CaptchaMaxTries,
		LockoutAction:           captcha.Action(cfg.CaptchaLockoutAction),
		LockoutBanFor:           cfg.CaptchaLockoutBan,
	}, userService, userService, captcha.NewBitmapRenderer(), logger)

	limiter := antiflood.NewLimiter(cfg.ChatDelay, antiflood.DefaultIdleTTL, antiflood.DefaultSweepEvery, logger)
	guard := security.NewGuard(logger)
	targetResolver := resolver.NewResolver(api, redisClient, cfg.ResolverCacheTTL, logger)
	adminPolls := adminpoll.NewStore(pool)

	registry := commands.NewLoungeRegistry(commands.Deps{
		Users:       userService,
		Roles:       roleService,
		Resolver:    targetResolver,
		Guard:       guard,
		Notifier:    relay,
		Unsender:    relay,
		Polls:       relay,
		AdminPolls:  adminPolls,
		MemberPolls: pollPool,
		Logger:      logger,
	})
	executor := commands.NewExecutor(registry, relay, logger)

	chain := admission.NewChain(logger,
		admission.NewNotBannedFilter(userService),
		admission.NewActiveFilter(userService, "join", "start", "help", "ping"),
		admission.NewFloodFilter(limiter),
		admission.NewCaptchaFilter(userService, captchaManager, relay),
		admission.NewContentFilter(),
		admission.NewCommandFilter(registry),
	)

	dispatcher := bot.NewDispatcher(bot.Config{
		Workers:        cfg.DispatchWorkers,
		StartupBanner:  cfg.StartupBanner,
		ShutdownBanner: cfg.ShutdownBanner,
	}, api, userService, chain, executor, relay, pollPool, adminPolls, logger)

	if err := api.SetMyCommands(ctx, registry.BotCommands()); err != nil {
		logger.Warn("publish command menu", slog.Any("error", err))
	}

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(app.RouterParams{Logger: logger, Config: cfg, Handler: dispatcher}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.UpdateMode == "polling" {
		group.Go(func() error {
			return dispatcher.Run(groupCtx)
		})
	}

	logger.Info("lounge engine started", slog.String("mode", cfg.UpdateMode))
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
