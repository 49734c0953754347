package main // Entry point package

import (
	"context"
	"errors"
	"log" // fatal startup errors before the structured logger exists
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"                      // .env loading for local runs
	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // recover + request logging

	"github.com/noseryoung/course-rating/internal/config"
	"github.com/noseryoung/course-rating/internal/database"
	"github.com/noseryoung/course-rating/internal/handler"
	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/middleware"
	"github.com/noseryoung/course-rating/internal/notify"
	"github.com/noseryoung/course-rating/internal/repository"
	"github.com/noseryoung/course-rating/internal/router"
	"github.com/noseryoung/course-rating/internal/service"
	"github.com/noseryoung/course-rating/internal/utils"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment wins anyway

	cfg := config.Load() // Load environment config
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// ----- repositories -----
	userRepo := repository.NewUserRepo(db)
	ratingRepo := repository.NewRatingRepo(db)
	courseRepo := repository.NewCourseRepo(db)
	locationRepo := repository.NewLocationRepo(db)
	tokenRepo := repository.NewRefreshTokenRepo(db)
	roleRepo := repository.NewRoleRepo(db)

	// ----- notification -----
	mailCfg := config.LoadMailConfig()
	var sender notify.Sender
	switch mailCfg.Mode {
	case config.NotifyModeSMTP:
		sender = notify.NewSMTPSender(mailCfg)
	case config.NotifyModeLog:
		sender = notify.LogSender{Log: logger.With("component", "notify")}
	default:
		sender = notify.NewPublisher(mailCfg.AMQPURL, mailCfg.Queue, logger)
		consumer := notify.NewConsumer(mailCfg.AMQPURL, mailCfg.Queue, notify.NewSMTPSender(mailCfg), logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "confirmation consumer stopped", "err", err)
			}
		}()
	}

	// ----- services -----
	hasher := utils.BcryptHasher{Cost: cfg.Auth.BcryptCost}
	users := service.NewUserService(userRepo, roleRepo, hasher, time.Now, logger)
	ratings := service.NewRatingService(ratingRepo, sender, utils.NewRatingToken, logger)

	sweeper := service.NewRetentionSweeper(users, cfg.Retention.MaxAge, cfg.Retention.Interval, time.Now, logger)
	go sweeper.Run(ctx)

	// ----- HTTP -----
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn(ctx, "redis unavailable; cache and rate limit disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, logger)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Error(c.Request().Context(), "request", append(args, "err", v.Error)...)
				return nil
			}
			logger.Info(c.Request().Context(), "request", args...)
			return nil
		},
	}))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg.Auth, users, tokenRepo, logger))
	router.RegisterRatings(e, handler.NewRatingHandler(ratings, users, courseRepo, logger), cfg.Auth.JWTSecret, limiter)
	router.RegisterUsers(e, handler.NewUserHandler(users, logger), cfg.Auth.JWTSecret)
	router.RegisterCatalogue(e, handler.NewCourseHandler(courseRepo, locationRepo, cache, logger), cfg.Auth.JWTSecret, cache.Middleware())

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown", "err", err)
	}
}
