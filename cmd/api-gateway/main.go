package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-admissions-api/api/swagger"
	"github.com/noah-isme/sma-admissions-api/internal/handler"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/database"
	"github.com/noah-isme/sma-admissions-api/pkg/events"
	"github.com/noah-isme/sma-admissions-api/pkg/jobs"
	"github.com/noah-isme/sma-admissions-api/pkg/logger"
	"github.com/noah-isme/sma-admissions-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/sma-admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admissions-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

// @title SMA Admissions API
// @version 1.0.0
// @description Enquiry intake, admission review and document verification for school admissions.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	var locker cache.Locker = cache.NopLocker{}
	if redisClient != nil {
		defer redisClient.Close()
		locker = cache.NewRedisLocker(redisClient, "admissions:lock:")
	}

	store, closeStore, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		logr.Fatal("failed to init document storage", zap.Error(err))
	}
	defer closeStore.Close()

	publisher, err := newPublisher(ctx, cfg.Events, logr)
	if err != nil {
		logr.Fatal("failed to init event publisher", zap.Error(err))
	}
	defer publisher.Close()

	template, err := service.LoadDocumentTemplate(cfg.Documents.TemplatePath)
	if err != nil {
		logr.Fatal("failed to load document template", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	notifications := service.NewNotificationService(publisher, newMailer(cfg.Mail, logr), metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Admissions.ProvisionWorkers,
		MaxRetries: cfg.Admissions.ProvisionRetries,
		RetryDelay: time.Second,
		MaxDelay:   30 * time.Second,
	})
	notifications.Start(context.WithoutCancel(ctx))

	userRepo := repository.NewUserRepository(db)
	enquiryRepo := repository.NewEnquiryRepository(db)
	admissionRepo := repository.NewAdmissionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	auditRepo := repository.NewAdmissionAuditRepository(db)

	cacheRepo := repository.NewCacheRepository(redisClient, "admissions", logr)
	cacheService := service.NewCacheService(cacheRepo, metrics, cfg.Summary.CacheTTL, logr, redisClient != nil)
	summaryService := service.NewSummaryService(enquiryRepo, admissionRepo, cacheService, cfg.Summary.CacheTTL)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	enquiryService := service.NewEnquiryService(enquiryRepo, validate, logr, metrics, summaryService, service.EnquiryServiceConfig{
		PhoneRegion: cfg.Admissions.DefaultPhoneRegion,
		Template:    template,
	})
	admissionService := service.NewAdmissionService(admissionRepo, documentRepo, auditRepo, validate, logr, service.AdmissionServiceConfig{
		PhoneRegion:       cfg.Admissions.DefaultPhoneRegion,
		Template:          template,
		PhotoMaxDimension: cfg.Admissions.PhotoMaxDimension,
		PhotoMaxBytes:     cfg.Documents.MaxFileSizeBytes,
		ReviewLockTTL:     cfg.Admissions.ReviewLockTTL,
	},
		service.WithAdmissionStore(store),
		service.WithDecisionNotifier(notifications),
		service.WithSummaryInvalidator(summaryService),
		service.WithAdmissionLocker(locker),
		service.WithAdmissionMetrics(metrics),
	)
	documentService := service.NewDocumentService(documentRepo, admissionRepo, store, validate, logr, service.DocumentServiceConfig{
		MaxFileSize:   cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs:  cfg.Documents.AllowedMIMEs,
		DownloadPath:  cfg.APIPrefix + "/documents/%s/download",
		ReviewLockTTL: cfg.Admissions.ReviewLockTTL,
	},
		service.WithDocumentSigner(storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)),
		service.WithDocumentLocker(locker),
		service.WithDocumentMetrics(metrics),
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, routes{
		auth:       authService,
		authH:      handler.NewAuthHandler(authService),
		enquiries:  handler.NewEnquiryHandler(enquiryService),
		admissions: handler.NewAdmissionHandler(admissionService, summaryService),
		documents:  handler.NewDocumentHandler(documentService),
		ops:        handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown requested")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown incomplete", zap.Error(err))
	}
	notifications.Stop(shutdownCtx)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, io.Closer, error) {
	switch cfg.Backend {
	case config.StorageGCS:
		gcs, err := storage.NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs, nil
	case config.StorageLocal, "":
		local, err := storage.NewLocalStorage(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return local, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newPublisher(ctx context.Context, cfg config.EventsConfig, logr *zap.Logger) (events.Publisher, error) {
	switch cfg.Publisher {
	case config.PublisherPubSub:
		publisher, err := events.NewPubSubPublisher(ctx, cfg.PubSubProjectID, cfg.Topic, cfg.PubSubCredentials)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.PublisherKafka:
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.PublisherLog, "":
		return events.NewLogPublisher(logr), nil
	default:
		return nil, fmt.Errorf("unknown event publisher %q", cfg.Publisher)
	}
}

func newMailer(cfg config.MailConfig, logr *zap.Logger) mailer.Mailer {
	if cfg.SendGridAPIKey == "" {
		return mailer.NewLogMailer(logr)
	}
	return mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail)
}
