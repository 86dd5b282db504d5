package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmarin-v/slotbook/libs/config"
	"github.com/dmarin-v/slotbook/libs/db"
	"github.com/dmarin-v/slotbook/libs/httpx"
	"github.com/dmarin-v/slotbook/libs/kafkax"
	otelx "github.com/dmarin-v/slotbook/libs/otel"
	"github.com/dmarin-v/slotbook/libs/runtime"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/accounts"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/booking"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/consumer"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/handlers"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/inbox"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/matcher"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/notify"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/outbox"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/reminders"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/schedule"
	"github.com/dmarin-v/slotbook/services/booking-engine/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-engine")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid TIMEZONE, falling back to UTC", "err", err)
		loc = time.UTC
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}

	apptRepo := storage.NewAppointmentRepository(pool)
	windowRepo := storage.NewWindowRepository(pool)
	reminderRepo := storage.NewReminderRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	notifyStore := notify.NewStore(pool)

	provider, err := accounts.NewProvider(logger,
		config.String("ACCOUNTS_GRPC_ADDR", ""), accounts.NewStaticProvider())
	if err != nil {
		logger.Error("accounts provider init failed", "err", err)
		panic(err)
	}
	var prefCache *storage.PreferenceCache
	if rdb != nil {
		prefCache = storage.NewPreferenceCache(rdb, config.Duration("PREFERENCE_CACHE_TTL", 24*time.Hour))
		provider = accounts.NewCachedProvider(provider, prefCache, logger)
	}

	resolver := schedule.NewResolver(windowRepo)
	match := matcher.New(provider, resolver)
	scheduler := reminders.NewScheduler(reminderRepo, provider, logger, loc)
	windowSvc := schedule.NewService(windowRepo, logger)
	bookingSvc := booking.NewService(apptRepo, windowRepo, match, scheduler, outboxRepo, notifyStore, provider, logger, loc)

	sender := notify.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", ""),
	)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if prefCache != nil && config.String("KAFKA_BROKERS", "") != "" {
		prefConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "booking-engine"),
			Topic:   config.String("KAFKA_PREFERENCES_TOPIC", consumer.TopicPreferencesUpdated),
		}, consumer.PreferencesHandler(prefCache, logger))
		go prefConsumer.Run(ctx)
	}

	sweepLock := reminders.NewSweepLock(rdb, "booking-engine:reminder-sweep", 30*time.Second)
	reminderSweep := reminders.NewSweep(reminderRepo, apptRepo, provider, sender, notifyStore, outboxRepo,
		sweepLock, logger, loc, reminders.SweepConfig{
			Every:     config.Duration("REMINDER_SWEEP_EVERY", 30*time.Second),
			BatchSize: config.Int("REMINDER_SWEEP_BATCH", 100),
		})
	go reminderSweep.Run(ctx)

	lifecycle := booking.NewLifecycleSweeper(apptRepo, logger,
		config.Duration("LIFECYCLE_SWEEP_EVERY", time.Minute))
	go lifecycle.Run(ctx)

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	bookingHandler := handlers.NewBookingHandler(bookingSvc, logger)
	windowHandler := handlers.NewWindowHandler(windowSvc, logger)
	notificationHandler := handlers.NewNotificationHandler(notifyStore, logger)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/appointments", bookingHandler.Create)
	api.HandleFunc("/api/v1/appointments/get", bookingHandler.Get)
	api.HandleFunc("/api/v1/appointments/list", bookingHandler.List)
	api.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	api.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	api.HandleFunc("/api/v1/appointments/complete", bookingHandler.Complete)
	api.HandleFunc("/api/v1/appointments/rate", bookingHandler.Rate)
	api.HandleFunc("/api/v1/appointments/pending", bookingHandler.PendingCompletion)
	api.HandleFunc("/api/v1/appointments/upcoming", bookingHandler.Upcoming)
	api.HandleFunc("/api/v1/operators/available", bookingHandler.AvailableOperators)
	api.HandleFunc("/api/v1/operators/slots", bookingHandler.Slots)
	api.HandleFunc("/api/v1/windows", windowHandler.Create)
	api.HandleFunc("/api/v1/windows/list", windowHandler.List)
	api.HandleFunc("/api/v1/windows/update", windowHandler.Update)
	api.HandleFunc("/api/v1/windows/deactivate", windowHandler.Deactivate)
	api.HandleFunc("/api/v1/notifications", notificationHandler.List)
	api.HandleFunc("/api/v1/notifications/read", notificationHandler.MarkRead)

	apiChain := httpx.Chain(api,
		handlers.WithAuth(jwtSecret),
		httpx.WithBodyLimit(1<<20),
	)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 120), time.Minute, "booking-engine")
		apiChain = httpx.Chain(apiChain, limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)))
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("/api/", apiChain)

	var corsOrigins []string
	if raw := config.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		corsOrigins = strings.Split(raw, ",")
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking-engine")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
