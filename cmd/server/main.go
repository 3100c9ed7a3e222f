package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duka-be/internal/api"
	"duka-be/internal/auth"
	"duka-be/internal/config"
	"duka-be/internal/db"
	"duka-be/internal/logger"
	"duka-be/internal/metrics"
	"duka-be/internal/middleware"
	"duka-be/internal/notification"
	"duka-be/internal/order"
	"duka-be/internal/payment"
	"duka-be/internal/payment/webhook"
	"duka-be/internal/user"

	"go.uber.org/zap"
)

const (
	notifyWorkers   = 4
	notifyQueueSize = 256
	notifyTimeout   = 30 * time.Second
	relayGrace      = 2 * time.Minute
	relayInterval   = time.Minute
	shutdownTimeout = 15 * time.Second
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

type handlers struct {
	orders     *api.OrderHandler
	payments   *api.PaymentHandler
	callback   http.HandlerFunc
	metrics    http.Handler
	auth       *middleware.Authenticator
	limiter    *middleware.RateLimiter
	corsOrigin string
}

// app is the wired service plus the background workers run() owns.
type app struct {
	handler    http.Handler
	sweeper    *payment.Sweeper
	relay      *notification.Relay
	limiter    *middleware.RateLimiter
	dispatcher *notification.Dispatcher
}

func newServer(cfg *config.Config, database *sql.DB) (*app, error) {
	templates, err := notification.DefaultTemplates()
	if err != nil {
		return nil, err
	}

	paymentMetrics := metrics.NewPayments()

	orderRepo := order.NewRepository(database)
	userRepo := user.NewRepository(database)
	attemptRepo := payment.NewRepository(database)

	emailClient := notification.NewEmailClient(notification.EmailConfig{
		APIURL: cfg.EmailAPIURL,
		APIKey: cfg.EmailAPIKey,
		From:   cfg.EmailFrom,
	})
	notifier := notification.NewNotifier(userRepo, emailClient, templates, orderRepo)
	dispatcher := notification.NewDispatcher(notifier, notifyWorkers, notifyQueueSize, notifyTimeout)

	orderSvc := order.NewService(orderRepo, dispatcher)

	gateways := map[order.PaymentMethod]payment.Gateway{
		order.MethodMpesa: payment.NewMpesaGateway(payment.MpesaConfig{
			BaseURL:        cfg.MpesaBaseURL,
			ConsumerKey:    cfg.MpesaConsumerKey,
			ConsumerSecret: cfg.MpesaConsumerSecret,
			Passkey:        cfg.MpesaPasskey,
			Shortcode:      cfg.MpesaShortcode,
			CallbackURL:    cfg.MpesaCallbackURL,
		}),
		order.MethodCard: payment.UnsupportedGateway{Method: order.MethodCard},
	}
	initiator := payment.NewInitiator(orderSvc, attemptRepo, gateways, paymentMetrics)
	reconciler := payment.NewReconciler(orderSvc, attemptRepo, paymentMetrics)

	limiter := middleware.NewRateLimiter()

	router := setupRouter(handlers{
		orders:     api.NewOrderHandler(orderSvc),
		payments:   api.NewPaymentHandler(initiator),
		callback:   webhook.NewWebhookHandler(reconciler).MpesaCallback,
		metrics:    paymentMetrics.Handler(),
		auth:       middleware.NewAuthenticator(cfg.JWTSecret, cfg.InternalServiceKeyHash),
		limiter:    limiter,
		corsOrigin: cfg.CORSOrigin,
	})

	return &app{
		handler:    router,
		sweeper:    payment.NewSweeper(orderSvc, attemptRepo, cfg.PaymentAttemptTTL, paymentMetrics),
		relay:      notification.NewRelay(orderRepo, dispatcher, relayGrace),
		limiter:    limiter,
		dispatcher: dispatcher,
	}, nil
}

func setupRouter(h handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", middleware.RequireRole(auth.RoleAdmin, h.metrics))

	mux.Handle("POST /orders", middleware.RequireAuth(http.HandlerFunc(h.orders.CreateOrder)))
	mux.Handle("GET /orders/{id}", middleware.RequireAuth(http.HandlerFunc(h.orders.GetOrder)))
	mux.Handle("PATCH /admin/orders/{id}/status", middleware.RequireRole(auth.RoleAdmin, http.HandlerFunc(h.orders.UpdateStatus)))
	mux.Handle("POST "+middleware.InitiatePath, middleware.RequireAuth(http.HandlerFunc(h.payments.Initiate)))

	var apiHandler http.Handler = mux
	apiHandler = h.limiter.RateLimitMiddleware(apiHandler)
	apiHandler = middleware.LoggingMiddleware(apiHandler)
	apiHandler = h.auth.AuthMiddleware(apiHandler)
	apiHandler = middleware.CORS(h.corsOrigin)(apiHandler)

	// The gateway callback bypasses auth and rate limiting: it must always be acked.
	root := http.NewServeMux()
	root.Handle("POST "+middleware.CallbackPath, middleware.LoggingMiddleware(h.callback))
	root.Handle("/", apiHandler)

	return logger.RequestIDMiddleware(root)
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database := initDBFunc(cfg)
	defer database.Close()

	a, err := newServer(cfg, database)
	if err != nil {
		return err
	}
	defer a.dispatcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.sweeper.Run(ctx, cfg.SweepInterval)
	go a.relay.Run(ctx, relayInterval)
	go a.limiter.Cleanup(ctx, time.Minute, 3*time.Minute)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	log.Info("server stopped")
	return nil
}
