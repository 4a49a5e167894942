package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/gridbill/backend/docs"
	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/captcha"
	"github.com/gridbill/backend/internal/config"
	"github.com/gridbill/backend/internal/database"
	"github.com/gridbill/backend/internal/handlers"
	"github.com/gridbill/backend/internal/jobs"
	"github.com/gridbill/backend/internal/logging"
	mW "github.com/gridbill/backend/internal/middleware"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
	"github.com/gridbill/backend/internal/services"
	"github.com/gridbill/backend/internal/storage"
)

// @title GridBill Billing Portal API
// @version 1.0
// @description Multi-tenant electricity bill approval, batching and settlement
// @host localhost:8080
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	logging.Setup()

	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	docs.SwaggerInfo.Host = hostOf(cfg.Server.PublicURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		cancel()
		slog.Error("failed to initialize database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := database.InitRedis(ctx, cfg.Redis)
	cancel()
	if err != nil {
		slog.Error("failed to initialize redis", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher := newPublisher(cfg.RabbitMQ)
	defer publisher.Close()

	var receipts storage.ReceiptStore = storage.DisabledReceipts{}
	if cfg.Storage.URL != "" {
		receipts = storage.NewSupabaseReceipts(cfg.Storage.URL, cfg.Storage.ServiceKey, cfg.Storage.ReceiptBucket)
	}

	auditLogger := audit.NewLogger(slog.Default())
	notifier := notify.NewNotifier(publisher, cfg.RabbitMQ.ContactInbox)
	verifier := captcha.NewVerifier(cfg.Captcha.Secret, cfg.Captcha.VerifyURL, cfg.Captcha.Timeout)
	hasher := services.NewPasswordHasher(cfg.Argon2)

	authService := services.NewAuthService(db, redisClient, verifier, notifier, auditLogger, hasher, cfg.JWT, cfg.OTP)
	cartService := services.NewCartService(db, redisClient)
	qrService := services.NewQRService(redisClient, cfg.Payment.PayeeVPA, cfg.Payment.PayeeName, cfg.Payment.Currency)
	batchService := services.NewBatchService(db, cartService, qrService, auditLogger, notifier, cfg.Payment.ValidityDays)
	thresholdService := services.NewThresholdService(db, auditLogger, notifier)
	settlementService := services.NewSettlementService(db, batchService, auditLogger, notifier, cfg.Payment)
	paymentService := services.NewPaymentService(db, auditLogger, notifier, cfg.Payment.BulkWorkers, cfg.Payment.MaxBulkItems)
	reviewService := services.NewReviewService(db, auditLogger, notifier)
	receiptService := services.NewReceiptService(db, receipts, auditLogger, cfg.Storage.SignedURLTTL)
	billService := services.NewBillService(db, cartService, auditLogger)
	rechargeService := services.NewRechargeService(db, auditLogger)
	orgService := services.NewOrganizationService(db, hasher, auditLogger)
	contactService := services.NewContactService(notifier)

	authHandler := handlers.NewAuthHandler(authService)
	batchHandler := handlers.NewBatchHandler(batchService, thresholdService, settlementService, qrService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, reviewService, receiptService)
	billHandler := handlers.NewBillHandler(billService, rechargeService)
	cartHandler := handlers.NewCartHandler(cartService)
	orgHandler := handlers.NewOrganizationHandler(orgService, thresholdService)
	contactHandler := handlers.NewContactHandler(contactService)

	scheduler, err := jobs.StartSettlementScheduler(cfg.Settlement, settlementService)
	if err != nil {
		slog.Error("failed to start settlement scheduler", "err", err)
		os.Exit(1)
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.SecurityHeaders)
	r.Use(mW.Metrics)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(cfg.Server.PublicURL+"/swagger/doc.json"),
	))

	staff := mW.RequireRole(models.RoleOperator, models.RoleReviewer, models.RoleAdmin)
	operators := mW.RequireRole(models.RoleOperator, models.RoleAdmin)
	reviewers := mW.RequireRole(models.RoleReviewer, models.RoleAdmin)
	admins := mW.RequireRole(models.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/otp/send", authHandler.SendOTP)
		r.Post("/auth/otp/verify", authHandler.VerifyOTP)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/send-contact-email", contactHandler.Send)

		r.Group(func(r chi.Router) {
			r.Use(mW.Authenticate(authService))

			r.Post("/auth/logout", authHandler.Logout)
			r.Post("/auth/revoke-sessions", authHandler.RevokeSessions)

			r.With(staff).Get("/organizations/me", orgHandler.Me)
			r.With(staff).Get("/organizations/me/threshold", orgHandler.Threshold)
			r.With(admins).Post("/organizations", orgHandler.Create)
			r.With(admins).Put("/organizations/{id}/threshold", orgHandler.UpdateThreshold)
			r.With(admins).Post("/users", orgHandler.AddUser)

			r.With(staff).Get("/connections", orgHandler.ListConnections)
			r.With(admins).Post("/connections", orgHandler.CreateConnection)

			r.With(staff).Get("/bills", billHandler.List)
			r.With(operators).Post("/bill-add", billHandler.Create)
			r.With(reviewers).Post("/bills/bulk-approve", billHandler.BulkApprove)
			r.With(reviewers).Post("/bills/bulk-unapprove", billHandler.BulkUnapprove)
			r.With(reviewers).Post("/bills/{id}/approve", billHandler.Approve)
			r.With(reviewers).Post("/bills/{id}/unapprove", billHandler.Unapprove)
			r.With(operators).Put("/bills/{id}/payment-status", billHandler.SetPaymentStatus)

			r.With(staff).Get("/recharges", billHandler.ListRecharges)
			r.With(operators).Post("/recharges", billHandler.CreateRecharge)
			r.With(reviewers).Post("/recharges/{id}/approve", billHandler.ApproveRecharge)

			r.Route("/cart", func(r chi.Router) {
				r.Use(operators)
				r.Get("/", cartHandler.Items)
				r.Post("/", cartHandler.Add)
				r.Delete("/", cartHandler.Clear)
				r.Delete("/{kind}/{id}", cartHandler.Remove)
			})

			r.Route("/batches", func(r chi.Router) {
				r.With(staff).Get("/", batchHandler.List)
				r.With(operators).Post("/", batchHandler.Create)
				r.With(admins).Post("/settle-sweep", batchHandler.SettleSweep)
				r.With(staff).Get("/{id}", batchHandler.Get)
				r.With(operators).Post("/{id}/submit", batchHandler.Submit)
				r.With(staff).Get("/{id}/pay-now", batchHandler.PayNow)
				r.With(staff).Get("/{id}/statement.xlsx", batchHandler.Statement)
				r.With(staff).Get("/{id}/settlement.xml", batchHandler.Settlement)
				r.With(staff).Get("/{id}/status-report.xml", batchHandler.StatusReport)
			})
			r.With(staff).Get("/payment-qr/{ref}", batchHandler.ResolveQR)

			r.With(operators).Post("/batch/pay", paymentHandler.Pay)
			r.With(operators).Post("/batch/pay/bulk", paymentHandler.PayBulk)

			r.With(staff).Get("/transactions", paymentHandler.ListTransactions)
			r.With(reviewers).Post("/transactions/{id}/approve", paymentHandler.Approve)
			r.With(reviewers).Post("/transactions/{id}/reject", paymentHandler.Reject)
			r.With(operators).Post("/transactions/{id}/receipt", paymentHandler.UploadReceipt)
			r.With(staff).Get("/transactions/{id}/receipt", paymentHandler.ReceiptURL)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "err", err)
	}

	slog.Info("server stopped")
}

// newPublisher connects to RabbitMQ, or logs notifications when no broker is
// configured or reachable.
func newPublisher(cfg config.RabbitMQConfig) notify.Publisher {
	if cfg.URL == "" {
		slog.Warn("RABBITMQ_URL not set, notifications will only be logged")
		return notify.NewLogPublisher(slog.Default())
	}
	pub, err := notify.NewRabbitPublisher(cfg.URL, notify.Queues...)
	if err != nil {
		slog.Warn("rabbitmq unavailable, notifications will only be logged", "err", err)
		return notify.NewLogPublisher(slog.Default())
	}
	return pub
}

func hostOf(publicURL string) string {
	u, err := url.Parse(publicURL)
	if err != nil || u.Host == "" {
		return "localhost:8080"
	}
	return u.Host
}
