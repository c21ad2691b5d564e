package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/dal/rabbitmq"
	outboxrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/outbox/postgres"
	"github.com/corray333/backend-labs/checkout/internal/dal/stripe"
	"github.com/corray333/backend-labs/checkout/internal/otel"
	"github.com/corray333/backend-labs/checkout/internal/service/services/checkoutsvc"
	"github.com/corray333/backend-labs/checkout/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/checkout/internal/service/services/webhooksvc"
	httptransport "github.com/corray333/backend-labs/checkout/internal/transport/http"
	outboxworker "github.com/corray333/backend-labs/checkout/internal/worker/outbox"
	"github.com/corray333/backend-labs/checkout/internal/worker/sweeper"
	"github.com/corray333/backend-labs/checkout/pkg/http/middleware/bearer"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// App represents the application.
type App struct {
	transport      *httptransport.HTTPTransport
	outboxWorker   *outboxworker.Worker
	sweeperWorker  *sweeper.Worker
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	otel           *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()
	exchange := rabbitClient.MustDeclareOrderExchange()

	gateway := stripe.MustNewGateway()
	live := strings.HasPrefix(os.Getenv("STRIPE_SECRET_KEY"), "sk_live_")

	checkoutSvc := checkoutsvc.MustNewCheckoutService(
		checkoutsvc.WithPostgresClient(postgresClient),
		checkoutsvc.WithGateway(gateway),
	)

	webhookSvc := webhooksvc.MustNewWebhookService(
		webhooksvc.WithPostgresClient(postgresClient),
		webhooksvc.WithGateway(gateway),
		webhooksvc.WithSecret(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		webhooksvc.WithExchange(exchange),
	)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithExchange(exchange),
		ordersvc.WithPaymentURL(func(paymentIntentID string) string {
			return stripe.DashboardPaymentURL(paymentIntentID, live)
		}),
	)

	adminToken := os.Getenv("CHECKOUT_ADMIN_TOKEN")
	if adminToken == "" {
		adminToken = viper.GetString("server.http.admin_token")
	}
	if adminToken == "" {
		slog.Warn("Admin token is not configured, admin routes will reject every request")
	}

	transport := httptransport.NewHTTPTransport(
		checkoutSvc,
		webhookSvc,
		orderSvc,
		bearer.NewBearerMiddleware(adminToken),
	)
	transport.RegisterRoutes()

	return &App{
		transport:      transport,
		outboxWorker:   outboxworker.NewWorker(outboxrepo.NewPostgresOutboxRepository(postgresClient.Pool()), rabbitClient),
		sweeperWorker:  sweeper.NewWorker(orderSvc),
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		otel:           otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		a.outboxWorker.Start(gctx)

		return nil
	})

	g.Go(func() error {
		a.sweeperWorker.Start(gctx)

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received")

		timeout := time.Duration(viper.GetInt("server.http.shutdown_timeout_seconds")) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := a.transport.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped gracefully")
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Application stopped with error", "error", err)
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed")

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otel.Shutdown(flushCtx); err != nil {
		slog.Error("Tracer shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
