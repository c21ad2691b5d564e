package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/services/checkoutsvc"
	"github.com/corray333/backend-labs/checkout/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/checkout/internal/service/services/webhooksvc"
	createcheckout "github.com/corray333/backend-labs/checkout/internal/transport/http/create_checkout"
	getorder "github.com/corray333/backend-labs/checkout/internal/transport/http/get_order"
	listorders "github.com/corray333/backend-labs/checkout/internal/transport/http/list_orders"
	stripewebhook "github.com/corray333/backend-labs/checkout/internal/transport/http/stripe_webhook"
	"github.com/corray333/backend-labs/checkout/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/checkout/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type checkoutService interface {
	CreateCheckout(ctx context.Context, req checkoutsvc.Request) (checkoutsvc.Result, error)
}

type webhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (webhooksvc.Outcome, error)
}

type orderService interface {
	GetOrder(ctx context.Context, id uuid.UUID) (ordersvc.OrderDetails, error)
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

type HTTPTransport struct {
	server     *http.Server
	router     *chi.Mux
	checkout   checkoutService
	webhooks   webhookService
	orders     orderService
	adminGuard func(http.Handler) http.Handler
}

func NewHTTPTransport(
	checkout checkoutService,
	webhooks webhookService,
	orders orderService,
	adminGuard func(http.Handler) http.Handler,
) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:     server,
		router:     router,
		checkout:   checkout,
		webhooks:   webhooks,
		orders:     orders,
		adminGuard: adminGuard,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler exposes the router.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h.router.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.createCheckout)
		r.Post("/webhooks/stripe", h.stripeWebhook)

		r.Route("/admin", func(r chi.Router) {
			if h.adminGuard != nil {
				r.Use(h.adminGuard)
			}
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
		})
	})
}

func (h *HTTPTransport) createCheckout(w http.ResponseWriter, r *http.Request) {
	createcheckout.CreateCheckout(w, r, h.checkout)
}

func (h *HTTPTransport) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	stripewebhook.HandleWebhook(w, r, h.webhooks)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.orders)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.orders)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware("http"))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
