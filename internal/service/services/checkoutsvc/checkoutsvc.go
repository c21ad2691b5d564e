package checkoutsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/icatalog"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iuow"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	catalogrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/catalog/postgres"
	"github.com/corray333/backend-labs/checkout/internal/dal/uow"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/catalog"
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/checkout/internal/service/models/payment"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const defaultMaxQuantity = 20

type gateway interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error)
}

// LineRequest is one requested cart line.
type LineRequest struct {
	VariantID uuid.UUID `validate:"required"`
	Quantity  int       `validate:"gte=1"`
}

// Request is a checkout request. A blank email is treated as absent.
type Request struct {
	Items []LineRequest `validate:"required,min=1,dive"`
	Email *string       `validate:"omitempty,email"`
}

// Result tells the client where to pay for the created order.
type Result struct {
	OrderID     uuid.UUID
	RedirectURL string
}

// CheckoutService turns a cart into a pending order and a hosted checkout session.
type CheckoutService struct {
	newUOW      iuow.Factory
	catalog     icatalog.Repository
	gateway     gateway
	siteURL     string
	maxQuantity int
	validate    *validator.Validate
	now         func() time.Time
}

// option is a function that configures the CheckoutService.
type option func(*CheckoutService)

// MustNewCheckoutService creates a new CheckoutService.
func MustNewCheckoutService(opts ...option) *CheckoutService {
	s := &CheckoutService{
		siteURL:     viper.GetString("checkout.site_url"),
		maxQuantity: viper.GetInt("checkout.max_quantity"),
		validate:    validator.New(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.maxQuantity <= 0 {
		s.maxQuantity = defaultMaxQuantity
	}
	s.siteURL = strings.TrimRight(s.siteURL, "/")

	if s.newUOW == nil {
		panic("checkoutsvc: unit of work is not configured")
	}
	if s.catalog == nil {
		panic("checkoutsvc: catalog is not configured")
	}
	if s.gateway == nil {
		panic("checkoutsvc: payment gateway is not configured")
	}

	return s
}

// WithPostgresClient backs orders and the catalog with Postgres.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *CheckoutService) {
		s.newUOW = uow.NewFactory(pgClient)
		s.catalog = catalogrepo.NewPostgresCatalogRepository(pgClient.Pool())
	}
}

// WithUnitOfWork sets the unit of work factory for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWork(factory iuow.Factory) option {
	return func(s *CheckoutService) {
		s.newUOW = factory
	}
}

// WithCatalog sets the variant lookup for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithCatalog(catalog icatalog.Repository) option {
	return func(s *CheckoutService) {
		s.catalog = catalog
	}
}

// WithGateway sets the payment gateway for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(g gateway) option {
	return func(s *CheckoutService) {
		s.gateway = g
	}
}

// WithSiteURL sets the storefront base URL used for redirect targets.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSiteURL(siteURL string) option {
	return func(s *CheckoutService) {
		s.siteURL = siteURL
	}
}

// WithMaxQuantity sets the largest quantity accepted per line.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMaxQuantity(n int) option {
	return func(s *CheckoutService) {
		s.maxQuantity = n
	}
}

// WithClock overrides time.Now.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *CheckoutService) {
		s.now = now
	}
}

// CreateCheckout validates the cart against the catalog, stores a pending order with its
// items and opens a checkout session for it.
//
// If the gateway fails the order stays pending without a session; the sweeper cancels it later.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	email, err := s.validateRequest(req)
	if err != nil {
		return Result{}, err
	}

	variants, err := s.lookupVariants(ctx, req.Items)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	o := order.Order{
		ID:        uuid.New(),
		Status:    order.StatusPendingPayment,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	lineItems := make([]payment.LineItem, 0, len(req.Items))
	items := make([]orderitem.OrderItem, 0, len(req.Items))

	for _, line := range req.Items {
		v := variants[line.VariantID]
		if o.Currency == "" {
			o.Currency = v.Currency
		}
		if v.Currency != o.Currency {
			return Result{}, apperr.Validation("mixed currencies not supported")
		}

		lineTotal, err := currency.LineTotal(v.UnitPriceCents, line.Quantity)
		if err != nil {
			return Result{}, apperr.Validation("order total is too large")
		}
		if o.SubtotalCents, err = currency.Add(o.SubtotalCents, lineTotal); err != nil {
			return Result{}, apperr.Validation("order total is too large")
		}

		lineItems = append(lineItems, payment.LineItem{
			Name:           v.DisplayTitle(),
			UnitPriceCents: v.UnitPriceCents,
			Quantity:       line.Quantity,
			TaxCode:        v.TaxCode,
		})
		items = append(items, orderitem.OrderItem{
			OrderID:        o.ID,
			ProductID:      v.ProductID,
			VariantID:      v.VariantID,
			Title:          v.DisplayTitle(),
			SKU:            v.SKU,
			UnitPriceCents: v.UnitPriceCents,
			Quantity:       line.Quantity,
			CreatedAt:      now,
		})
	}
	o.TotalCents = o.SubtotalCents

	if err := s.persistOrder(ctx, o, items); err != nil {
		span.RecordError(err)

		return Result{}, err
	}

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		OrderID:    o.ID,
		Currency:   o.Currency,
		LineItems:  lineItems,
		Email:      email,
		SuccessURL: s.siteURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.siteURL + "/checkout/cancel?order_id=" + url.QueryEscape(o.ID.String()),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create checkout session", "order_id", o.ID, "error", err)
		span.SetStatus(codes.Error, "checkout session creation failed")

		return Result{}, fmt.Errorf("%w: %w", apperr.ErrExternalGateway, err)
	}

	err = s.newUOW().OrderRepository().AttachSession(ctx, o.ID, order.SessionPatch{
		CheckoutSessionID: session.ID,
		UpdatedAt:         s.now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to attach checkout session to order",
			"order_id", o.ID,
			"session_id", session.ID,
			"error", err)
		span.RecordError(err)

		return Result{}, err
	}

	slog.InfoContext(ctx, "Checkout session created",
		"order_id", o.ID,
		"session_id", session.ID,
		"subtotal_cents", o.SubtotalCents,
		"currency", o.Currency)

	return Result{OrderID: o.ID, RedirectURL: session.URL}, nil
}

func (s *CheckoutService) validateRequest(req Request) (*string, error) {
	req.Email = normalizeEmail(req.Email)

	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.FromValidator(err, map[string]string{
			"Items":     "at least one item is required",
			"VariantID": "invalid variantId",
			"Quantity":  s.quantityReason(),
			"Email":     "invalid email",
		})
	}
	for _, line := range req.Items {
		if line.Quantity > s.maxQuantity {
			return nil, apperr.Validation("%s", s.quantityReason())
		}
	}

	return req.Email, nil
}

func (s *CheckoutService) quantityReason() string {
	return fmt.Sprintf("quantity must be between 1 and %d", s.maxQuantity)
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(*email))
	if normalized == "" {
		return nil
	}

	return &normalized
}

func (s *CheckoutService) lookupVariants(ctx context.Context, lines []LineRequest) (map[uuid.UUID]catalog.Variant, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.VariantID]; ok {
			continue
		}
		seen[line.VariantID] = struct{}{}
		ids = append(ids, line.VariantID)
	}

	variants, err := s.catalog.LookupVariants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up variants: %w", err)
	}

	byID := make(map[uuid.UUID]catalog.Variant, len(variants))
	for _, v := range variants {
		byID[v.VariantID] = v
	}
	if len(byID) != len(ids) {
		return nil, apperr.Validation("invalid variantId")
	}
	for _, v := range byID {
		if !v.ProductActive {
			return nil, apperr.Validation("product is not available")
		}
	}

	return byID, nil
}

func (s *CheckoutService) persistOrder(ctx context.Context, o order.Order, items []orderitem.OrderItem) error {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return err
	}
	defer func() { _ = work.Rollback(ctx) }()

	if _, err := work.OrderRepository().Insert(ctx, o); err != nil {
		return err
	}
	if _, err := work.OrderItemRepository().BulkInsert(ctx, items); err != nil {
		return err
	}

	return work.Commit(ctx)
}
