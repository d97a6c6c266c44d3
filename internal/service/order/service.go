package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/cache"
	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/event"
	"github.com/Additional-Code/orderhub/internal/pricing"
	repo "github.com/Additional-Code/orderhub/internal/repository/order"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/orderhub/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/orderhub/service/order")
)

// EventPublisher receives order events after a successful commit.
type EventPublisher interface {
	Publish(ctx context.Context, kind event.Kind, order *entity.Order, extra map[string]any)
}

// Options tunes the lifecycle engine.
type Options struct {
	NumberPrefix     string
	NumberAttempts   int
	PaymentTarget    entity.OrderStatus
	DefaultCurrency  string
	OperationTimeout time.Duration
	CacheTTL         time.Duration
}

// Service owns the order lifecycle: creation, pricing, status transitions and the
// events they emit.
type Service struct {
	repo    *repo.Repository
	cache   cache.Store
	events  EventPublisher
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
	numbers func(time.Time) string

	created     metric.Int64Counter
	transitions metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  *event.Publisher
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Cache, p.Publisher, p.Logger, OptionsFromConfig(p.Config))
}

// OptionsFromConfig maps application configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		NumberPrefix:     cfg.Orders.NumberPrefix,
		NumberAttempts:   cfg.Orders.NumberAttempts,
		PaymentTarget:    entity.OrderStatus(cfg.Orders.PaymentTargetStatus),
		DefaultCurrency:  cfg.Orders.DefaultCurrency,
		OperationTimeout: cfg.Orders.OperationTimeout,
		CacheTTL:         cfg.Cache.DefaultTTL,
	}
}

// New constructs a Service. A nil cache or publisher disables that concern.
func New(repository *repo.Repository, store cache.Store, events EventPublisher, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NumberPrefix == "" {
		opts.NumberPrefix = "ORD"
	}
	if opts.NumberAttempts <= 0 {
		opts.NumberAttempts = 1
	}
	if opts.PaymentTarget == "" {
		opts.PaymentTarget = entity.OrderStatusPaid
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "RUB"
	}

	s := &Service{
		repo:   repository,
		cache:  store,
		events: events,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
	s.numbers = s.generateNumber

	s.created, _ = serviceMeter.Int64Counter("orders.created",
		metric.WithDescription("Orders successfully created"))
	s.transitions, _ = serviceMeter.Int64Counter("orders.status_transitions",
		metric.WithDescription("Order status changes by target status"))
	return s
}

// CreateItem describes one requested line item.
type CreateItem struct {
	ProductID   string
	VendorID    string
	VariantID   string
	ProductName string
	SKU         string
	VariantName string
	ImageURL    string
	Quantity    int
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
}

// CreateCommand is the input of Create.
type CreateCommand struct {
	UserID          string
	Items           []CreateItem
	ShippingAddress *entity.Address
	BillingAddress  *entity.Address
	PaymentMethod   string
	Notes           string
	Currency        string
	ShippingCost    decimal.Decimal
	Tax             decimal.Decimal
	Discount        decimal.Decimal
}

// Create validates and prices a new order, stores it with its items in one
// transaction and publishes order.created.
func (s *Service) Create(ctx context.Context, tenantID string, cmd CreateCommand) (*entity.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("order.items", len(cmd.Items)),
	))
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	shipping, err := entity.EncodeAddress(cmd.ShippingAddress)
	if err != nil {
		return nil, errorbank.Serialization("shipping address could not be encoded", errorbank.WithCause(err))
	}
	billing, err := entity.EncodeAddress(cmd.BillingAddress)
	if err != nil {
		return nil, errorbank.Serialization("billing address could not be encoded", errorbank.WithCause(err))
	}

	now := s.clock()
	order := &entity.Order{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		UserID:            strings.TrimSpace(cmd.UserID),
		Status:            entity.OrderStatusPending,
		PaymentStatus:     entity.PaymentStatusPending,
		FulfillmentStatus: entity.FulfillmentUnfulfilled,
		ShippingCost:      cmd.ShippingCost,
		Tax:               cmd.Tax,
		Discount:          cmd.Discount,
		Currency:          s.currency(cmd.Currency),
		PaymentMethod:     cmd.PaymentMethod,
		ShippingAddress:   shipping,
		BillingAddress:    billing,
		Notes:             cmd.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
		Items:             make([]entity.OrderItem, len(cmd.Items)),
	}
	for i, it := range cmd.Items {
		order.Items[i] = entity.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			TenantID:    tenantID,
			Position:    i,
			ProductID:   it.ProductID,
			VendorID:    it.VendorID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			VariantName: it.VariantName,
			ImageURL:    it.ImageURL,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Discount:    it.Discount,
			Tax:         it.Tax,
		}
	}
	if err := pricing.Apply(order); err != nil {
		return nil, errorbank.Validation(err.Error())
	}

	if err := s.insertWithUniqueNumber(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant.id", tenantID)))
	s.logger.Info("order created",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(pricing.Places)),
	)
	s.publish(ctx, event.KindCreated, order, nil)
	return order, nil
}

func (s *Service) insertWithUniqueNumber(ctx context.Context, order *entity.Order) error {
	for attempt := 1; attempt <= s.opts.NumberAttempts; attempt++ {
		order.OrderNumber = s.numbers(order.CreatedAt)
		err := s.repo.Insert(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrDuplicateNumber) {
			return s.mapRepoError(err, "failed to create order")
		}
		s.logger.Warn("order number collision; retrying",
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempt", attempt),
		)
	}
	return errorbank.Conflict("could not allocate a unique order number")
}

// GetByID returns the order with its items, consulting the cache first.
func (s *Service) GetByID(ctx context.Context, tenantID, id string) (*entity.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetByID", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", id),
	))
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	if order, err := s.getFromCache(ctx, tenantID, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, tenantID, id, true)
	if err != nil {
		return nil, s.mapRepoError(err, "failed to load order", errorbank.WithDetail("id", id))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", id), zap.Error(err))
	} else {
		s.dropIfStale(ctx, order)
	}
	return order, nil
}

// GetByNumber returns the order with the given number.
func (s *Service) GetByNumber(ctx context.Context, tenantID, number string) (*entity.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetByNumber", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.number", number),
	))
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	order, err := s.repo.GetByNumber(ctx, tenantID, number)
	if err != nil {
		return nil, s.mapRepoError(err, "failed to load order", errorbank.WithDetail("orderNumber", number))
	}
	return order, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, tenantID, userID string) ([]entity.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errorbank.Validation("user id is required")
	}
	return s.list(ctx, "OrderService.ListByUser", repo.Filter{TenantID: tenantID, UserID: userID})
}

// ListByStatus returns orders in the given status, newest first.
func (s *Service) ListByStatus(ctx context.Context, tenantID string, status entity.OrderStatus) ([]entity.Order, error) {
	if !status.Valid() {
		return nil, invalidStatus(status)
	}
	return s.list(ctx, "OrderService.ListByStatus", repo.Filter{TenantID: tenantID, Status: status})
}

// ListAll returns every order of the tenant, newest first.
func (s *Service) ListAll(ctx context.Context, tenantID string) ([]entity.Order, error) {
	return s.list(ctx, "OrderService.ListAll", repo.Filter{TenantID: tenantID})
}

// ListByDateRange returns orders created in [start, end], newest first.
func (s *Service) ListByDateRange(ctx context.Context, tenantID string, start, end time.Time) ([]entity.Order, error) {
	if start.IsZero() || end.IsZero() {
		return nil, errorbank.Validation("start and end are required")
	}
	if start.After(end) {
		return nil, errorbank.Validation("start must not be after end",
			errorbank.WithDetail("start", start), errorbank.WithDetail("end", end))
	}
	from, to := start.UTC(), end.UTC()
	return s.list(ctx, "OrderService.ListByDateRange", repo.Filter{TenantID: tenantID, From: &from, To: &to})
}

func (s *Service) list(ctx context.Context, op string, f repo.Filter) ([]entity.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, op, trace.WithAttributes(attribute.String("tenant.id", f.TenantID)))
	defer span.End()

	if err := requireTenant(f.TenantID); err != nil {
		return nil, err
	}
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, s.mapRepoError(err, "failed to list orders")
	}
	return orders, nil
}

// CountByStatus counts the tenant's orders in the given status.
func (s *Service) CountByStatus(ctx context.Context, tenantID string, status entity.OrderStatus) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := serviceTracer.Start(ctx, "OrderService.CountByStatus", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	if !status.Valid() {
		return 0, invalidStatus(status)
	}
	n, err := s.repo.CountByStatus(ctx, tenantID, status)
	if err != nil {
		return 0, s.mapRepoError(err, "failed to count orders")
	}
	return n, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) currency(requested string) string {
	if c := strings.ToUpper(strings.TrimSpace(requested)); c != "" {
		return c
	}
	return s.opts.DefaultCurrency
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.OperationTimeout)
}

// generateNumber builds PREFIX-<unix millis>-<8 random chars>. The suffix is the
// tail of a ULID; uniqueness is enforced by the database.
func (s *Service) generateNumber(now time.Time) string {
	id := ulid.Make().String()
	return fmt.Sprintf("%s-%d-%s", s.opts.NumberPrefix, now.UnixMilli(), id[len(id)-8:])
}

func (s *Service) publish(ctx context.Context, kind event.Kind, order *entity.Order, extra map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, kind, order.Clone(), extra)
}

func (s *Service) mapRepoError(err error, msg string, opts ...errorbank.Option) error {
	var appErr *errorbank.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found", opts...)
	case errors.Is(err, repo.ErrMissingTenant):
		return errorbank.Validation("tenant id is required")
	case errors.Is(err, context.DeadlineExceeded):
		return errorbank.Internal("operation timed out", errorbank.WithCause(err))
	default:
		s.logger.Error(msg, zap.Error(err))
		return errorbank.Internal(msg, append(opts, errorbank.WithCause(err))...)
	}
}

func (s *Service) cacheKey(tenantID, id string) string {
	return fmt.Sprintf("orders:%s:%s", tenantID, id)
}

func (s *Service) getFromCache(ctx context.Context, tenantID, id string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(tenantID, id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	if order.TenantID != tenantID {
		return nil, cache.ErrCacheMiss
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.TenantID, order.ID), bytes, s.opts.CacheTTL)
}

// dropIfStale removes a just-cached order when a mutation committed between the
// load and the cache write, since that mutation's invalidation ran too early.
func (s *Service) dropIfStale(ctx context.Context, order *entity.Order) {
	current, err := s.repo.UpdatedAt(ctx, order.TenantID, order.ID)
	if err == nil && current.Equal(order.UpdatedAt) {
		return
	}
	s.invalidate(ctx, order.TenantID, order.ID)
}

func (s *Service) invalidate(ctx context.Context, tenantID, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(tenantID, id)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errorbank.Validation("tenant id is required")
	}
	return nil
}

func invalidStatus(status entity.OrderStatus) error {
	return errorbank.Validation("unknown order status", errorbank.WithDetail("status", string(status)))
}

func validateCreate(cmd CreateCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return errorbank.Validation("user id is required")
	}
	if len(cmd.Items) == 0 {
		return errorbank.Validation("order must contain at least one item")
	}
	for i, it := range cmd.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return errorbank.Validation("product id is required", errorbank.WithDetail("item", i))
		}
		if err := pricing.CheckQuantity(it.Quantity); err != nil {
			return errorbank.Validation(err.Error(), errorbank.WithDetail("item", i), errorbank.WithDetail("field", "quantity"))
		}
		if field, err := checkAmounts(namedAmount{"price", it.Price}, namedAmount{"discount", it.Discount}, namedAmount{"tax", it.Tax}); err != nil {
			return errorbank.Validation(err.Error(), errorbank.WithDetail("item", i), errorbank.WithDetail("field", field))
		}
	}
	if field, err := checkAmounts(namedAmount{"shippingCost", cmd.ShippingCost}, namedAmount{"tax", cmd.Tax}, namedAmount{"discount", cmd.Discount}); err != nil {
		return errorbank.Validation(err.Error(), errorbank.WithDetail("field", field))
	}
	return nil
}

type namedAmount struct {
	name  string
	value decimal.Decimal
}

// checkAmounts bounds every amount before any arithmetic touches it and names
// the first offender.
func checkAmounts(amounts ...namedAmount) (string, error) {
	for _, a := range amounts {
		if err := pricing.CheckAmount(a.value); err != nil {
			return a.name, err
		}
	}
	return "", nil
}
