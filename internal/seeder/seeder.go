package seeder

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Additional-Code/orderhub/internal/entity"
	ordersvc "github.com/Additional-Code/orderhub/internal/service/order"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Service is the part of the order service the seeder drives.
type Service interface {
	Create(ctx context.Context, tenantID string, cmd ordersvc.CreateCommand) (*entity.Order, error)
	ListAll(ctx context.Context, tenantID string) ([]entity.Order, error)
	ProcessPayment(ctx context.Context, tenantID, id, paymentID string) (*entity.Order, error)
	Cancel(ctx context.Context, tenantID, id, reason string) (*entity.Order, error)
}

// Seeder creates sample orders for local/dev setups.
type Seeder struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Seeder on top of the order service.
func New(svc *ordersvc.Service, logger *zap.Logger) *Seeder {
	return NewWithService(svc, logger)
}

// NewWithService constructs a Seeder around any Service implementation.
func NewWithService(svc Service, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{svc: svc, logger: logger}
}

var catalog = []ordersvc.CreateItem{
	{ProductID: "prd-kettle", VendorID: "vnd-home", ProductName: "Electric kettle", SKU: "KET-17", Quantity: 1, Price: decimal.RequireFromString("2490.00")},
	{ProductID: "prd-mug", VendorID: "vnd-home", ProductName: "Ceramic mug", SKU: "MUG-03", Quantity: 4, Price: decimal.RequireFromString("390.00"), Discount: decimal.RequireFromString("100.00")},
	{ProductID: "prd-tea", VendorID: "vnd-tea", ProductName: "Green tea 100g", SKU: "TEA-G100", Quantity: 2, Price: decimal.RequireFromString("450.50"), Tax: decimal.RequireFromString("90.10")},
}

// Orders seeds perTenant orders into every tenant that has none yet and returns
// how many orders were created. Tenants are seeded concurrently.
func (s *Seeder) Orders(ctx context.Context, tenants []string, perTenant int) (int, error) {
	if perTenant <= 0 {
		return 0, nil
	}

	counts := make([]int, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	for i, tenantID := range tenants {
		g.Go(func() error {
			n, err := s.seedTenant(gctx, tenantID, perTenant)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	s.logger.Info("seeded orders", zap.Int("count", total), zap.Int("tenants", len(tenants)))
	return total, err
}

func (s *Seeder) seedTenant(ctx context.Context, tenantID string, perTenant int) (int, error) {
	existing, err := s.svc.ListAll(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	if len(existing) > 0 {
		s.logger.Info("tenant already has orders; skipping", zap.String("tenant_id", tenantID))
		return 0, nil
	}

	for i := 0; i < perTenant; i++ {
		order, err := s.svc.Create(ctx, tenantID, sample(i))
		if err != nil {
			return i, fmt.Errorf("tenant %s: create sample %d: %w", tenantID, i, err)
		}

		// Spread the samples over a few lifecycle states.
		switch i % 3 {
		case 1:
			_, err = s.svc.ProcessPayment(ctx, tenantID, order.ID, fmt.Sprintf("seed-pay-%s-%d", tenantID, i))
		case 2:
			_, err = s.svc.Cancel(ctx, tenantID, order.ID, "seeded cancellation")
		}
		if err != nil {
			return i + 1, fmt.Errorf("tenant %s: advance sample %d: %w", tenantID, i, err)
		}
	}
	return perTenant, nil
}

func sample(i int) ordersvc.CreateCommand {
	items := make([]ordersvc.CreateItem, 0, 2)
	items = append(items, catalog[i%len(catalog)])
	if i%2 == 1 {
		items = append(items, catalog[(i+1)%len(catalog)])
	}
	return ordersvc.CreateCommand{
		UserID:        fmt.Sprintf("seed-user-%d", i%4),
		Items:         items,
		PaymentMethod: "card",
		ShippingCost:  decimal.RequireFromString("300.00"),
		ShippingAddress: &entity.Address{
			FullName:     "Seed Customer",
			AddressLine1: fmt.Sprintf("Lenina %d", 10+i),
			City:         "Kazan",
			PostalCode:   "420111",
			Country:      "RU",
		},
		Notes: "seeded order",
	}
}
