package seeder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/database/dbtest"
	"github.com/Additional-Code/orderhub/internal/entity"
	repo "github.com/Additional-Code/orderhub/internal/repository/order"
	ordersvc "github.com/Additional-Code/orderhub/internal/service/order"
)

func TestOrdersSeedsEachTenantOnce(t *testing.T) {
	svc := ordersvc.New(repo.NewRepository(dbtest.Open(t)), nil, nil, zap.NewNop(), ordersvc.Options{})
	s := New(svc, zap.NewNop())
	ctx := context.Background()

	n, err := s.Orders(ctx, []string{"acme", "globex"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	for _, tenantID := range []string{"acme", "globex"} {
		orders, err := svc.ListAll(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, orders, 3)

		statuses := map[entity.OrderStatus]int{}
		for _, o := range orders {
			statuses[o.Status]++
			assert.Equal(t, tenantID, o.TenantID)
			assert.True(t, o.Total.IsPositive())
		}
		assert.Equal(t, map[entity.OrderStatus]int{
			entity.OrderStatusPending:   1,
			entity.OrderStatusPaid:      1,
			entity.OrderStatusCancelled: 1,
		}, statuses)
	}

	again, err := s.Orders(ctx, []string{"acme", "globex"}, 3)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestOrdersWithNothingToDo(t *testing.T) {
	s := NewWithService(nil, nil)
	n, err := s.Orders(context.Background(), []string{"acme"}, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
