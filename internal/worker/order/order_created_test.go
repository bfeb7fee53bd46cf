package order_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/messaging"
	ordersvc "github.com/Additional-Code/storefront/internal/service/order"
	"github.com/Additional-Code/storefront/internal/testutil"
	workerorder "github.com/Additional-Code/storefront/internal/worker/order"
)

func seedKeys(t *testing.T, env *testutil.Env, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, env.Cache.Set(context.Background(), key, []byte(`[]`), time.Minute))
	}
}

func TestOrderCreated_InvalidatesTenantOrders(t *testing.T) {
	env := testutil.NewEnv(t)
	seedKeys(t, env,
		"shop1:order:lookup:ORD-20250301-1234:",
		"shop1:product:detail:p1",
		"shop2:order:lookup::0901234567",
	)

	cfg := config.Config{Messaging: config.Messaging{Kafka: config.Kafka{Topic: "orders.events"}}}
	reg := workerorder.NewOrderCreatedHandler(zap.NewNop(), cfg, env.Executor)
	assert.Equal(t, "orders.events", reg.Topic)

	payload, err := json.Marshal(ordersvc.OrderCreatedEvent{ID: "o-1", Code: "ORD-20250301-1234", Tenant: "shop1"})
	require.NoError(t, err)
	require.NoError(t, reg.Handler(context.Background(), messaging.Message{Topic: "orders.events", Value: payload}))

	keys, err := env.Cache.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shop1:product:detail:p1", "shop2:order:lookup::0901234567"}, keys)
}

func TestOrderCreated_TenantFromHeader(t *testing.T) {
	env := testutil.NewEnv(t)
	seedKeys(t, env, "shop2:order:items:o-9")

	reg := workerorder.NewOrderCreatedHandler(zap.NewNop(), config.Config{}, env.Executor)
	err := reg.Handler(context.Background(), messaging.Message{
		Value:   []byte(`{"id":"o-9"}`),
		Headers: map[string]string{messaging.TenantHeader: "shop2"},
	})
	require.NoError(t, err)

	keys, err := env.Cache.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOrderCreated_RejectsBadEvents(t *testing.T) {
	env := testutil.NewEnv(t)
	reg := workerorder.NewOrderCreatedHandler(zap.NewNop(), config.Config{}, env.Executor)
	ctx := context.Background()

	assert.Error(t, reg.Handler(ctx, messaging.Message{Value: []byte(`not json`)}))
	assert.ErrorContains(t, reg.Handler(ctx, messaging.Message{Value: []byte(`{"id":"o-1"}`)}), "o-1")
}
