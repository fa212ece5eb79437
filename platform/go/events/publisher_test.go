package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

func TestFanoutDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()

	f := NewFanout(zaptest.NewLogger(t))

	var order []string
	f.Subscribe(func(ctx context.Context, event any) error {
		order = append(order, "first")
		return nil
	})
	f.Subscribe(func(ctx context.Context, event any) error {
		order = append(order, "second")
		return nil
	})

	f.Publish(context.Background(), TenantCreated{
		TenantID:   tenantpkg.ID("acme"),
		SchemaName: "tenant_acme",
		OccurredAt: time.Now().UTC(),
	})

	require.Equal(t, []string{"first", "second"}, order)
}

func TestFanoutIsolatesFailingSubscribers(t *testing.T) {
	t.Parallel()

	f := NewFanout(zaptest.NewLogger(t))

	var reached bool
	f.Subscribe(func(ctx context.Context, event any) error {
		return errors.New("subscriber error")
	})
	f.Subscribe(func(ctx context.Context, event any) error {
		panic("subscriber panic")
	})
	f.Subscribe(func(ctx context.Context, event any) error {
		reached = true
		return nil
	})

	require.NotPanics(t, func() {
		f.Publish(context.Background(), TenantDeleted{TenantID: "acme", Hard: true})
	})
	require.True(t, reached)
}

func TestNopPublisher(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		Nop{}.Publish(context.Background(), TenantResolved{})
	})
}
