package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIDConversions(t *testing.T) {
	t.Parallel()

	require.True(t, Nil.IsNil())
	require.True(t, ParseID("   ").IsNil())
	require.Equal(t, ID("acme"), ParseID(" acme "))

	u := uuid.New()
	id := IDFromUUID(u)
	require.False(t, id.IsNil())

	back, err := id.UUID()
	require.NoError(t, err)
	require.Equal(t, u, back)

	_, err = ID("not-a-uuid").UUID()
	require.Error(t, err)

	require.True(t, IDFromUUID(uuid.Nil).IsNil())
}

func TestContextValidity(t *testing.T) {
	t.Parallel()

	require.False(t, Context{}.Valid())
	require.True(t, NewContext("acme", "tenant_acme", nil).Valid())
}

func TestNewContextCopiesProperties(t *testing.T) {
	t.Parallel()

	props := map[string]string{"region": "eu"}
	tc := NewContext("acme", "tenant_acme", props)
	props["region"] = "us"

	v, ok := tc.Property("region")
	require.True(t, ok)
	require.Equal(t, "eu", v)
}

func TestWithCurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, ok := Current(ctx)
	require.False(t, ok)

	tc := NewContext("acme", "tenant_acme", nil)
	ctx = WithCurrent(ctx, tc)

	got, ok := Current(ctx)
	require.True(t, ok)
	require.Equal(t, tc, got)
}

func TestCarrierNestedScopesRestoreLIFO(t *testing.T) {
	t.Parallel()

	carrier := NewCarrier()

	t1 := NewContext("t1", "tenant_t1", nil)
	t2 := NewContext("t2", "tenant_t2", nil)
	t3 := NewContext("t3", "tenant_t3", nil)

	restore1 := carrier.Enter(t1)
	defer restore1()

	restore2 := carrier.Enter(t2)
	restore3 := carrier.Enter(t3)

	current, ok := carrier.Current()
	require.True(t, ok)
	require.Equal(t, t3, current)

	restore3()
	current, ok = carrier.Current()
	require.True(t, ok)
	require.Equal(t, t2, current)

	restore2()
	current, ok = carrier.Current()
	require.True(t, ok)
	require.Equal(t, t1, current)
}

func TestCarrierRestoreIsIdempotent(t *testing.T) {
	t.Parallel()

	carrier := NewCarrier()
	restore1 := carrier.Enter(NewContext("t1", "tenant_t1", nil))
	restore2 := carrier.Enter(NewContext("t2", "tenant_t2", nil))

	restore2()
	restore2() // second call must not pop t1

	current, ok := carrier.Current()
	require.True(t, ok)
	require.Equal(t, ID("t1"), current.ID)

	restore1()
	_, ok = carrier.Current()
	require.False(t, ok)
}
