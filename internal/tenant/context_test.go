package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_EmptyWithoutScope(t *testing.T) {
	assert.Equal(t, "", ID(context.Background()))
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestWithScope_NestedOverrideRestoresOuter(t *testing.T) {
	outer := WithScope(context.Background(), Scope{TenantID: "shop-a", ActorID: "u1", ActorType: ActorStaff})
	inner := WithTenant(outer, "shop-b")

	assert.Equal(t, "shop-b", ID(inner))
	s, ok := FromContext(inner)
	require.True(t, ok)
	assert.Equal(t, "u1", s.ActorID, "actor survives a tenant-only override")

	assert.Equal(t, "shop-a", ID(outer))
}

func TestWithScope_ConcurrentRequestsDoNotLeak(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := "tenant-" + string(rune('a'+i%26))
			ctx := WithTenant(context.Background(), want)
			for j := 0; j < 50; j++ {
				if got := ID(ctx); got != want {
					errs <- got
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Errorf("observed foreign tenant %q", got)
	}
}

func TestValidateID(t *testing.T) {
	valid := []string{"shop_1", "ABC-def", "3f1c0a9e-2b7d-4f7e-9d1a-5c6b7e8f9a0b"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	invalid := []string{"", "a b", "x';DROP TABLE orders;--", "tenant.1", "ñandú", string(make([]byte, 65))}
	for _, id := range invalid {
		err := ValidateID(id)
		assert.ErrorIs(t, err, ErrInvalidTenantID, id)
	}
}
