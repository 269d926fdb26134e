package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/srg/sixmwt/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLink only needs identity for registry tests.
type stubLink struct {
	device.Link
	addr string
}

func TestRegisterCategory(t *testing.T) {
	r := New()

	assert.Equal(t, device.CategoryUnknown, r.LookupCategory("AA:BB"), "absent address MUST be Unknown")

	assert.Equal(t, device.CategoryUnknown, r.RegisterCategory("AA:BB", device.CategoryUnknown))
	assert.Equal(t, device.CategoryOximeter, r.RegisterCategory("aa:bb", device.CategoryOximeter),
		"Unknown MUST be upgraded")
	assert.Equal(t, device.CategoryOximeter, r.RegisterCategory("AA:BB", device.CategoryWearable),
		"known category MUST NOT be overwritten")
	assert.Equal(t, device.CategoryOximeter, r.RegisterCategory("AA:BB", device.CategoryUnknown),
		"category MUST NOT be downgraded")
	assert.Equal(t, device.CategoryOximeter, r.LookupCategory("aa:BB"))

	assert.Equal(t, device.CategoryUnknown, r.RegisterCategory("", device.CategoryWearable))
	assert.Len(t, r.Entries(), 1)
}

func TestClaims(t *testing.T) {
	r := New()
	r.RegisterCategory("AA:BB", device.CategoryWearable)

	holder, ok := r.Claim("aa:bb", device.CategoryOximeter)
	require.True(t, ok, "an unclaimed address MUST be claimable under any category")
	assert.Equal(t, device.CategoryOximeter, holder)
	assert.Equal(t, device.CategoryOximeter, r.LookupCategory("AA:BB"), "a claim MUST overwrite the recorded category")
	assert.Equal(t, device.CategoryOximeter, r.ClaimedBy("AA:BB"))

	_, ok = r.Claim("AA:BB", device.CategoryOximeter)
	assert.True(t, ok, "re-claiming under the same category MUST succeed")

	holder, ok = r.Claim("AA:BB", device.CategoryWearable)
	assert.False(t, ok, "a held address MUST NOT be claimed by the other category")
	assert.Equal(t, device.CategoryOximeter, holder)

	r.Release("AA:BB", device.CategoryWearable)
	assert.Equal(t, device.CategoryOximeter, r.ClaimedBy("AA:BB"), "only the holder MUST be able to release")

	r.Release("aa:bb", device.CategoryOximeter)
	assert.Equal(t, device.CategoryUnknown, r.ClaimedBy("AA:BB"))
	assert.Equal(t, device.CategoryOximeter, r.LookupCategory("AA:BB"), "release MUST keep the recorded category")

	_, ok = r.Claim("AA:BB", device.CategoryWearable)
	assert.True(t, ok, "a released address MUST be claimable by the other category")
	assert.Equal(t, device.CategoryWearable, r.LookupCategory("AA:BB"))
}

func TestBindings(t *testing.T) {
	r := New()
	first := &stubLink{addr: "AA"}
	second := &stubLink{addr: "AA"}

	_, ok := r.LookupHandle("AA")
	assert.False(t, ok)

	r.BindConnection("AA", first)
	h, ok := r.LookupHandle("aa")
	require.True(t, ok)
	assert.Same(t, first, h)
	assert.True(t, r.IsCurrent("AA", first))
	assert.False(t, r.IsCurrent("AA", second), "a different link MUST be stale")

	r.BindConnection("AA", second)
	assert.False(t, r.IsCurrent("AA", first), "a replaced link MUST be stale")
	assert.Len(t, r.Bound(), 1)

	r.UnbindConnection("AA")
	assert.False(t, r.IsCurrent("AA", second))
	assert.Empty(t, r.Bound())
}

func TestUserIntent(t *testing.T) {
	r := New()
	assert.False(t, r.IsUserDisconnect("AA"))
	r.MarkUserDisconnect("aa")
	assert.True(t, r.IsUserDisconnect("AA"))
	r.ClearUserDisconnect("AA")
	assert.False(t, r.IsUserDisconnect("aa"))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("DEV-%02d", i%8)
			r.RegisterCategory(addr, device.CategoryWearable)
			r.BindConnection(addr, &stubLink{addr: addr})
			r.MarkUserDisconnect(addr)
			_ = r.LookupCategory(addr)
			_ = r.Bound()
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Entries(), 8, "every registered address MUST be listed")
	assert.Len(t, r.Bound(), 8)
	for _, e := range r.Entries() {
		assert.Equal(t, device.CategoryWearable, e.Category)
		assert.NotNil(t, e.Link)
	}
}
