package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	t.Run("propagates name and pprof label", func(t *testing.T) {
		type result struct {
			name  string
			label string
			gid   uint64
		}
		done := make(chan result, 1)

		Go(context.Background(), "worker-42", func(ctx context.Context) {
			label, _ := pprof.Label(ctx, "goroutine_name")
			done <- result{name: GetName(ctx), label: label, gid: GetGID()}
		})

		select {
		case r := <-done:
			assert.Equal(t, "worker-42", r.name)
			assert.Equal(t, "worker-42", r.label)
			assert.NotZero(t, r.gid)
			assert.NotEqual(t, GetGID(), r.gid, "MUST run on a different goroutine")
		case <-time.After(time.Second):
			t.Fatal("goroutine did not run")
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		done := make(chan struct{})
		Go(nil, "panicker", func(ctx context.Context) {
			defer close(done)
			panic("boom")
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("goroutine did not run")
		}
	})

	t.Run("GetName on foreign contexts", func(t *testing.T) {
		require.Empty(t, GetName(context.Background()))
		//nolint:staticcheck // nil context is part of the contract
		require.Empty(t, GetName(nil))
	})
}
