package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCheckAllReportsFailures(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("ok", CheckFunc(func(context.Context) error { return nil }))
	r.Register("down", CheckFunc(func(context.Context) error { return errors.New("connection refused") }))

	assert.Equal(t, []string{"down", "ok"}, r.List())

	failures := r.CheckAll(context.Background())
	require.Len(t, failures, 1)
	assert.EqualError(t, failures["down"], "connection refused")

	r.Unregister("down")
	assert.Empty(t, r.CheckAll(context.Background()))
}

func TestCheckAllBoundsSlowCheckers(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	failures := r.CheckAll(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, failures["slow"], context.DeadlineExceeded)
}
