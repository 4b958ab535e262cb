package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownRunsInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	var order []string
	sm.Register("store", func(context.Context) error {
		order = append(order, "store")
		return nil
	})
	sm.Register("cache", func(context.Context) error {
		order = append(order, "cache")
		return errors.New("flush failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sm.Wait(ctx)

	assert.Equal(t, []string{"cache", "store"}, order)
	assert.ErrorContains(t, err, "cache: flush failed")
}

func TestShutdownWithoutFuncs(t *testing.T) {
	assert.NoError(t, NewShutdownManager(NopLogger(), nil, 0).Shutdown())
}
