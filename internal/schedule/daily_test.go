package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartRejectsInvalidSpec(t *testing.T) {
	err := NewDaily(nil).Start(context.Background(), "not a cron spec", func(context.Context, time.Time) error {
		return nil
	})
	assert.Error(t, err)
}

func TestStartReturnsNilOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- NewDaily(nil).Start(ctx, "0 0 1 1 *", func(context.Context, time.Time) error {
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "a cancelled watch is a clean shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
