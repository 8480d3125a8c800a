package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingTicker struct {
	count int32
	delay time.Duration
}

func (c *countingTicker) Tick(ctx context.Context) {
	atomic.AddInt32(&c.count, 1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
}

func TestRunOnceTicksExactlyOnce(t *testing.T) {
	tk := &countingTicker{}
	s := NewService(tk, time.Hour)
	s.RunOnce(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&tk.count))
}

func TestRunTicksImmediatelyThenOnInterval(t *testing.T) {
	tk := &countingTicker{}
	s := NewService(tk, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 65*time.Millisecond)
	defer cancel()

	s.Run(ctx)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&tk.count)), 2)
}

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	tk := &countingTicker{}
	s := NewService(tk, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	s.Run(ctx)
	assert.Less(t, time.Since(start), drainDeadline)
}
