package channel_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/channel"
)

// TestSlowSubscriberDropsWhileFastSubscriberKeepsUp exercises the
// slow-subscriber scenario directly against a capacity-8 channel: a
// producer publishing at roughly 1000 msg/s for one second, a Slow
// subscriber whose receive loop sleeps 10ms per item (so it can drain
// at most ~100 items/s against an 8-deep buffer), and a Fast subscriber
// draining as quickly as possible on the same channel.
func TestSlowSubscriberDropsWhileFastSubscriberKeepsUp(t *testing.T) {
	ch := channel.New("src.out", "int", 8)

	slow, err := ch.Subscribe("slow")
	require.NoError(t, err)
	fast, err := ch.Subscribe("fast")
	require.NoError(t, err)

	var fastCount, slowDelivered int64
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			_, ok := slow.Receive()
			if !ok {
				return
			}
			atomic.AddInt64(&slowDelivered, 1)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	go func() {
		defer wg.Done()
		for {
			_, ok := fast.Receive()
			if !ok {
				return
			}
			atomic.AddInt64(&fastCount, 1)
		}
	}()

	const rate = 1000
	const duration = time.Second
	ticker := time.NewTicker(duration / rate)
	defer ticker.Stop()

	published := 0
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		<-ticker.C
		ch.Publish(published)
		published++
	}

	// give the slow subscriber's last in-flight sleep a moment to settle,
	// then close so both receive loops unblock.
	time.Sleep(20 * time.Millisecond)
	ch.Close()
	wg.Wait()

	slowSnap := slow.Snapshot()
	assert.GreaterOrEqual(t, int(slowSnap.Lag), 800, "slow subscriber should have dropped at least 800 items")
	assert.LessOrEqual(t, int(atomic.LoadInt64(&slowDelivered)), 100, "slow subscriber should have delivered at most 100 items")

	assert.GreaterOrEqual(t, int(atomic.LoadInt64(&fastCount)), published-8,
		"fast subscriber should observe essentially every published item")
}
