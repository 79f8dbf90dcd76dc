package events

import (
	"context"
	"testing"
	"time"

	"github.com/mkpazon/TmiK/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_FanOutPreservesOrder(t *testing.T) {
	bus := NewBus[int]()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, i))
	}

	for _, sub := range []*Subscription[int]{a, b} {
		for want := 0; want < 10; want++ {
			got, err := sub.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus[string]()
	require.NoError(t, bus.Publish(context.Background(), "early"))

	sub := bus.Subscribe()
	defer sub.Close()
	require.NoError(t, bus.Publish(context.Background(), "late"))

	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", got)
}

func TestBus_PublishWaitsForSlowSubscriber(t *testing.T) {
	bus := NewBufferedBus[int](1)
	sub := bus.Subscribe()
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, 1))

	published := make(chan struct{})
	go func() {
		_ = bus.Publish(ctx, 2)
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish should block while the subscriber buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	for want := 1; want <= 2; want++ {
		got, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	<-published
}

func TestBus_PublishHonoursContext(t *testing.T) {
	bus := NewBufferedBus[int](0)
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, 1), context.DeadlineExceeded)
}

func TestBus_CloseSubscriptionUnblocksPublish(t *testing.T) {
	bus := NewBufferedBus[int](0)
	sub := bus.Subscribe()

	done := make(chan error, 1)
	go func() { done <- bus.Publish(context.Background(), 1) }()

	time.Sleep(10 * time.Millisecond)
	sub.Close()
	sub.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not return after unsubscribe")
	}
	assert.Equal(t, 0, bus.Len())
}

func TestBus_CloseEndsStreams(t *testing.T) {
	bus := NewBus[int]()
	sub := bus.Subscribe()
	require.NoError(t, bus.Publish(context.Background(), 7))
	bus.Close()

	got, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, sdk.ErrStreamClosed)

	_, err = bus.Subscribe().Next(context.Background())
	assert.ErrorIs(t, err, sdk.ErrStreamClosed)
}

func TestSubscription_NextHonoursContext(t *testing.T) {
	bus := NewBus[int]()
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLossyBus_StalledSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewLossyBus[int](4)
	stalled := bus.Subscribe()
	defer stalled.Close()
	live := bus.Subscribe()
	defer live.Close()

	ctx := context.Background()
	got := make(chan int, 100)
	go func() {
		for {
			v, err := live.Next(ctx)
			if err != nil {
				return
			}
			got <- v
		}
	}()

	published := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = bus.Publish(ctx, i)
			// keep the live reader able to keep up with a buffer of 4
			time.Sleep(100 * time.Microsecond)
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked behind a stalled subscriber")
	}

	late := make(chan *Subscription[int], 1)
	go func() { late <- bus.Subscribe() }()
	select {
	case s := <-late:
		s.Close()
	case <-time.After(time.Second):
		t.Fatal("subscribe blocked behind a stalled subscriber")
	}

	require.Eventually(t, func() bool { return len(got) > 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(96), stalled.Dropped())

	for want := 0; want < 4; want++ {
		v, err := stalled.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, v, "a lossy subscriber keeps the values it had room for")
	}
}
