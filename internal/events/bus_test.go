package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, stop1 := bus.Subscribe()
	ch2, stop2 := bus.Subscribe()
	defer stop1()
	defer stop2()

	bus.Publish(Event{Kind: KindJobCreated, Payload: "j1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		evt := <-ch
		assert.Equal(t, KindJobCreated, evt.Kind)
		assert.Equal(t, "j1", evt.Payload)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.Subscribe()
	defer stop()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish(Event{Kind: KindJobUpdated, Payload: i})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.Subscribe()
	stop()
	stop() // idempotent

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(Event{Kind: KindCatalogSnapshot})
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				bus.Publish(Event{Kind: KindJobUpdated})
			}
		}
	}()

	// Clients disconnecting while events are in flight must never see a
	// send on their closed channel.
	for i := 0; i < 500; i++ {
		_, unsubscribe := bus.Subscribe()
		unsubscribe()
	}

	close(stop)
	wg.Wait()
}
