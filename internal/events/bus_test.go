package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderFilled, 1)

	b.Publish(EventOrderFilled, OrderEvent{ClientID: "a"})
	b.Publish(EventOrderFilled, OrderEvent{ClientID: "b"}) // buffer full
	b.Publish(EventOrderRejected, OrderEvent{ClientID: "c"})

	got := <-ch
	assert.Equal(t, "a", got.(OrderEvent).ClientID)
	assert.Equal(t, uint64(1), b.Dropped())

	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok, "unsubscribe closes the channel")
}

func TestSubscribeManyAndClose(t *testing.T) {
	b := NewBus()
	ch, _ := b.SubscribeMany(4, EventStrategySignal, EventRiskAlert)

	b.Publish(EventStrategySignal, SignalEvent{Strategy: "s"})
	b.Publish(EventRiskAlert, RiskAlert{Gate: "cooldown"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-ch:
			switch ev := v.(type) {
			case SignalEvent:
				seen[ev.Strategy] = true
			case RiskAlert:
				seen[ev.Gate] = true
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.Equal(t, map[string]bool{"s": true, "cooldown": true}, seen)

	b.Close()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("merged channel not closed")
	}
	late, _ := b.Subscribe(EventOrderFilled, 1)
	_, ok := <-late
	assert.False(t, ok)
}
