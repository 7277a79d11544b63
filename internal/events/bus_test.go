package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	bus := NewBus(1)
	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	n := bus.Publish(Event{Kind: BuildsChanged, WishlistID: 3})
	assert.Equal(t, 2, n)

	assert.Equal(t, Event{Kind: BuildsChanged, WishlistID: 3}, <-a)
	assert.Equal(t, Event{Kind: BuildsChanged, WishlistID: 3}, <-b)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe()
	defer cancel()

	assert.Equal(t, 1, bus.Publish(Event{Kind: BuildsChanged}))
	assert.Equal(t, 0, bus.Publish(Event{Kind: WishlistsChanged}))

	assert.Equal(t, BuildsChanged, (<-ch).Kind)
}

func TestCancelClosesAndUnregisters(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe()
	require.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
	assert.Equal(t, 0, bus.Publish(Event{Kind: BuildsChanged}))
}

func TestCloseEndsSubscriptions(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe()

	bus.Close()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
	assert.NotPanics(t, cancel)

	late, lateCancel := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
	assert.Equal(t, 0, bus.Publish(Event{Kind: BuildsChanged}))
	lateCancel()
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	assert.Equal(t, 0, bus.Publish(Event{Kind: BuildsChanged}))
}
