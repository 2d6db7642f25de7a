package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannelSendAndReceive(t *testing.T) {
	rc := NewRingChannel[int](3)
	rc.Send(1)
	rc.Send(2)

	assert.Equal(t, 1, <-rc.C())
	assert.Equal(t, 2, <-rc.C())
}

func TestRingChannelDropsOldestWhenFull(t *testing.T) {
	rc := NewRingChannel[int](2)
	rc.Send(1)
	rc.Send(2)
	rc.Send(3) // evicts 1

	assert.Equal(t, 2, <-rc.C())
	assert.Equal(t, 3, <-rc.C())

	select {
	case v := <-rc.C():
		t.Fatalf("unexpected element %d", v)
	default:
	}
}

func TestRingChannelClose(t *testing.T) {
	rc := NewRingChannel[int](1)
	rc.Send(7)
	rc.Close()

	v, ok := <-rc.C()
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = <-rc.C()
	assert.False(t, ok)
}

func TestRingChannelInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewRingChannel[int](0) })
}
