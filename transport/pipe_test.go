package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 200 * time.Millisecond

func TestPipeBroadcastExcludesSender(t *testing.T) {
	net := NewNetwork()
	a := net.Attach("a", 4)
	b := net.Attach("b", 4)

	require.NoError(t, a.Send(Message{Src: "a", Dst: Broadcast, Type: KindHello}))

	_, ok, err := a.Recv(testTimeout)
	require.NoError(t, err)
	assert.False(t, ok, "sender must not receive its own broadcast")

	m, ok, err := b.Recv(testTimeout)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", m.Src)
}

func TestPipeSendToUnreachablePeerIsSilentlyDropped(t *testing.T) {
	net := NewNetwork()
	a := net.Attach("a", 4)

	err := a.Send(Message{Src: "a", Dst: "ghost", Type: KindHello})
	assert.NoError(t, err)
}

func TestPipeFullInboxDropsInsteadOfBlocking(t *testing.T) {
	net := NewNetwork()
	a := net.Attach("a", 4)
	b := net.Attach("b", 1)

	require.NoError(t, a.Send(Message{Src: "a", Dst: "b", Type: KindHello}))
	require.NoError(t, a.Send(Message{Src: "a", Dst: "b", Type: KindHello}))

	_, ok, err := b.Recv(testTimeout)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Recv(testTimeout)
	require.NoError(t, err)
	assert.False(t, ok, "second send should have been dropped by the full inbox")
}

func TestPipeCloseIsIdempotentAndUnblocksRecv(t *testing.T) {
	net := NewNetwork()
	a := net.Attach("a", 1)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, ok, err := a.Recv(testTimeout)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNetworkDetachStopsFurtherDelivery(t *testing.T) {
	net := NewNetwork()
	a := net.Attach("a", 4)
	b := net.Attach("b", 4)

	net.Detach("b")
	require.NoError(t, a.Send(Message{Src: "a", Dst: "b", Type: KindHello}))

	_, ok, err := b.Recv(testTimeout)
	require.NoError(t, err)
	assert.False(t, ok)
}
