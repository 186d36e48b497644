package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := Connect(mr.Addr(), "")
	require.NoError(t, err)
	require.NotNil(t, c)
	return c, mr
}

func TestConnectWithEmptyAddrReturnsNilClient(t *testing.T) {
	c, err := Connect("", "")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestConnectFailsOnUnreachableAddr(t *testing.T) {
	_, err := Connect("127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestPingSucceedsAgainstRunningRedis(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()
	assert.NoError(t, c.Ping(context.Background()))
}

func TestSetWordThenGetWordRoundTrips(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	c.SetWord(context.Background(), "room:ABC123:word", "сонце", time.Minute)
	val, ok := c.GetWord(context.Background(), "room:ABC123:word")
	require.True(t, ok)
	assert.Equal(t, "сонце", val)
}

func TestGetWordMissReturnsFalse(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()

	_, ok := c.GetWord(context.Background(), "no-such-key")
	assert.False(t, ok)
}

func TestNilClientMethodsAreNoOps(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
	assert.Nil(t, c.Raw())

	_, ok := c.GetWord(context.Background(), "key")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		c.SetWord(context.Background(), "key", "value", time.Minute)
	})
}
