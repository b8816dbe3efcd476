package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" session/resolve ": "bookshelf.session_resolve",
		"nav..resolve":      "bookshelf.nav.resolve",
		".":                 "",
	}
	for input, want := range tests {
		assert.Equal(t, want, metricName("bookshelf", input), "input %q", input)
	}
	assert.Equal(t, "signout", metricName("", "signout"))
}

func TestLine_MergesAndSortsTags(t *testing.T) {
	t.Parallel()

	c := &Client{
		prefix: "bookshelf",
		//nolint:gocritic // whitespace is part of the test case
		globalTags: cleanTags(map[string]string{"env": "prod", " service ": " web "}),
	}
	got := c.line("session.signout", "1", "c", map[string]string{"result": " ok ", "": "x", "env": "stage"})
	assert.Equal(t, "bookshelf.session.signout:1|c|#env:stage,result:ok,service:web", got)
}

func TestLine_NoTags(t *testing.T) {
	t.Parallel()

	c := &Client{}
	assert.Equal(t, "hub.sessions:3|g", c.line("hub.sessions", "3", "g", nil))
}

func TestClientWritesOverConnection(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{prefix: "bookshelf", conn: clientConn, logger: discardLogger()}
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peerConn.Read(buf)
		got <- string(buf[:n])
	}()

	c.Timing("session.signout", 1500*time.Microsecond, nil)
	assert.Equal(t, "bookshelf.session.signout:1.5|ms", <-got)
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{conn: clientConn}
	assert.True(t, c.Enabled())
	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
	nilClient.Count("ignored", 1, nil)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	_, err = NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
