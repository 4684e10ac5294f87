package ircd

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harnessServer boots a ThreadedServer on an ephemeral port. The
// end-to-end scenarios below run against it over real TCP.
func harnessServer(t *testing.T) (*ThreadedServer, string) {
	t.Helper()

	ts, err := NewThreadedServer(ServerConfig{
		ListenHost:    "127.0.0.1",
		ListenPort:    "0",
		ServerName:    "test.server",
		Version:       "1.0",
		CreatedDate:   "2026-01-01",
		UserCap:       64,
		WaitTime:      time.Minute,
		QueueCapacity: 64,
		FdCapacity:    64,
	}, 2)
	require.NoError(t, err)

	go func() {
		_ = ts.Run()
	}()
	t.Cleanup(ts.Stop)

	return ts, ts.Addr().String()
}

// wireClient is a raw TCP client speaking CRLF-terminated lines.
type wireClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialClient(t *testing.T, addr string) *wireClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &wireClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *wireClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

// expect reads lines until one contains want, failing the test on
// timeout. Lines read past are discarded, so callers assert order by
// calling expect repeatedly.
func (c *wireClient) expect(want string) string {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		line, err := c.r.ReadString('\n')
		require.NoError(c.t, err, "waiting for %q", want)
		line = strings.TrimRight(line, "\r\n")
		if strings.Contains(line, want) {
			return line
		}
	}
}

func (c *wireClient) register(nick string) {
	c.t.Helper()
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick)
	c.expect("001 " + nick)
}

// S1 - Registration.
func TestE2ERegistration(t *testing.T) {
	_, addr := harnessServer(t)
	a := dialClient(t, addr)

	a.send("NICK alice")
	a.send("USER alice 0 * :A")

	line := a.expect("001 alice")
	assert.Contains(t, line, "Welcome to the IRC Network")
	assert.True(t, strings.HasPrefix(line, ":test.server"))
}

// S2 - Join + names, in order.
func TestE2EJoinRepliesInOrder(t *testing.T) {
	_, addr := harnessServer(t)
	a := dialClient(t, addr)
	a.register("alice")

	a.send("JOIN #dev")

	assert.Contains(t, a.expect("JOIN #dev"), ":alice!alice@")
	assert.Contains(t, a.expect("331"), "No topic is set")
	assert.Contains(t, a.expect("353"), "alice")
	a.expect("366")
}

// S3 - Message to channel: no echo to the sender.
func TestE2EPrivmsgRelay(t *testing.T) {
	_, addr := harnessServer(t)
	a := dialClient(t, addr)
	b := dialClient(t, addr)
	a.register("alice")
	b.register("bob")

	a.send("JOIN #dev")
	a.expect("366")
	b.send("JOIN #dev")
	b.expect("366")
	a.expect("bob") // alice sees bob's JOIN broadcast

	a.send("PRIVMSG #dev :hi")
	assert.Equal(t, ":alice!alice@127.0.0.1 PRIVMSG #dev :hi", b.expect("PRIVMSG"))

	// No echo to alice: the next thing she receives must be her own
	// WHOIS reply, not the PRIVMSG.
	a.send("WHOIS bob")
	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	next, err := a.r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, next, " 311 ")
	assert.Contains(t, next, "bob")
}

// S4 - Nickname collision.
func TestE2ENickCollision(t *testing.T) {
	_, addr := harnessServer(t)
	b := dialClient(t, addr)
	b.register("bob")

	a := dialClient(t, addr)
	a.send("NICK bob")
	line := a.expect("433")
	assert.Contains(t, line, "* bob")
	assert.Contains(t, line, "Nickname is already in use")
}

// S5 - Part broadcasts, temporary channel dies.
func TestE2EPartDestroysTemporaryChannel(t *testing.T) {
	_, addr := harnessServer(t)
	a := dialClient(t, addr)
	a.register("alice")

	a.send("JOIN #solo")
	a.expect("366")

	a.send("PART #solo :bye")
	assert.Equal(t, ":alice!alice@127.0.0.1 PART #solo :bye", a.expect("PART"))

	// Re-joining re-creates it, proving the old channel is gone.
	a.send("JOIN #solo")
	a.expect("331")
}

// S6 - Quit cleans up.
func TestE2EQuitNotifiesAndUnregisters(t *testing.T) {
	_, addr := harnessServer(t)
	a := dialClient(t, addr)
	b := dialClient(t, addr)
	a.register("alice")
	b.register("bob")

	a.send("JOIN #dev")
	a.expect("366")
	b.send("JOIN #dev")
	b.expect("366")

	a.send("QUIT :later")
	assert.Equal(t, ":alice!alice@127.0.0.1 QUIT :later", b.expect("QUIT"))

	// alice's connection is closed by the server.
	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, err := a.r.ReadString('\n'); err != nil {
			break
		}
	}

	// The nickname is free again.
	c := dialClient(t, addr)
	c.register("alice")
}
