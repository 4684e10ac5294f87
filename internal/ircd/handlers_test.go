package ircd

import (
	"testing"

	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records every line written to it, standing in for the real
// socket/epoll plumbing so handlers.go can be tested without a TCP
// listener.
type fakeConn struct {
	lines  []string
	closed bool
}

func (f *fakeConn) WriteLine(line string) error {
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func newTestEngine() *Engine {
	return NewEngine("test.server", "1.0", "2026-01-01", 64, 16)
}

func newTestClient(e *Engine, fd int) (*Client, *fakeConn) {
	conn := &fakeConn{}
	c := NewClient(fd, "host.example", IdentifierHostname, 0, conn)
	e.AddClient(c)
	return c, conn
}

// flushAll drains every ready fd/user/channel queue straight to the
// owning Client's fake connection, the same path Server.flush and
// ThreadedServer.flush take.
func flushAll(e *Engine) {
	e.Flush(func(*Client) {})
}

// S1 - Registration.
func TestRegistrationSendsWelcome(t *testing.T) {
	e := newTestEngine()
	c, conn := newTestClient(e, 1)

	e.HandleLine(c, "NICK alice")
	e.HandleLine(c, "USER alice 0 * :A")
	flushAll(e)

	require.Len(t, conn.lines, 1)
	assert.Contains(t, conn.lines[0], "001 alice")
	assert.Contains(t, conn.lines[0], "Welcome to the IRC Network")
	assert.Equal(t, statemachine.Registered, c.State)
}

// S2 - Join + names.
func TestJoinSendsBroadcastTopicAndNames(t *testing.T) {
	e := newTestEngine()
	c, conn := newTestClient(e, 1)
	e.HandleLine(c, "NICK alice")
	e.HandleLine(c, "USER alice 0 * :A")
	flushAll(e)
	conn.lines = nil

	e.HandleLine(c, "JOIN #dev")
	flushAll(e)

	// The joiner's own JOIN precedes the topic and names numerics.
	require.Len(t, conn.lines, 4)
	assert.Equal(t, ":alice!alice@host.example JOIN #dev\r\n", conn.lines[0])
	assert.Contains(t, conn.lines[1], "331")
	assert.Contains(t, conn.lines[1], "No topic is set")
	assert.Contains(t, conn.lines[2], "353")
	assert.Contains(t, conn.lines[2], "alice")
	assert.Contains(t, conn.lines[3], "366")
	assert.Equal(t, statemachine.InChannel, c.State)
}

// S3 - Message to channel: sender gets no echo, other member gets it.
func TestPrivmsgToChannelRelaysWithoutEcho(t *testing.T) {
	e := newTestEngine()
	alice, aliceConn := newTestClient(e, 1)
	bob, bobConn := newTestClient(e, 2)

	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	e.HandleLine(alice, "JOIN #dev")
	e.HandleLine(bob, "NICK bob")
	e.HandleLine(bob, "USER bob 0 * :B")
	e.HandleLine(bob, "JOIN #dev")
	flushAll(e)
	aliceConn.lines, bobConn.lines = nil, nil

	e.HandleLine(alice, "PRIVMSG #dev :hi")
	flushAll(e)

	assert.Empty(t, aliceConn.lines)
	require.Len(t, bobConn.lines, 1)
	assert.Equal(t, ":alice!alice@host.example PRIVMSG #dev :hi\r\n", bobConn.lines[0])
}

// S4 - Nickname collision.
func TestNickCollisionRejectsWithoutChangingState(t *testing.T) {
	e := newTestEngine()
	_, _ = newTestClient(e, 1)
	bob, _ := newTestClient(e, 2)
	e.HandleLine(bob, "NICK bob")
	e.HandleLine(bob, "USER bob 0 * :B")

	alice, aliceConn := newTestClient(e, 3)
	e.HandleLine(alice, "NICK bob")
	flushAll(e)

	require.Len(t, aliceConn.lines, 1)
	assert.Contains(t, aliceConn.lines[0], "433")
	assert.Contains(t, aliceConn.lines[0], "bob")
	assert.Empty(t, alice.Nickname)
}

// S5 - Part broadcasts, temporary channel dies.
func TestPartBroadcastsAndDestroysEmptyTemporaryChannel(t *testing.T) {
	e := newTestEngine()
	alice, conn := newTestClient(e, 1)
	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	e.HandleLine(alice, "JOIN #solo")
	flushAll(e)
	conn.lines = nil

	e.HandleLine(alice, "PART #solo :bye")
	flushAll(e)

	require.Len(t, conn.lines, 1)
	assert.Equal(t, ":alice!alice@host.example PART #solo :bye\r\n", conn.lines[0])

	_, exists := e.Session.LookupChannel("#solo")
	assert.False(t, exists)

	// Next JOIN re-creates it.
	e.HandleLine(alice, "JOIN #solo")
	_, exists = e.Session.LookupChannel("#solo")
	assert.True(t, exists)
}

// S6 - Quit cleans up.
func TestQuitNotifiesChannelAndUnregistersNick(t *testing.T) {
	e := newTestEngine()
	alice, _ := newTestClient(e, 1)
	bob, bobConn := newTestClient(e, 2)

	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	e.HandleLine(alice, "JOIN #dev")
	e.HandleLine(bob, "NICK bob")
	e.HandleLine(bob, "USER bob 0 * :B")
	e.HandleLine(bob, "JOIN #dev")
	flushAll(e)
	bobConn.lines = nil

	e.HandleLine(alice, "QUIT :later")
	flushAll(e)

	require.Len(t, bobConn.lines, 1)
	assert.Equal(t, ":alice!alice@host.example QUIT :later\r\n", bobConn.lines[0])

	_, exists := e.Session.LookupUser("alice")
	assert.False(t, exists)
	assert.NotContains(t, e.Session.MemberNicknames("#dev"), "alice")
	assert.Equal(t, statemachine.Disconnected, alice.State)
}

func TestUnregisteredCommandYieldsErrNotRegistered(t *testing.T) {
	e := newTestEngine()
	c, conn := newTestClient(e, 1)

	e.HandleLine(c, "JOIN #dev")
	flushAll(e)

	require.Len(t, conn.lines, 1)
	assert.Contains(t, conn.lines[0], "451")
}

func TestWhoisUnknownNickReturnsErrNoSuchNick(t *testing.T) {
	e := newTestEngine()
	alice, aliceConn := newTestClient(e, 1)
	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	flushAll(e)
	aliceConn.lines = nil

	e.HandleLine(alice, "WHOIS ghost")
	flushAll(e)

	require.Len(t, aliceConn.lines, 1)
	assert.Contains(t, aliceConn.lines[0], "401")
}

func TestRepeatedJoinEnqueuesNothing(t *testing.T) {
	e := newTestEngine()
	alice, conn := newTestClient(e, 1)
	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	e.HandleLine(alice, "JOIN #dev")
	flushAll(e)
	conn.lines = nil

	e.HandleLine(alice, "JOIN #dev")
	flushAll(e)

	assert.Len(t, e.Session.MemberNicknames("#dev"), 1)
	// Idempotent join: no duplicate membership, no second broadcast.
	assert.Empty(t, conn.lines)
}

func TestNickRenameEchoesOnceAndNotifiesChannels(t *testing.T) {
	e := newTestEngine()
	alice, aliceConn := newTestClient(e, 1)
	bob, bobConn := newTestClient(e, 2)

	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	e.HandleLine(alice, "JOIN #dev")
	e.HandleLine(alice, "JOIN #ops")
	e.HandleLine(bob, "NICK bob")
	e.HandleLine(bob, "USER bob 0 * :B")
	e.HandleLine(bob, "JOIN #dev")
	flushAll(e)
	aliceConn.lines, bobConn.lines = nil, nil

	e.HandleLine(alice, "NICK alicia")
	flushAll(e)

	// One echo to the renamer even though she is in two channels; one
	// notification to bob.
	require.Len(t, aliceConn.lines, 1)
	assert.Equal(t, ":alice!alice@host.example NICK alicia\r\n", aliceConn.lines[0])
	require.Len(t, bobConn.lines, 1)
	assert.Equal(t, ":alice!alice@host.example NICK alicia\r\n", bobConn.lines[0])

	_, exists := e.Session.LookupUser("alice")
	assert.False(t, exists)
	assert.Contains(t, e.Session.MemberNicknames("#dev"), "alicia")
}

func TestUserAfterRegistrationYieldsAlreadyRegistered(t *testing.T) {
	e := newTestEngine()
	c, conn := newTestClient(e, 1)
	e.HandleLine(c, "NICK alice")
	e.HandleLine(c, "USER alice 0 * :A")
	flushAll(e)
	conn.lines = nil

	e.HandleLine(c, "USER alice 0 * :A")
	flushAll(e)

	require.Len(t, conn.lines, 1)
	assert.Contains(t, conn.lines[0], "462")
}

func TestTopicSetEchoesToSetter(t *testing.T) {
	e := newTestEngine()
	alice, conn := newTestClient(e, 1)
	e.HandleLine(alice, "NICK alice")
	e.HandleLine(alice, "USER alice 0 * :A")
	e.HandleLine(alice, "JOIN #dev")
	flushAll(e)
	conn.lines = nil

	e.HandleLine(alice, "TOPIC #dev :hello world")
	flushAll(e)

	require.Len(t, conn.lines, 1)
	assert.Equal(t, ":alice!alice@host.example TOPIC #dev :hello world\r\n", conn.lines[0])
}
