package ircc

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedUI feeds a fixed sequence of input lines and records every
// line Display receives, standing in for a real terminal.
type scriptedUI struct {
	mu       sync.Mutex
	lines    []string
	i        int
	Displays []string
}

func (u *scriptedUI) ReadLine() (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.i >= len(u.lines) {
		return "", fmt.Errorf("input exhausted")
	}
	l := u.lines[u.i]
	u.i++
	return l, nil
}

func (u *scriptedUI) Display(line string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Displays = append(u.Displays, line)
}

func (u *scriptedUI) displays() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.Displays))
	copy(out, u.Displays)
	return out
}

// acceptOnce starts a one-shot listener and returns its port plus a
// channel of every line the accepted connection receives.
func acceptOnce(t *testing.T) (port string, received chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	received = make(chan string, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				received <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				return
			}
		}
	}()

	return p, received
}

func TestConnectNickUserJoinSendsWireLines(t *testing.T) {
	port, received := acceptOnce(t)

	ui := &scriptedUI{lines: []string{
		"connect",
		"nick alice",
		"user alice",
		"join #dev",
		"quit bye",
	}}
	c := New(ui, "127.0.0.1", port, "alice")

	err := c.Run()
	require.NoError(t, err) // "quit" ends the session before input runs out

	want := []string{"NICK alice", "USER alice 0 * alice", "JOIN #dev", "QUIT bye"}
	for _, w := range want {
		select {
		case got := <-received:
			assert.Equal(t, w, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestHelpListsStateAdmissibleCommands(t *testing.T) {
	ui := &scriptedUI{lines: []string{"help"}}
	c := New(ui, "127.0.0.1", "0", "alice")

	err := c.Run()
	require.Error(t, err)

	displays := ui.displays()
	require.Len(t, displays, 1)
	assert.Contains(t, displays[0], "Available commands")
	assert.Contains(t, displays[0], "connect")
}

func TestJoinBeforeConnectIsRejectedByStateTable(t *testing.T) {
	ui := &scriptedUI{lines: []string{"join #dev"}}
	c := New(ui, "127.0.0.1", "0", "alice")

	err := c.Run()
	require.Error(t, err)

	displays := ui.displays()
	require.Len(t, displays, 1)
	assert.Contains(t, displays[0], "not available in state")
}

func TestConnectFailureIsReportedNotFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close()) // nothing listening on p now

	port, perr := strconv.Atoi(p)
	require.NoError(t, perr)
	_ = port

	ui := &scriptedUI{lines: []string{"connect", "help"}}
	c := New(ui, "127.0.0.1", p, "alice")

	err = c.Run()
	require.Error(t, err)

	displays := ui.displays()
	require.Len(t, displays, 2)
	assert.Contains(t, displays[0], "Connect failed")
	// A failed connect leaves us in Disconnected, where "help" is still
	// admissible.
	assert.Contains(t, displays[1], "Available commands")
}
