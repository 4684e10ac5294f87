// Package pollset wraps Linux epoll for the server's single-threaded
// core, and provides the self-pipe used to deliver signals into that
// same loop.
package pollset

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ListenerIndex and SelfPipeIndex are the reserved, fixed indices the
// listening socket and the signal self-pipe occupy in the fd registry.
const (
	ListenerIndex = 0
	SelfPipeIndex = 1
)

// PollSet wraps an epoll instance. It is not safe for concurrent use; it
// is meant to be owned by exactly one poll loop goroutine.
type PollSet struct {
	epfd int
}

// New creates a new epoll instance.
func New() (*PollSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &PollSet{epfd: epfd}, nil
}

// Close releases the epoll instance.
func (p *PollSet) Close() error {
	return unix.Close(p.epfd)
}

// SetPollFd registers fd for input readiness (and error conditions, which
// epoll always reports regardless of the requested event mask).
func (p *PollSet) SetPollFd(fd int) error {
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return errors.Wrapf(err, "epoll_ctl add fd %d", fd)
	}
	return nil
}

// UnsetPollFd stops polling fd. It is not an error to unset an fd that was
// never set, matching the lenient teardown path taken on a dead
// connection.
func (p *PollSet) UnsetPollFd(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return errors.Wrapf(err, "epoll_ctl del fd %d", fd)
	}
	return nil
}

// ReadyEvent describes one fd that came back ready from Wait.
type ReadyEvent struct {
	Fd         int
	InputReady bool
	Error      bool // POLLERR|POLLHUP equivalent
}

// Wait blocks (up to timeoutMillis, or indefinitely if negative) for
// readiness and returns the ready fds. EINTR is retried transparently.
func (p *PollSet) Wait(timeoutMillis int) ([]ReadyEvent, error) {
	events := make([]unix.EpollEvent, 64)

	for {
		n, err := unix.EpollWait(p.epfd, events, timeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, errors.Wrap(err, "epoll_wait")
		}

		ready := make([]ReadyEvent, 0, n)
		for i := 0; i < n; i++ {
			e := events[i]
			ready = append(ready, ReadyEvent{
				Fd:         int(e.Fd),
				InputReady: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
				Error:      e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			})
		}
		return ready, nil
	}
}

// Fd extracts the raw OS file descriptor backing a net.Conn-like value,
// via syscall.Conn, and puts it into non-blocking mode so reads/writes
// never block the single poll-loop goroutine.
func Fd(conn syscall.Conn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, errors.Wrap(err, "getting raw connection")
	}

	var fd int
	var ctlErr error
	err = raw.Control(func(ptr uintptr) {
		fd = int(ptr)
		ctlErr = unix.SetNonblock(fd, true)
	})
	if err != nil {
		return -1, errors.Wrap(err, "raw control")
	}
	if ctlErr != nil {
		return -1, errors.Wrap(ctlErr, "setting non-blocking")
	}

	return fd, nil
}

// Read performs a single non-blocking read from fd. A return of (0, true,
// nil) means EOF. unix.EAGAIN is translated to (0, false, nil) so callers
// can distinguish "nothing ready right now" (ignore) from EOF (tear
// down).
func Read(fd int, buf []byte) (n int, ok bool, err error) {
	for {
		n, err = unix.Read(fd, buf)
		if err == nil {
			return n, true, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "read")
	}
}

// Write performs a blocking-style write loop over a non-blocking fd,
// tolerating EINTR and short writes. EPIPE is
// returned unwrapped so callers can recognise it and tear down the
// connection without logging it as a surprise.
func Write(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				continue
			}
			if err == unix.EPIPE {
				return unix.EPIPE
			}
			return errors.Wrap(err, "write")
		}
		data = data[n:]
	}
	return nil
}
