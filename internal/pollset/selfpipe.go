package pollset

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Token names written into the self-pipe. Signal handlers write exactly
// one of these, CRLF-terminated, and nothing else, so they stay
// async-signal-safe.
const (
	TokenSigint  = "sigint"
	TokenWinch   = "sigwinch"
	TokenAlarm   = "sigalrm"
	tokenCRLF    = "\r\n"
	maxTokenRead = 64
)

// SelfPipe is a pipe whose write end a signal handler can write a short
// token into, and whose read end the poll loop treats as one more
// pollable fd.
type SelfPipe struct {
	readFd  int
	writeFd int
	framer  framer
}

// framer is the minimal slice of wire.Framer's interface pollset needs,
// redeclared here so pollset does not import internal/wire.
type framer interface {
	Feed(data []byte) ([]string, error)
}

// frameBuffer is a tiny CRLF-token scanner so pollset doesn't have to
// import internal/wire for something this small.
type frameBuffer struct {
	buf []byte
}

func (f *frameBuffer) Feed(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)
	var tokens []string
	for {
		idx := strings.Index(string(f.buf), tokenCRLF)
		if idx == -1 {
			break
		}
		tokens = append(tokens, string(f.buf[:idx]))
		f.buf = f.buf[idx+2:]
	}
	return tokens, nil
}

// NewSelfPipe creates the pipe and puts the write end into non-blocking
// mode (so a signal handler writing under pressure drops the token rather
// than blocking the OS thread handling the signal).
func NewSelfPipe() (*SelfPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, errors.Wrap(err, "pipe2")
	}

	if err := unix.SetNonblock(fds[0], true); err != nil {
		return nil, errors.Wrap(err, "set read end non-blocking")
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return nil, errors.Wrap(err, "set write end non-blocking")
	}

	return &SelfPipe{readFd: fds[0], writeFd: fds[1], framer: &frameBuffer{}}, nil
}

// ReadFd is the fd to register with a PollSet.
func (s *SelfPipe) ReadFd() int { return s.readFd }

// Close closes both ends of the pipe.
func (s *SelfPipe) Close() error {
	err1 := unix.Close(s.readFd)
	err2 := unix.Close(s.writeFd)
	if err1 != nil {
		return err1
	}
	return err2
}

// Notify writes a token to the pipe. It is intentionally trivial so it
// remains safe to call from a signal handler: it only calls write(2),
// again after a short write, and silently drops the notification if the pipe is
// momentarily full (the poll loop will still wake on the next signal, and
// System.Timer-driven ticks cover routine housekeeping).
func (s *SelfPipe) Notify(token string) {
	msg := []byte(token + tokenCRLF)
	for len(msg) > 0 {
		n, err := unix.Write(s.writeFd, msg)
		if err != nil {
			return
		}
		msg = msg[n:]
	}
}

// Drain reads whatever is available and returns the complete tokens
// found. Call this when the poll loop sees the self-pipe's read end is
// ready.
func (s *SelfPipe) Drain() ([]string, error) {
	buf := make([]byte, maxTokenRead)

	var tokens []string
	for {
		n, ok, err := Read(s.readFd, buf)
		if err != nil {
			return tokens, err
		}
		if !ok || n == 0 {
			break
		}

		found, _ := s.framer.Feed(buf[:n])
		tokens = append(tokens, found...)
	}

	return tokens, nil
}
