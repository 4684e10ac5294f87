package wire

import "github.com/pkg/errors"

// MaxBufferLength is the largest an unterminated input buffer may grow to
// before we consider the peer malformed and reset it.
const MaxBufferLength = 512

// ErrBufferOverflow is returned by Feed when the buffer fills without ever
// seeing a CRLF. The caller should log a warning and keep the connection;
// Feed has already reset the buffer so reading can continue.
var ErrBufferOverflow = errors.New("input buffer overflowed without a terminator")

// Framer extracts CRLF-terminated frames from a stream of bytes appended
// one read at a time. It is the per-connection input buffer: bytes
// accumulate until a full frame is seen, the frame is extracted, and the
// buffer is shifted.
//
// A Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	buf []byte
}

// Feed appends data to the buffer and extracts every complete frame found.
// Frames are returned without their terminator. If the buffer would exceed
// MaxBufferLength without completing a frame, it is reset to empty and
// ErrBufferOverflow is returned alongside whatever complete frames were
// found before the overflow.
func (f *Framer) Feed(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)

	var frames []string
	for {
		idx := indexCRLF(f.buf)
		if idx == -1 {
			break
		}

		frames = append(frames, string(f.buf[:idx]))
		f.buf = f.buf[idx+2:]
	}

	if len(f.buf) > MaxBufferLength {
		f.buf = nil
		return frames, ErrBufferOverflow
	}

	return frames, nil
}

// Pending returns the bytes held in the buffer that have not yet formed a
// complete frame: feeding "A\r\nB" extracts "A" and leaves "B" pending.
func (f *Framer) Pending() string {
	return string(f.buf)
}

// indexCRLF finds the first "\r\n" in buf, or -1 if there is none.
func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}
