// Package transport implements byte-oriented transports for the 7K stream
// parser: a TCP socket with per-call read/write deadlines, and a seekable
// file, both satisfying the same ByteStream contract (spec component A,
// "Byte transport").
package transport

import (
	"io"
	"net"
	"os"
	"time"
)

// ByteStream is the synchronous, deadline-aware byte transport the stream
// parser reads from and the control channel writes to. It is narrower than
// gsf.Stream: a live socket has no Seek.
type ByteStream interface {
	// ReadTimeout reads up to len(p) bytes, blocking no longer than timeout
	// (0 means no deadline). It returns (0, err) on timeout, EOF, or a
	// closed peer; a short, non-empty read is not an error.
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ErrTimeout is returned by ReadTimeout when the deadline elapses before any
// bytes arrive.
var ErrTimeout = os.ErrDeadlineExceeded

// TCPTransport wraps a net.Conn (normally already dialed to a 7K data
// center) as a ByteStream, translating the caller's per-call timeout into a
// connection read deadline the way r7kr_reader_poll drives msock_read_tmout
// in the original C reader.
type TCPTransport struct {
	conn net.Conn
}

// DialTCP connects to addr (host:port) and returns it wrapped as a
// ByteStream.
func DialTCP(addr string, dialTimeout time.Duration) (*TCPTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &TCPTransport{conn: conn}, nil
}

// NewTCPTransport wraps an already-established connection.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

// DialUDP connects a UDP socket to addr (host:port) and returns it wrapped
// as a ByteStream. A dialed net.UDPConn exposes the same deadline-aware
// Read/Write shape as a TCP conn, so it needs no dedicated wrapper type.
func DialUDP(addr string) (*TCPTransport, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPTransport{conn: conn}, nil
}

// ReadTimeout implements ByteStream.
func (t *TCPTransport) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	} else {
		if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
			return 0, err
		}
	}
	return t.conn.Read(p)
}

// Write implements ByteStream.
func (t *TCPTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// Close implements ByteStream.
func (t *TCPTransport) Close() error {
	return t.conn.Close()
}

// FileTransport wraps an *os.File (a recorded .s7k or .7k capture opened in
// DRF_STREAM or NET_STREAM mode) as a ByteStream. Reads never block past
// EOF, so the timeout argument is ignored; it exists only to satisfy
// ByteStream for the replay engine, which drives C against captures the
// same way it drives a live socket.
type FileTransport struct {
	f *os.File
}

// OpenFileTransport opens path read-only for sequential frame replay.
func OpenFileTransport(path string) (*FileTransport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileTransport{f: f}, nil
}

// NewFileTransport wraps an already-open file.
func NewFileTransport(f *os.File) *FileTransport {
	return &FileTransport{f: f}
}

// ReadTimeout implements ByteStream; an *os.File has no deadline notion, so
// a read simply runs to completion or EOF.
func (t *FileTransport) ReadTimeout(p []byte, _ time.Duration) (int, error) {
	n, err := t.f.Read(p)
	if err == io.EOF {
		return n, io.EOF
	}
	return n, err
}

// Write implements ByteStream.
func (t *FileTransport) Write(p []byte) (int, error) {
	return t.f.Write(p)
}

// Close implements ByteStream.
func (t *FileTransport) Close() error {
	return t.f.Close()
}
