// Package boardsim is an in-memory, net.Pipe-backed stand-in for a real
// board's byte stream. It lets rawrepl/rpc/xfer/device tests drive the
// wire protocol end to end without serial hardware, playing the board's
// half of the conversation from a small scripted responder.
package boardsim

import (
	"io"
	"net"
	"time"

	"github.com/micronext/upy-shell/internal/rerr"
)

// rawBanner must match rawrepl's own unexported constant byte for byte;
// it is the fixed string a real board prints after CTRL-A.
const rawBanner = "raw REPL; CTRL-B to exit\r\n>"

// Pair returns two ends of an in-memory pipe: client satisfies
// transport.Transport for the code under test; board is the raw net.Conn a
// test's scripted responder reads and writes to play the board's part.
func Pair() (client *Transport, board net.Conn) {
	a, b := net.Pipe()
	return &Transport{conn: a}, b
}

// Transport adapts one end of a net.Pipe to transport.Transport, mirroring
// internal/transport's own netTransport adapter.
type Transport struct {
	conn    net.Conn
	timeout time.Duration
	forever bool
}

func (t *Transport) Write(data []byte) (int, error) {
	n, err := t.conn.Write(data)
	if err != nil {
		return n, rerr.New(rerr.KindTransportClosed, "boardsim write", err)
	}
	return n, nil
}

func (t *Transport) Read(max int) ([]byte, error) {
	if t.forever {
		t.conn.SetReadDeadline(time.Time{})
	} else {
		d := t.timeout
		if d <= 0 {
			d = 5 * time.Second
		}
		t.conn.SetReadDeadline(time.Now().Add(d))
	}
	buf := make([]byte, max)
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, rerr.New(rerr.KindTransportClosed, "boardsim read", err)
	}
	return buf[:n], nil
}

func (t *Transport) SetTimeout(d time.Duration, forever bool) {
	t.forever = forever
	if !forever {
		t.timeout = d
	}
}

func (t *Transport) Close() error { return t.conn.Close() }

// ReadUntil reads one byte at a time from conn until delim is seen,
// returning everything read before it.
func ReadUntil(conn net.Conn, delim byte) ([]byte, error) {
	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := conn.Read(b)
		if err != nil {
			return buf, err
		}
		if n == 0 {
			continue
		}
		if b[0] == delim {
			return buf, nil
		}
		buf = append(buf, b[0])
	}
}

func readN(conn net.Conn, n int) error {
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	return err
}

// Responder is called once per shipped code blob with its full source text
// and returns the stdout/stderr text the simulated board "prints" back.
type Responder func(blob string) (stdout, stderr string)

// Run plays the board's side of a raw-REPL conversation on conn for as many
// Enter/ExecNoFollow/Follow/Exit cycles as the peer performs, calling resp
// for each shipped blob. It returns once conn is closed by the peer.
//
// It does not model a mid-flight file-transfer side conversation; tests
// that need one (SendFile/RecvFile) drive conn directly instead of calling
// Run.
func Run(conn net.Conn, resp Responder) {
	for {
		if err := readN(conn, 3); err != nil { // CTRL-C CTRL-C CTRL-A
			return
		}
		if _, err := conn.Write([]byte(rawBanner)); err != nil {
			return
		}

		blob, err := ReadUntil(conn, 0x04) // source, up to end-of-text
		if err != nil {
			return
		}
		if _, err := conn.Write([]byte("OK")); err != nil {
			return
		}

		stdout, stderr := resp(string(blob))

		if _, err := conn.Write(append([]byte(stdout), 0x04)); err != nil {
			return
		}
		if _, err := conn.Write(append([]byte(stderr), 0x04)); err != nil {
			return
		}
		if _, err := conn.Write([]byte(">")); err != nil {
			return
		}

		if err := readN(conn, 1); err != nil { // CTRL-B
			return
		}
	}
}
