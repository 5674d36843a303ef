package transport

import (
	"bytes"
	"net"
	"time"

	"github.com/micronext/upy-shell/internal/rerr"
)

// NetOptions configures a TCP Transport that performs a telnet-like login.
type NetOptions struct {
	User     string
	Password string
	// LoginTimeout bounds how long the handshake waits for each prompt.
	LoginTimeout time.Duration
}

const (
	loginPrompt    = "Login as:"
	passwordPrompt = "Password:"
	// friendlyPrompt is the board's normal-mode prompt; its appearance after
	// credentials are submitted is what defines handshake success.
	friendlyPrompt = ">>> "
)

// netTransport adapts a net.Conn to the Transport interface.
type netTransport struct {
	conn    net.Conn
	timeout time.Duration
	forever bool
}

// DialNet connects to addr:23 (or addr as given, if it already has a port)
// and performs the board's username/password handshake.
func DialNet(addr string, opts *NetOptions) (Transport, error) {
	if opts == nil {
		opts = &NetOptions{}
	}
	user := opts.User
	if user == "" {
		user = "micro"
	}
	password := opts.Password
	if password == "" {
		password = "python"
	}
	loginTimeout := opts.LoginTimeout
	if loginTimeout <= 0 {
		loginTimeout = 10 * time.Second
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "23")
	}
	conn, err := net.DialTimeout("tcp", addr, loginTimeout)
	if err != nil {
		return nil, rerr.Newf(rerr.KindTransportClosed, err, "dial %s", addr)
	}
	t := &netTransport{conn: conn, timeout: loginTimeout}

	if err := t.expect(loginPrompt, loginTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := t.Write([]byte(user + "\r")); err != nil {
		conn.Close()
		return nil, err
	}
	if err := t.expect(passwordPrompt, loginTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := t.Write([]byte(password + "\r")); err != nil {
		conn.Close()
		return nil, err
	}
	if err := t.expect(friendlyPrompt, loginTimeout); err != nil {
		conn.Close()
		return nil, rerr.New(rerr.KindProtocolError, "login handshake failed", err)
	}
	return t, nil
}

// expect reads until seen is found in the accumulated stream or the
// deadline passes.
func (t *netTransport) expect(seen string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var buf bytes.Buffer
	chunk := make([]byte, 256)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return rerr.New(rerr.KindProtocolError, "timed out waiting for "+seen, nil)
		}
		t.conn.SetReadDeadline(time.Now().Add(remaining))
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if bytes.Contains(buf.Bytes(), []byte(seen)) {
				return nil
			}
		}
		if err != nil {
			return rerr.New(rerr.KindTransportClosed, "connection closed during login", err)
		}
	}
}

func (t *netTransport) Write(data []byte) (int, error) {
	n, err := writeAll(t.conn.Write, data)
	if err != nil {
		t.conn.Close()
		return n, rerr.Newf(rerr.KindTransportClosed, err, "net write")
	}
	return n, nil
}

func (t *netTransport) Read(max int) ([]byte, error) {
	if t.forever {
		t.conn.SetReadDeadline(time.Time{})
	} else {
		t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	}
	buf := make([]byte, max)
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		t.conn.Close()
		return nil, rerr.Newf(rerr.KindTransportClosed, err, "net read")
	}
	return buf[:n], nil
}

func (t *netTransport) SetTimeout(d time.Duration, blockForever bool) {
	t.forever = blockForever
	if !blockForever {
		t.timeout = d
	}
}

func (t *netTransport) Close() error {
	return t.conn.Close()
}
