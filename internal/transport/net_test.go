package transport

import (
	"net"
	"testing"
	"time"

	"github.com/micronext/upy-shell/internal/rerr"
)

// serveLogin accepts one connection on ln and drives a board-side login
// handshake: prompt, read a \r-terminated line, prompt again, read another
// line, then either the friendly banner (on ok) or silence (on !ok).
func serveLogin(t *testing.T, ln net.Listener, wantUser, wantPassword string, ok bool) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	conn.Write([]byte("Login as:"))
	user, err := readLine(conn)
	if err != nil {
		t.Errorf("reading username: %v", err)
		return
	}
	if user != wantUser {
		t.Errorf("got user %q, want %q", user, wantUser)
	}

	conn.Write([]byte("Password:"))
	password, err := readLine(conn)
	if err != nil {
		t.Errorf("reading password: %v", err)
		return
	}
	if password != wantPassword {
		t.Errorf("got password %q, want %q", password, wantPassword)
	}

	if ok {
		conn.Write([]byte("\r\nWelcome\r\n>>> "))
	}
	// On failure, send nothing more, wait briefly, then close: the client's
	// expect sees the connection close before its login-timeout deadline.
	time.Sleep(50 * time.Millisecond)
}

func readLine(conn net.Conn) (string, error) {
	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			line = append(line, buf[:n]...)
			if idx := indexByte(line, '\r'); idx >= 0 {
				return string(line[:idx]), nil
			}
		}
		if err != nil {
			return "", err
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func TestDialNetSuccessfulLogin(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go serveLogin(t, ln, "alice", "secret", true)

	tr, err := DialNet(ln.Addr().String(), &NetOptions{
		User:         "alice",
		Password:     "secret",
		LoginTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("DialNet: %v", err)
	}
	defer tr.Close()
}

func TestDialNetDefaultsUserAndPassword(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go serveLogin(t, ln, "micro", "python", true)

	tr, err := DialNet(ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("DialNet: %v", err)
	}
	defer tr.Close()
}

func TestDialNetFailsWithoutFriendlyPrompt(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go serveLogin(t, ln, "alice", "wrong", false)

	_, err = DialNet(ln.Addr().String(), &NetOptions{
		User:         "alice",
		Password:     "wrong",
		LoginTimeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected login failure")
	}
	if rerr.KindOf(err) != rerr.KindProtocolError && rerr.KindOf(err) != rerr.KindTransportClosed {
		t.Fatalf("got %v", err)
	}
}

func TestDialNetUnreachableAddrFails(t *testing.T) {
	_, err := DialNet("127.0.0.1:1", &NetOptions{LoginTimeout: 300 * time.Millisecond})
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if rerr.KindOf(err) != rerr.KindTransportClosed {
		t.Fatalf("got %v", err)
	}
}

func TestNetTransportWriteReadAfterLogin(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverDone := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("Login as:"))
		readLine(conn)
		conn.Write([]byte("Password:"))
		readLine(conn)
		conn.Write([]byte(">>> "))
		serverDone <- conn
	}()

	tr, err := DialNet(ln.Addr().String(), &NetOptions{LoginTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("DialNet: %v", err)
	}
	defer tr.Close()

	conn := <-serverDone
	defer conn.Close()

	if _, err := tr.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := conn.Read(buf); err != nil || string(buf) != "ping" {
		t.Fatalf("server got %q, %v", buf, err)
	}

	conn.Write([]byte("pong"))
	tr.SetTimeout(time.Second, false)
	got, err := tr.Read(4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "pong" {
		t.Fatalf("got %q", got)
	}
}

func TestNetTransportReadTimeoutReturnsEmptyNoError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("Login as:"))
		readLine(conn)
		conn.Write([]byte("Password:"))
		readLine(conn)
		conn.Write([]byte(">>> "))
		time.Sleep(500 * time.Millisecond)
	}()

	tr, err := DialNet(ln.Addr().String(), &NetOptions{LoginTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("DialNet: %v", err)
	}
	defer tr.Close()

	tr.SetTimeout(20*time.Millisecond, false)
	got, err := tr.Read(4)
	if err != nil {
		t.Fatalf("expected nil error on timeout, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty read on timeout, got %q", got)
	}
}
