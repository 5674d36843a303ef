// Package rawrepl drives a board's interpreter between friendly (echoing,
// prompt-driven) and raw (one-shot, non-echoing) modes over a
// transport.Transport, and ships/collects one code block per raw-mode visit
//.
package rawrepl

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/transport"
)

// Control bytes of the wire protocol.
const (
	Interrupt  = 0x03
	EnterRaw   = 0x01
	ExitRawB   = 0x02
	EndOfText  = 0x04
	Ack        = 0x06
	rawBanner  = "raw REPL; CTRL-B to exit\r\n>"
	acceptedOK = "OK"
)

// State is one step of the per-device raw-REPL session.
type State int

const (
	Friendly State = iota
	RawEntering
	RawReady
	Executing
	Following
	RawExiting
	Closed
)

func (s State) String() string {
	switch s {
	case Friendly:
		return "friendly"
	case RawEntering:
		return "raw-entering"
	case RawReady:
		return "raw-ready"
	case Executing:
		return "executing"
	case Following:
		return "following"
	case RawExiting:
		return "raw-exiting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is the strictly-sequential raw-REPL state machine for one device.
// It holds no lock of its own: callers (the per-device remote-call facility)
// serialize access with their own mutex.
type Channel struct {
	t     transport.Transport
	state State
	// Debug selects whether an out-of-state call panics (development) or
	// returns a ProtocolError (release).
	Debug bool
}

// New wraps a transport in a fresh Channel, starting in Friendly state.
func New(t transport.Transport) *Channel {
	return &Channel{t: t, state: Friendly}
}

// State reports the channel's current state.
func (c *Channel) State() State { return c.state }

func (c *Channel) violate(op string) error {
	err := rerr.Newf(rerr.KindProtocolError, nil, "%s: channel in state %s", op, c.state)
	if c.Debug {
		panic(err)
	}
	return err
}

// markClosed transitions to Closed; every subsequent call fails.
func (c *Channel) markClosed() {
	c.state = Closed
}

// Enter issues Ctrl-C Ctrl-C Ctrl-A and waits for the raw-mode banner.
// Re-entry from Friendly is always legal.
func (c *Channel) Enter(timeout time.Duration) error {
	if c.state == Closed {
		return rerr.TransportClosed
	}
	if c.state != Friendly {
		return c.violate("Enter")
	}
	c.state = RawEntering
	if _, err := c.t.Write([]byte{Interrupt, Interrupt, EnterRaw}); err != nil {
		c.markClosed()
		return err
	}
	if err := c.expect(rawBanner, timeout); err != nil {
		c.state = Friendly
		return rerr.New(rerr.KindProtocolError, "raw-mode banner not seen", err)
	}
	c.state = RawReady
	return nil
}

// ExecNoFollow writes the source bytes, then end-of-text, and waits for the
// two-byte "OK" acceptance indicator. Transitions to Executing.
func (c *Channel) ExecNoFollow(source []byte, timeout time.Duration) error {
	if c.state == Closed {
		return rerr.TransportClosed
	}
	if c.state != RawReady {
		return c.violate("ExecNoFollow")
	}
	if _, err := c.t.Write(source); err != nil {
		c.markClosed()
		return err
	}
	if _, err := c.t.Write([]byte{EndOfText}); err != nil {
		c.markClosed()
		return err
	}
	if err := c.expect(acceptedOK, timeout); err != nil {
		c.state = Friendly
		return rerr.New(rerr.KindProtocolError, "board did not accept code block", err)
	}
	c.state = Executing
	return nil
}

// Follow reads until the end-of-text sentinel that ends normal output, then
// reads the error channel until the raw prompt returns. If stderr is
// non-empty the call fails with RemoteException, but the channel still
// returns to RawReady so Exit can run.
func (c *Channel) Follow(timeout time.Duration) (stdout, stderr []byte, err error) {
	if c.state == Closed {
		return nil, nil, rerr.TransportClosed
	}
	if c.state != Executing {
		return nil, nil, c.violate("Follow")
	}
	c.state = Following
	deadline := time.Now().Add(timeout)

	stdout, err = c.readUntil(EndOfText, deadline)
	if err != nil {
		return nil, nil, c.failFollow(err)
	}
	stderr, err = c.readUntil(EndOfText, deadline)
	if err != nil {
		return nil, nil, c.failFollow(err)
	}
	// Board emits ">" to signal return to the raw prompt.
	if _, err := c.readExact(1, deadline); err != nil {
		return nil, nil, c.failFollow(err)
	}
	c.state = RawReady
	if len(stderr) > 0 {
		return stdout, stderr, rerr.New(rerr.KindRemoteException, string(stderr), nil)
	}
	return stdout, stderr, nil
}

// failFollow classifies a Follow-loop failure: a genuine transport error
// closes the channel; a deadline expiry is a protocol error and leaves the
// channel in Friendly so the caller can still try to recover the device.
func (c *Channel) failFollow(err error) error {
	if errors.Is(err, rerr.TransportClosed) {
		c.markClosed()
		return err
	}
	c.state = Friendly
	return rerr.New(rerr.KindProtocolError, "follow: incomplete output from board", err)
}

// Exit sends Ctrl-B and returns to Friendly.
func (c *Channel) Exit() error {
	if c.state == Closed {
		return rerr.TransportClosed
	}
	if c.state != RawReady {
		return c.violate("Exit")
	}
	c.state = RawExiting
	if _, err := c.t.Write([]byte{ExitRawB}); err != nil {
		c.markClosed()
		return err
	}
	c.state = Friendly
	return nil
}

// ForceFriendly is used by error paths that must guarantee the channel
// never leaves a remote call mid-flight on the wire: it always ends in
// Friendly (or Closed) state, even after a protocol error.
func (c *Channel) ForceFriendly() {
	if c.state == Closed {
		return
	}
	if c.state == RawReady {
		c.t.Write([]byte{ExitRawB})
	}
	c.state = Friendly
}

func (c *Channel) expect(want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var buf bytes.Buffer
	for {
		if bytes.Contains(buf.Bytes(), []byte(want)) {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("timed out waiting for %q, got %q", want, buf.String())
		}
		c.t.SetTimeout(remaining, false)
		chunk, err := c.t.Read(256)
		if err != nil {
			return err
		}
		buf.Write(chunk)
	}
}

// readUntil reads bytes up to (not including) the first occurrence of end,
// one byte at a time since the sentinel can appear anywhere in the stream.
func (c *Channel) readUntil(end byte, deadline time.Time) ([]byte, error) {
	var buf bytes.Buffer
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out reading output")
		}
		c.t.SetTimeout(remaining, false)
		b, err := c.t.Read(1)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			continue
		}
		if b[0] == end {
			return buf.Bytes(), nil
		}
		buf.WriteByte(b[0])
	}
}

func (c *Channel) readExact(n int, deadline time.Time) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out reading %d bytes", n)
		}
		c.t.SetTimeout(remaining, false)
		b, err := c.t.Read(n - len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Transport exposes the underlying transport so a supplementary protocol
// (the file-transfer sub-protocol) can run a side conversation
// while the channel sits in Executing state, in between ExecNoFollow and
// Follow.
func (c *Channel) Transport() transport.Transport { return c.t }
