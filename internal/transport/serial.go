package transport

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/serial"
)

// SerialOptions configures a serial Transport.
type SerialOptions struct {
	// Baud is the line rate; 0 leaves the port at whatever rate it already has.
	Baud uint32
	// Wait, if true, polls for the device node to appear before opening it.
	Wait bool
	// WaitPoll is the poll interval used by Wait and by the post-open probe
	// retry loop. Defaults to 500ms, matching rshell's time.sleep(0.5).
	WaitPoll time.Duration
	// Progress is called once per retry tick while waiting for the node to
	// appear or for the initial probe write to succeed, so a caller can
	// print a dotted progress indicator. Nil is silent.
	Progress func()
}

func (o *SerialOptions) poll() time.Duration {
	if o == nil || o.WaitPoll <= 0 {
		return 500 * time.Millisecond
	}
	return o.WaitPoll
}

func (o *SerialOptions) tick() {
	if o != nil && o.Progress != nil {
		o.Progress()
	}
}

// serialTransport adapts internal/serial.Port to the Transport interface.
type serialTransport struct {
	port *serial.Port
}

// OpenSerial opens a serial port at the given path, optionally waiting for
// the device node to appear, then probes it with a single interrupt byte
// (0x03) so slow USB/BT enumeration doesn't return a half-ready port.
func OpenSerial(path string, opts *SerialOptions) (Transport, error) {
	if opts == nil {
		opts = &SerialOptions{}
	}
	if opts.Wait {
		for {
			if err := unix.Access(path, unix.F_OK); err == nil {
				break
			}
			opts.tick()
			time.Sleep(opts.poll())
		}
	}

	portOpts := serial.NewOptions()
	fd, err := serial.Open(path, portOpts)
	if err != nil {
		return nil, rerr.Newf(rerr.KindTransportClosed, err, "open %s", path)
	}
	if err := fd.MakeRaw(); err != nil {
		fd.Close()
		return nil, rerr.Newf(rerr.KindTransportClosed, err, "set raw mode on %s", path)
	}
	if opts.Baud != 0 {
		if err := setBaud(fd, opts.Baud); err != nil {
			fd.Close()
			return nil, rerr.Newf(rerr.KindTransportClosed, err, "set baud on %s", path)
		}
	}

	// Bluetooth/slow-USB-CDC devices accept an open() before the remote
	// endpoint is really listening; writes fail until it catches up. Retry
	// the probe byte until one succeeds, exactly as rshell's
	// DeviceSerial.__init__ does with its b'\x03' write loop.
	for {
		if _, err := fd.Write([]byte{0x03}); err == nil {
			break
		}
		opts.tick()
		time.Sleep(opts.poll())
	}

	return &serialTransport{port: fd}, nil
}

func setBaud(p *serial.Port, baud uint32) error {
	attrs, err := p.GetAttr2()
	if err != nil {
		return err
	}
	attrs.SetCustomSpeed(baud)
	return p.SetAttr2(serial.TCSANOW, attrs)
}

func (t *serialTransport) Write(data []byte) (int, error) {
	n, err := writeAll(t.port.Write, data)
	if err != nil {
		t.port.Close()
		return n, rerr.Newf(rerr.KindTransportClosed, err, "serial write")
	}
	return n, nil
}

func (t *serialTransport) Read(max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := t.port.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		t.port.Close()
		return nil, rerr.Newf(rerr.KindTransportClosed, err, "serial read")
	}
	return buf[:n], nil
}

func (t *serialTransport) SetTimeout(d time.Duration, blockForever bool) {
	if blockForever {
		t.port.SetReadTimeout(-1)
		return
	}
	t.port.SetReadTimeout(d)
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
