// Package device ties one board's transport, raw-REPL channel, and
// remote-call facility into Device: a connected endpoint
// with a unique display name, a mount prefix, probed capabilities, and the
// vfs.Device operations the virtual filesystem namespace dispatches to.
package device

import (
	"fmt"
	"io"
	"time"

	"github.com/micronext/upy-shell/internal/rawrepl"
	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/rlog"
	"github.com/micronext/upy-shell/internal/rpc"
	"github.com/micronext/upy-shell/internal/rpc/literal"
	"github.com/micronext/upy-shell/internal/rpc/procs"
	"github.com/micronext/upy-shell/internal/transport"
	"github.com/micronext/upy-shell/internal/vfs"
	"github.com/micronext/upy-shell/internal/xfer"
)

// Status is a Device's connection state.
type Status int

const (
	Connected Status = iota
	Closed
)

// Capabilities are the two booleans probed at connect.
type Capabilities struct {
	HasBinaryStdio bool
	HasHexDecode   bool
}

// Device is one attached board: short_name, display_name, name_path,
// root_dirs, capabilities and status, plus the channel/facility needed to
// actually talk to it.
type Device struct {
	ShortName   string
	DisplayName string
	NamePath    string
	RootDirs    []string
	Caps        Capabilities
	status      Status

	t    transport.Transport
	ch   *rawrepl.Channel
	call *rpc.Facility
	log  rlog.Logger
}

// Options configures Connect.
type Options struct {
	ShortName string
	ChunkSize int
	Timeout   time.Duration
	Log       rlog.Logger
}

// Connect probes an already-open transport (freshly dialed by
// transport.OpenSerial/DialNet) and returns a ready Device: it enters and
// exits raw mode three times to probe board_name, test_buffer and
// test_unhexlify, then lists the root directory to seed RootDirs. Fails
// with CapabilityError if neither binary stdio nor hex decode is available
//.
func Connect(t transport.Transport, opts Options) (*Device, error) {
	log := opts.Log
	if log == nil {
		log = rlog.Discard
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ch := rawrepl.New(t)
	d := &Device{
		ShortName: opts.ShortName,
		t:         t,
		ch:        ch,
		log:       log,
	}
	d.call = rpc.New(ch, rpc.Caps{}, opts.ChunkSize, timeout)

	hasBuffer, err := d.callBool(procs.TestBuffer, "test_buffer")
	if err != nil {
		return nil, err
	}
	hasHex, err := d.callBool(procs.TestUnhexlify, "test_unhexlify")
	if err != nil {
		return nil, err
	}
	if !hasBuffer && !hasHex {
		return nil, rerr.New(rerr.KindCapabilityError, "board supports neither binary stdio nor hex decode", nil)
	}
	d.Caps = Capabilities{HasBinaryStdio: hasBuffer, HasHexDecode: hasHex}
	d.call = rpc.New(ch, rpc.Caps{HasBinaryStdio: hasBuffer, HasUnhexlify: hasHex}, opts.ChunkSize, timeout)

	name, err := d.call.CallEval(procs.BoardName, "board_name", nil, nil)
	if err != nil {
		return nil, err
	}
	baseName, _ := name.(string)
	if baseName == "" {
		baseName = "pyboard"
	}
	d.DisplayName = baseName

	entries, err := d.List("/")
	if err != nil {
		log.Warnf("device %s: could not list root: %v", d.ShortName, err)
	} else {
		for _, e := range entries {
			if e.Stat.IsDir() {
				d.RootDirs = append(d.RootDirs, "/"+e.Name+"/")
			}
		}
	}
	d.status = Connected
	return d, nil
}

// SetDisplayName is used by the registry when a collision demands a
// monotonic "-N" suffix be appended; it also recomputes NamePath.
func (d *Device) SetDisplayName(name string) {
	d.DisplayName = name
	d.NamePath = "/" + name + "/"
}

// NewDirect builds a Device around an already-open transport without
// running Connect's capability probe, for callers (registry collision
// tests, device fixtures) that need a plugged-in Device without a real or
// simulated board handshake.
func NewDirect(t transport.Transport, shortName, displayName string) *Device {
	d := &Device{ShortName: shortName, t: t, status: Connected}
	d.SetDisplayName(displayName)
	return d
}

// Status reports whether the device is still usable.
func (d *Device) Status() Status { return d.status }

// Close releases the transport; subsequent operations fail with
// TransportClosed.
func (d *Device) Close() error {
	if d.status == Closed {
		return nil
	}
	d.status = Closed
	return d.t.Close()
}

func (d *Device) guard() error {
	if d.status == Closed {
		return rerr.TransportClosed
	}
	return nil
}

func (d *Device) callBool(procSrc, name string) (bool, error) {
	v, err := d.call.CallEval(procSrc, name, nil, nil)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// Stat implements vfs.Device.
func (d *Device) Stat(path string) (vfs.Stat, error) {
	if err := d.guard(); err != nil {
		return vfs.Stat{}, err
	}
	v, err := d.call.CallEval(procs.GetStat, "get_stat", []any{path}, nil)
	if err != nil {
		return vfs.Stat{}, err
	}
	return tupleToStat(v)
}

// Exists reports whether path names anything on the board, without paying
// for a full stat tuple.
func (d *Device) Exists(path string) (bool, error) {
	if err := d.guard(); err != nil {
		return false, err
	}
	v, err := d.call.CallEval(procs.GetMode, "get_mode", []any{path}, nil)
	if err != nil {
		return false, err
	}
	mode, _ := v.(int64)
	return mode&vfs.ModeExists != 0, nil
}

func tupleToStat(v any) (vfs.Stat, error) {
	tup, ok := v.(literal.Tuple)
	if !ok {
		return vfs.Stat{}, rerr.New(rerr.KindProtocolError, "get_stat: unexpected result shape", nil)
	}
	fields := make([]int64, 0, len(tup))
	for _, f := range tup {
		n, ok := f.(int64)
		if !ok {
			return vfs.Stat{}, rerr.New(rerr.KindProtocolError, "get_stat: non-integer field", nil)
		}
		fields = append(fields, n)
	}
	return vfs.StatFromTuple(fields), nil
}

// List implements vfs.Device.
func (d *Device) List(dir string) ([]vfs.DirEntry, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	v, err := d.call.CallEval(procs.ListdirStat, "listdir_stat", []any{dir}, nil)
	if err != nil {
		return nil, err
	}
	tup, ok := v.(literal.Tuple)
	if !ok {
		return nil, rerr.New(rerr.KindProtocolError, "listdir_stat: unexpected result shape", nil)
	}
	out := make([]vfs.DirEntry, 0, len(tup))
	for _, entry := range tup {
		pair, ok := entry.(literal.Tuple)
		if !ok || len(pair) != 2 {
			return nil, rerr.New(rerr.KindProtocolError, "listdir_stat: malformed entry", nil)
		}
		name, _ := pair[0].(string)
		st, err := tupleToStat(pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, vfs.DirEntry{Name: name, Stat: st})
	}
	return out, nil
}

// Mkdir implements vfs.Device.
func (d *Device) Mkdir(path string) error {
	if err := d.guard(); err != nil {
		return err
	}
	v, err := d.call.CallEval(procs.Mkdir, "make_directory", []any{path}, nil)
	if err != nil {
		return err
	}
	if b, _ := v.(bool); !b {
		return rerr.New(rerr.KindUsageError, "mkdir failed: "+path, nil)
	}
	return nil
}

// Remove implements vfs.Device.
func (d *Device) Remove(path string, recursive, force bool) error {
	if err := d.guard(); err != nil {
		return err
	}
	v, err := d.call.CallEval(procs.Remove, "remove_file", []any{path, recursive, force}, nil)
	if err != nil {
		return err
	}
	if b, _ := v.(bool); !b {
		return rerr.New(rerr.KindUsageError, "remove failed: "+path, nil)
	}
	return nil
}

// Rename implements vfs.Device.
func (d *Device) Rename(oldPath, newPath string) error {
	if err := d.guard(); err != nil {
		return err
	}
	v, err := d.call.CallEval(procs.Rename, "rename_file", []any{oldPath, newPath}, nil)
	if err != nil {
		return err
	}
	if b, _ := v.(bool); !b {
		return rerr.New(rerr.KindUsageError, "rename failed: "+oldPath, nil)
	}
	return nil
}

// CopyLocal implements vfs.Device: it copies src to dst without a round
// trip through the host, for cp between two paths on the same board.
func (d *Device) CopyLocal(src, dst string) error {
	if err := d.guard(); err != nil {
		return err
	}
	v, err := d.call.CallEval(procs.CopyFile, "copy_file", []any{src, dst}, nil)
	if err != nil {
		return err
	}
	if b, _ := v.(bool); !b {
		return rerr.New(rerr.KindUsageError, "copy failed: "+src, nil)
	}
	return nil
}

// SendFile implements vfs.Device: it ships recv_file_from_host and runs
// the host-to-board xfer coroutine alongside it.
func (d *Device) SendFile(path string, r io.Reader, size int64) error {
	if err := d.guard(); err != nil {
		return err
	}
	mode := xfer.Binary
	if !d.Caps.HasBinaryStdio {
		mode = xfer.Hex
	}
	args := []any{path, size}
	_, err := d.call.Call(procs.RecvFileFromHost, "recv_file_from_host", args, func(t transport.Transport) error {
		return xfer.SendToBoard(t, r, size, d.call.ChunkSize, mode, nil)
	})
	return err
}

// RecvFile implements vfs.Device: it ships send_file_to_host and runs the
// board-to-host xfer coroutine alongside it.
func (d *Device) RecvFile(path string, w io.Writer) (int64, error) {
	if err := d.guard(); err != nil {
		return 0, err
	}
	size, err := d.call.CallEval(procs.GetFilesize, "get_filesize", []any{path}, nil)
	if err != nil {
		return 0, err
	}
	n, _ := size.(int64)
	if n < 0 {
		return 0, rerr.New(rerr.KindUsageError, "file not found: "+path, nil)
	}
	mode := xfer.Binary
	if !d.Caps.HasBinaryStdio {
		mode = xfer.Hex
	}
	args := []any{path, n}
	_, err = d.call.Call(procs.SendFileToHost, "send_file_to_host", args, func(t transport.Transport) error {
		return xfer.RecvFromBoard(t, w, n, d.call.ChunkSize, mode)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetTime pushes the host's current time to the board's RTC in the
// pyb.RTC().datetime(...) tuple layout: (year, month, day, weekday, hour,
// minute, second, subsecond).
func (d *Device) SetTime(now time.Time) error {
	if err := d.guard(); err != nil {
		return err
	}
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	tup := fmt.Sprintf("(%d, %d, %d, %d, %d, %d, %d, 0)",
		now.Year(), int(now.Month()), now.Day(), weekday,
		now.Hour(), now.Minute(), now.Second())
	_, err := d.call.Call(procs.SetTime, "set_time", []any{rpc.RawArg(tup)}, nil)
	return err
}
