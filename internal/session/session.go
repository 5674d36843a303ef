// Package session ties the device driver's pieces (registry, vfs, device)
// into the process-wide Session value that replaces rshell.py's module
// globals. It is the outermost layer of the core: the external
// command interpreter calls through it, never at registry/vfs directly,
// so cwd and the default device stay consistent across commands.
package session

import (
	"os"
	"strconv"
	"time"

	"github.com/micronext/upy-shell/internal/device"
	"github.com/micronext/upy-shell/internal/registry"
	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/rlog"
	"github.com/micronext/upy-shell/internal/transport"
	"github.com/micronext/upy-shell/internal/vfs"
)

// Default process-wide configuration.
const (
	DefaultChunkSize = 512
	DefaultBaud      = 115200
	DefaultUser      = "micro"
	DefaultPassword  = "python"
)

// Session holds the process-wide mutable state a command-line interpreter
// threads explicitly through every operation, instead of rshell.py's
// module-level cur_dir/DEBUG/BUFFER_SIZE globals.
type Session struct {
	CWD       string
	Debug     bool
	ChunkSize int
	Registry  *registry.Registry
}

// NewSession builds a Session seeded from RSHELL_* environment variables
//, matching rshell.py's os.getenv(...) calls at connect time.
// No config library is pulled in for five scalar env vars read once at
// startup; see DESIGN.md.
func NewSession() *Session {
	home, _ := os.UserHomeDir()
	return &Session{
		CWD:       home,
		ChunkSize: envInt("RSHELL_BUFFER_SIZE", DefaultChunkSize),
		Registry:  registry.New(),
	}
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// EnvBaud, EnvPort, EnvUser and EnvPassword read the remaining RSHELL_*
// connect-time defaults; unlike ChunkSize these aren't part of
// Session because they only matter once, at Connect, not on every
// operation.
func EnvBaud() uint32 {
	v := os.Getenv("RSHELL_BAUD")
	if v == "" {
		return DefaultBaud
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return DefaultBaud
	}
	return uint32(n)
}

func EnvPort() string { return os.Getenv("RSHELL_PORT") }

func EnvUser() string {
	if v := os.Getenv("RSHELL_USER"); v != "" {
		return v
	}
	return DefaultUser
}

func EnvPassword() string {
	if v := os.Getenv("RSHELL_PASSWORD"); v != "" {
		return v
	}
	return DefaultPassword
}

// ConnectSerial opens a serial transport and probes it into a registered
// Device, the sequence a "connect" command-layer verb drives: open, probe
// capabilities, add to the registry under the collision-safe display name.
func (s *Session) ConnectSerial(shortName string, opts *transport.SerialOptions, log rlog.Logger) (*device.Device, error) {
	t, err := transport.OpenSerial(shortName, opts)
	if err != nil {
		return nil, err
	}
	return s.connect(t, shortName, log)
}

// ConnectNet dials a TCP board and performs its login handshake before
// probing capabilities, mirroring ConnectSerial for the network transport
// variant.
func (s *Session) ConnectNet(addr string, opts *transport.NetOptions, log rlog.Logger) (*device.Device, error) {
	t, err := transport.DialNet(addr, opts)
	if err != nil {
		return nil, err
	}
	return s.connect(t, addr, log)
}

func (s *Session) connect(t transport.Transport, shortName string, log rlog.Logger) (*device.Device, error) {
	d, err := device.Connect(t, device.Options{
		ShortName: shortName,
		ChunkSize: s.ChunkSize,
		Timeout:   10 * time.Second,
		Log:       log,
	})
	if err != nil {
		t.Close()
		return nil, err
	}
	s.Registry.Add(d)
	return d, nil
}

// Resolve runs the VFS path-resolution algorithm against the
// Session's current directory and registry snapshot, then returns a
// vfs.Side ready for vfs.Cp/Stat/List/Mkdir/Remove/Rename: Device is nil
// for a host path, or the resolved device otherwise.
func (s *Session) Resolve(path string) (vfs.Side, error) {
	home, _ := os.UserHomeDir()
	defMount, mounts := s.Registry.Mounts()
	res, err := vfs.Resolve(path, s.CWD, home, defMount, mounts)
	if err != nil {
		return vfs.Side{}, err
	}
	if res.Device == "" {
		return vfs.Side{Path: res.Path}, nil
	}
	d, err := s.Registry.VFSDevice(res.Device)
	if err != nil {
		return vfs.Side{}, rerr.New(rerr.KindResolutionError, "resolved to vanished device "+res.Device, err)
	}
	return vfs.Side{Device: d, Path: res.Path}, nil
}

// Chdir resolves path and, if it names a directory, updates CWD. Host
// paths update CWD to the normalized host path; device paths update CWD to
// the device's mount-prefixed form so a subsequent relative path resolves
// against the same device.
func (s *Session) Chdir(path string) error {
	home, _ := os.UserHomeDir()
	defMount, mounts := s.Registry.Mounts()
	res, err := vfs.Resolve(path, s.CWD, home, defMount, mounts)
	if err != nil {
		return err
	}
	if res.Device == "" {
		fi, err := os.Stat(res.Path)
		if err != nil {
			return rerr.Newf(rerr.KindUsageError, err, "chdir %s", path)
		}
		if !fi.IsDir() {
			return rerr.New(rerr.KindUsageError, "not a directory: "+path, nil)
		}
		s.CWD = res.Path
		return nil
	}
	d, err := s.Registry.VFSDevice(res.Device)
	if err != nil {
		return err
	}
	st, err := d.Stat(res.Path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return rerr.New(rerr.KindUsageError, "not a directory: "+path, nil)
	}
	if defMount != nil && defMount.Name == res.Device {
		s.CWD = res.Path
	} else {
		s.CWD = "/" + res.Device + res.Path
	}
	return nil
}

// Cp resolves src and dst and dispatches to vfs.Cp's same-side /
// host<->device / device-to-device strategy.
func (s *Session) Cp(src, dst string) error {
	srcSide, err := s.Resolve(src)
	if err != nil {
		return err
	}
	dstSide, err := s.Resolve(dst)
	if err != nil {
		return err
	}
	return vfs.Cp(srcSide, dstSide)
}

// Stat, List, Mkdir, Remove and Rename resolve path(s) and dispatch to the
// matching vfs operation, the Session-level surface the command
// interpreter's do_ls/do_mkdir/do_rm/do_mv verbs call.
func (s *Session) Stat(path string) (vfs.Stat, error) {
	side, err := s.Resolve(path)
	if err != nil {
		return vfs.Stat{}, err
	}
	return vfs.StatSide(side)
}

func (s *Session) List(path string) ([]vfs.DirEntry, error) {
	side, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return vfs.List(side)
}

func (s *Session) Mkdir(path string) error {
	side, err := s.Resolve(path)
	if err != nil {
		return err
	}
	return vfs.Mkdir(side)
}

func (s *Session) Remove(path string, recursive, force bool) error {
	side, err := s.Resolve(path)
	if err != nil {
		return err
	}
	return vfs.Remove(side, recursive, force)
}

func (s *Session) Rename(path, newPath string) error {
	side, err := s.Resolve(path)
	if err != nil {
		return err
	}
	dstSide, err := s.Resolve(newPath)
	if err != nil {
		return err
	}
	if side.Device != dstSide.Device {
		return rerr.New(rerr.KindUsageError, "rename must stay on the same side", nil)
	}
	return vfs.Rename(side, dstSide.Path)
}
