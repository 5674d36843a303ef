package vfs

import (
	"io"
	"os"

	"github.com/micronext/upy-shell/internal/rerr"
)

// Device is the facet of a registered device the VFS operations need. A
// concrete Device (internal/device) implements this by delegating to its
// remote-call facility; it never appears in this package's own types so
// device can depend on vfs without a cycle.
type Device interface {
	Stat(path string) (Stat, error)
	List(dir string) ([]DirEntry, error)
	Mkdir(path string) error
	Remove(path string, recursive, force bool) error
	Rename(oldPath, newPath string) error
	CopyLocal(src, dst string) error
	SendFile(path string, r io.Reader, size int64) error
	RecvFile(path string, w io.Writer) (int64, error)
}

// DirEntry is one entry of a device or host directory listing.
type DirEntry struct {
	Name string
	Stat Stat
}

// Side names which half of a cp/mv operation a Resolution fell on.
type Side struct {
	Device Device // nil means host
	Path   string
}

// Cp copies the file at src to dst, picking the same-side, host↔device,
// or device-to-device strategy.
func Cp(src, dst Side) error {
	if src.Device == nil && dst.Device == nil {
		return cpHostToHost(src.Path, dst.Path)
	}
	if src.Device == dst.Device && src.Device != nil {
		return cpSameDevice(src.Device, src.Path, dst.Path)
	}
	if src.Device == nil {
		return cpHostToDevice(src.Path, dst)
	}
	if dst.Device == nil {
		return cpDeviceToHost(src, dst.Path)
	}
	return cpDeviceToDevice(src, dst)
}

func cpHostToHost(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return rerr.Newf(rerr.KindUsageError, err, "open %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return rerr.Newf(rerr.KindUsageError, err, "create %s", dst)
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// cpSameDevice asks the device to copy src to dst in place, the same way
// rshell.py's copy_file runs on the board via remote_eval: a genuine copy,
// source left untouched, with no host round trip.
func cpSameDevice(d Device, src, dst string) error {
	return d.CopyLocal(src, dst)
}

func cpHostToDevice(src string, dst Side) error {
	f, err := os.Open(src)
	if err != nil {
		return rerr.Newf(rerr.KindUsageError, err, "open %s", src)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return dst.Device.SendFile(dst.Path, f, info.Size())
}

func cpDeviceToHost(src Side, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return rerr.Newf(rerr.KindUsageError, err, "create %s", dst)
	}
	defer f.Close()
	_, err = src.Device.RecvFile(src.Path, f)
	return err
}

// cpDeviceToDevice stages through an anonymous host temp file.
func cpDeviceToDevice(src, dst Side) error {
	tmp, err := os.CreateTemp("", "rshell-xfer-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := src.Device.RecvFile(src.Path, tmp); err != nil {
		tmp.Close()
		return err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return err
	}
	if err := dst.Device.SendFile(dst.Path, tmp, size); err != nil {
		tmp.Close()
		return err
	}
	return tmp.Close()
}

// StatSide resolves side and returns its Stat, using os.Stat's host
// counterpart when side.Device is nil.
func StatSide(side Side) (Stat, error) {
	if side.Device == nil {
		fi, err := os.Stat(side.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return Stat{}, nil
			}
			return Stat{}, err
		}
		mode := int64(ModeFile)
		if fi.IsDir() {
			mode = ModeDir
		}
		return Stat{Mode: mode, Size: fi.Size(), Mtime: fi.ModTime().Unix()}, nil
	}
	return side.Device.Stat(side.Path)
}

// List lists a directory, host or device.
func List(side Side) ([]DirEntry, error) {
	if side.Device == nil {
		entries, err := os.ReadDir(side.Path)
		if err != nil {
			return nil, err
		}
		out := make([]DirEntry, 0, len(entries))
		for _, e := range entries {
			fi, err := e.Info()
			if err != nil {
				continue
			}
			mode := int64(ModeFile)
			if fi.IsDir() {
				mode = ModeDir
			}
			out = append(out, DirEntry{Name: e.Name(), Stat: Stat{Mode: mode, Size: fi.Size(), Mtime: fi.ModTime().Unix()}})
		}
		return out, nil
	}
	return side.Device.List(side.Path)
}

// Mkdir creates one directory, host or device.
func Mkdir(side Side) error {
	if side.Device == nil {
		if err := os.Mkdir(side.Path, 0o777); err != nil {
			return rerr.Newf(rerr.KindUsageError, err, "mkdir %s", side.Path)
		}
		return nil
	}
	return side.Device.Mkdir(side.Path)
}

// Remove deletes a file or, when recursive, a directory tree, host or
// device, tolerating individual failures when force is set.
func Remove(side Side, recursive, force bool) error {
	if side.Device == nil {
		var err error
		if recursive {
			err = os.RemoveAll(side.Path)
		} else {
			err = os.Remove(side.Path)
		}
		if err != nil && !force {
			return rerr.Newf(rerr.KindUsageError, err, "remove %s", side.Path)
		}
		return nil
	}
	return side.Device.Remove(side.Path, recursive, force)
}

// Rename renames a path in place; both sides must be the same side (host
// or the same device) since it has no transfer-based fallback.
func Rename(side Side, newPath string) error {
	if side.Device == nil {
		return os.Rename(side.Path, newPath)
	}
	return side.Device.Rename(side.Path, newPath)
}
