// Package vfs implements the virtual filesystem namespace: a
// path resolution algorithm that routes an absolute path to either the
// host filesystem or one registered device, plus the cp/ls/mkdir/rm/rename
// operations built on top of that routing.
package vfs

import "time"

// Bit layout of a Stat's Mode field.
const (
	ModeDir    = 0x4000
	ModeFile   = 0x8000
	ModeExists = 0xc000
)

// TimeOffset is the board-to-host epoch shift in seconds:
// 2000-01-01 UTC minus 1970-01-01 UTC.
const TimeOffset = 946684800

// Stat is the 10-field positional stat tuple shared with the board
//: (mode, ino, dev, nlink, uid, gid, size, atime, mtime, ctime).
type Stat struct {
	Mode  int64
	Ino   int64
	Dev   int64
	Nlink int64
	Uid   int64
	Gid   int64
	Size  int64
	Atime int64
	Mtime int64
	Ctime int64
}

// StatFromTuple builds a Stat from a parsed literal.Tuple of 10 integers,
// the shape get_stat and listdir_stat's per-entry stat return on the wire.
func StatFromTuple(fields []int64) Stat {
	var s Stat
	vals := [10]*int64{&s.Mode, &s.Ino, &s.Dev, &s.Nlink, &s.Uid, &s.Gid, &s.Size, &s.Atime, &s.Mtime, &s.Ctime}
	for i, v := range fields {
		if i >= len(vals) {
			break
		}
		*vals[i] = v
	}
	return s
}

// IsDir reports whether the directory bit is set.
func (s Stat) IsDir() bool { return s.Mode&ModeDir != 0 }

// IsRegular reports whether the regular-file bit is set.
func (s Stat) IsRegular() bool { return s.Mode&ModeFile != 0 }

// Exists reports whether either type bit is set.
func (s Stat) Exists() bool { return s.Mode&ModeExists != 0 }

// BoardToHost shifts a board-epoch timestamp (seconds since 2000-01-01) to
// a host time.Time.
func BoardToHost(boardSeconds int64) time.Time {
	return time.Unix(boardSeconds+TimeOffset, 0).UTC()
}

// HostToBoard is the inverse of BoardToHost.
func HostToBoard(t time.Time) int64 {
	return t.Unix() - TimeOffset
}
