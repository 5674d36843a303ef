package serial

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// tcgets2/tcsets2 are the only termios ioctls this driver issues: get/set
// the full termios2 struct (arbitrary baud via c_ispeed/c_ospeed). The rest
// of the original ioctl table (RS485, modem lines, line breaks, pty/winsize
// ioctls) has no caller anywhere in this module and was dropped; see
// DESIGN.md.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))
)
