package serial

import (
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Termios2 is the Linux termios2 struct (TCGETS2/TCSETS2), used in place
// of the older termios/TCGETS so arbitrary baud rates can be set through
// c_ispeed/c_ospeed rather than the fixed CBAUD encoding a plain Termios
// is limited to.
type Termios2 struct {
	Iflag  IFlag      /* input mode flags */
	Oflag  OFlag      /* output mode flags */
	Cflag  CFlag      /* control mode flags */
	Lflag  LFlag      /* local mode flags */
	Line   Discipline /* line discipline */
	Cc     [19]byte   /* control characters */
	ISpeed uint32     /* input speed */
	OSpeed uint32     /* output speed */
}

type IFlag uint32

// Input flags (only the bits MakeRaw touches).
const (
	IGNBRK = IFlag(0000001)
	BRKINT = IFlag(0000002)
	PARMRK = IFlag(0000010)
	ISTRIP = IFlag(0000040)
	INLCR  = IFlag(0000100)
	IGNCR  = IFlag(0000200)
	ICRNL  = IFlag(0000400)
	IXON   = IFlag(0002000)
)

type OFlag uint32

// OPOST is the only output flag MakeRaw needs to clear.
const OPOST = OFlag(0000001)

type CFlag uint32

// Control flags: the baud mask/BOTHER plus the character-size and parity
// bits MakeRaw and SetCustomSpeed touch.
const (
	CBAUD  = CFlag(0010017)
	CSIZE  = CFlag(0000060)
	CS8    = CFlag(0000060)
	PARENB = CFlag(0000400)
	BOTHER = CFlag(0010000)
)

type LFlag uint32

// Local flags MakeRaw clears to get a non-canonical, non-echoing line
// discipline — the host-side precondition for talking the board's
// raw-REPL byte protocol without the tty driver intercepting control
// characters.
const (
	ISIG   = LFlag(0000001)
	ICANON = LFlag(0000002)
	ECHO   = LFlag(0000010)
	ECHONL = LFlag(0000100)
	IEXTEN = LFlag(0100000)
)

// Discipline is the tty line discipline field; this driver never changes
// it from the kernel default (N_TTY).
type Discipline byte

// Action selects when a termios change takes effect (TCSETS2 and
// friends); the driver only ever uses TCSANOW.
type Action int

const (
	TCSANOW = Action(iota)
	TCSADRAIN
	TCSAFLUSH
)

// Options configures Open: the read timeout (-1 blocks forever) and the
// open(2) flags (O_NOCTTY so the board's byte stream never becomes this
// process's controlling terminal and starts delivering job-control
// signals on hangup).
type Options struct {
	ReadTimeout time.Duration
	OpenMode    int
}

func NewOptions() *Options {
	return &Options{ReadTimeout: -1, OpenMode: syscall.O_RDWR | syscall.O_NOCTTY}
}

func (o *Options) SetReadTimeout(timeout time.Duration) *Options {
	o.ReadTimeout = timeout
	return o
}

// Port is an open serial device node. All methods are safe to call from
// one goroutine at a time; the device driver's per-Device mutex is what
// actually serializes access.
type Port struct {
	options *Options
	closed  atomic.Bool
	f       int
}

func Open(name string, opts *Options) (*Port, error) {
	if opts == nil {
		opts = NewOptions()
	}
	fd, err := syscall.Open(name, opts.OpenMode, 0)
	if err != nil {
		return nil, wrapErr("open "+name, err)
	}
	return &Port{
		options: opts,
		f:       fd,
	}, nil
}

func (p *Port) Write(data []byte) (n int, err error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err = syscall.Write(p.f, data)
	if err != nil {
		return n, wrapErr("write", err)
	}
	return n, nil
}

func (p *Port) readTimeout(data []byte, timeout time.Duration) (int, error) {
	if err := poll.WaitInput(p.f, timeout); err != nil {
		return 0, wrapErr("wait for input", err)
	}
	n, err := syscall.Read(p.f, data)
	if err != nil {
		return n, wrapErr("read", err)
	}
	return n, nil
}

func (p *Port) Read(data []byte) (n int, err error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if p.options.ReadTimeout > -1 {
		return p.readTimeout(data, p.options.ReadTimeout)
	}
	n, err = syscall.Read(p.f, data)
	if err != nil {
		return n, wrapErr("read", err)
	}
	return n, nil
}

func (p *Port) ReadTimeout(data []byte, timeout time.Duration) (n int, err error) {
	return p.readTimeout(data, timeout)
}

func (p *Port) SetReadTimeout(timeout time.Duration) {
	p.options.ReadTimeout = timeout
}

func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.f
}

func (p *Port) Close() error {
	if !p.closed.Swap(true) {
		fd := p.f
		p.f = -1
		if err := syscall.Close(fd); err != nil {
			return wrapErr("close", err)
		}
		return nil
	}
	return ErrClosed
}

func (p *Port) GetAttr2() (*Termios2, error) {
	attrs := &Termios2{}
	err := ioctl.Ioctl(uintptr(p.f), tcgets2, uintptr(unsafe.Pointer(attrs)))
	if err != nil {
		return nil, wrapErr("get termios2", err)
	}
	return attrs, nil
}

func (p *Port) SetAttr2(when Action, attrs *Termios2) error {
	if err := ioctl.Ioctl(uintptr(p.f), tcsets2+uintptr(when), uintptr(unsafe.Pointer(attrs))); err != nil {
		return wrapErr("set termios2", err)
	}
	return nil
}

// MakeRaw puts the port into non-canonical, non-echoing, 8-bit-clean mode
// and applies it immediately. Every OpenSerial call does this before
// probing the board.
func (p *Port) MakeRaw() error {
	attrs, err := p.GetAttr2()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	return p.SetAttr2(TCSANOW, attrs)
}

func (attrs *Termios2) MakeRaw() {
	attrs.Iflag &= ^(IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON)
	attrs.Oflag &= ^(OPOST)
	attrs.Lflag &= ^(ECHO | ECHONL | ICANON | ISIG | IEXTEN)
	attrs.Cflag &= ^(CSIZE | PARENB)
	attrs.Cflag |= CS8
}

func (attrs *Termios2) SetCustomIOSpeed(iSpeed, oSpeed uint32) {
	attrs.Cflag &= ^(CBAUD)
	attrs.Cflag |= BOTHER
	attrs.ISpeed = iSpeed
	attrs.OSpeed = oSpeed
}

func (attrs *Termios2) SetCustomSpeed(speed uint32) {
	attrs.SetCustomIOSpeed(speed, speed)
}
