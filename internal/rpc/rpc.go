// Package rpc is the remote-call facility: it builds a
// self-contained source fragment from a procs catalogue entry plus
// argument values, ships it over a rawrepl.Channel, optionally runs a
// file-transfer coroutine alongside execution, and parses the captured
// stdout back into a Go value.
package rpc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/micronext/upy-shell/internal/rawrepl"
	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/rpc/literal"
	"github.com/micronext/upy-shell/internal/transport"
)

// TimeOffset is the constant number of seconds between the board epoch
// (2000-01-01) and the host epoch (1970-01-01).
const TimeOffset = 946684800

// Caps is the subset of a device's probed capabilities the facility needs
// to pick HAS_BUFFER/chunk mode when building a code blob.
type Caps struct {
	HasBinaryStdio bool
	HasUnhexlify   bool
}

// XferFunc runs a file-transfer coroutine against the channel's transport
// while the shipped procedure sits mid-execution on the board. It is invoked between ExecNoFollow and Follow.
type XferFunc func(t transport.Transport) error

// Facility serializes every remote call for one device behind a single
// mutex: at most one in-flight call per device, ever.
type Facility struct {
	mu        sync.Mutex
	ch        *rawrepl.Channel
	caps      Caps
	ChunkSize int
	Timeout   time.Duration
}

// New builds a Facility over an already-connected raw-REPL channel.
// chunkSize is the file-transfer BUFFER_SIZE substituted into procedure
// source; timeout bounds every Enter/ExecNoFollow/Follow/Exit round trip.
func New(ch *rawrepl.Channel, caps Caps, chunkSize int, timeout time.Duration) *Facility {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Facility{ch: ch, caps: caps, ChunkSize: chunkSize, Timeout: timeout}
}

// Call ships procSrc (one procs.* catalogue entry) invoking procName with
// args, optionally running xfer while the call is in flight, and returns
// the board's captured stdout verbatim.
func (f *Facility) Call(procSrc, procName string, args []any, xfer XferFunc) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob := f.buildBlob(procSrc, procName, args)

	if err := f.ch.Enter(f.Timeout); err != nil {
		return "", err
	}
	if err := f.ch.ExecNoFollow([]byte(blob), f.Timeout); err != nil {
		f.ch.ForceFriendly()
		return "", err
	}
	if xfer != nil {
		if err := xfer(f.ch.Transport()); err != nil {
			f.ch.ForceFriendly()
			return "", err
		}
	}
	stdout, _, err := f.ch.Follow(f.Timeout)
	if err != nil && !errIsRemoteException(err) {
		f.ch.ForceFriendly()
		return "", err
	}
	if exitErr := f.ch.Exit(); exitErr != nil && err == nil {
		return string(stdout), exitErr
	}
	return string(stdout), err
}

// CallEval is Call plus parsing the returned text as a Python-style
// literal.
func (f *Facility) CallEval(procSrc, procName string, args []any, xfer XferFunc) (any, error) {
	out, err := f.Call(procSrc, procName, args, xfer)
	if err != nil {
		return nil, err
	}
	out = strings.TrimRight(out, "\r\n")
	if out == "" {
		return nil, nil
	}
	v, perr := literal.Parse(out)
	if perr != nil {
		return nil, rerr.New(rerr.KindProtocolError, "unparsable result from board: "+out, perr)
	}
	return v, nil
}

func errIsRemoteException(err error) bool {
	return err != nil && rerr.KindOf(err) == rerr.KindRemoteException
}

// buildBlob assembles the code fragment: the
// procedure source, an assignment capturing its result, a conditional
// print, then placeholder substitution.
func (f *Facility) buildBlob(procSrc, procName string, args []any) string {
	var argStrs []string
	for _, a := range args {
		argStrs = append(argStrs, remoteRepr(a))
	}
	var b strings.Builder
	b.WriteString(procSrc)
	b.WriteString("output = ")
	b.WriteString(procName)
	b.WriteByte('(')
	b.WriteString(strings.Join(argStrs, ", "))
	b.WriteString(")\n")
	b.WriteString("if output is not None:\n    print(output)\n")

	blob := b.String()
	blob = strings.ReplaceAll(blob, "TIME_OFFSET", strconv.Itoa(TimeOffset))
	blob = strings.ReplaceAll(blob, "HAS_BUFFER", boolLiteral(f.caps.HasBinaryStdio))
	blob = strings.ReplaceAll(blob, "BUFFER_SIZE", strconv.Itoa(f.ChunkSize))
	blob = strings.ReplaceAll(blob, "IS_UPY", "True")
	return blob
}

func boolLiteral(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// RawArg is an argument whose text is already valid Python literal syntax
// (e.g. a pre-built RTC tuple for set_time) and is shipped verbatim instead
// of going through remoteRepr's primitive-only encoding.
type RawArg string

// remoteRepr serializes a Go value the way rshell.py's remote_repr does:
// faithfully for primitives that round-trip through Python literal syntax,
// and as None for anything else.
func remoteRepr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case RawArg:
		return string(x)
	case bool:
		return boolLiteral(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return pyQuote(x)
	case []byte:
		return pyQuote(string(x))
	default:
		return "None"
	}
}

func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('\'')
	return b.String()
}
