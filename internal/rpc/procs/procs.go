// Package procs holds the catalogue of board-side procedure bodies that the
// remote-call facility ships to the interpreter one at a time.
// Each constant is a self-contained MicroPython function: it imports
// whatever it needs and never calls a sibling in this package, because only
// the one function's source text crosses the wire. Three tokens are
// replaced before shipping: TIME_OFFSET, HAS_BUFFER and IS_UPY; BUFFER_SIZE is substituted the same way wherever a procedure
// needs the negotiated chunk size baked into its loop bounds.
package procs

// GetStat stats a path, shifting the three MicroPython-epoch timestamps in
// the result back onto the host epoch when IS_UPY is true. Mirrors
// rshell.py's get_stat.
const GetStat = `def get_stat(filename):
    import os
    try:
        rstat = os.stat(filename)
    except OSError:
        return (0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
    if IS_UPY:
        return rstat[:7] + tuple(t + TIME_OFFSET for t in rstat[7:])
    return rstat
`

// ListdirStat pairs every entry of a directory with its GetStat tuple in
// one round trip, avoiding one call per file. Mirrors rshell.py's
// listdir_stat.
const ListdirStat = `def listdir_stat(dirname):
    import os
    def stat(filename):
        try:
            rstat = os.stat(filename)
        except OSError:
            return (0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
        if IS_UPY:
            return rstat[:7] + tuple(t + TIME_OFFSET for t in rstat[7:])
        return rstat
    if dirname == '/':
        prefix = '/'
    else:
        prefix = dirname + '/'
    return tuple((name, stat(prefix + name)) for name in os.listdir(dirname))
`

// GetFilesize returns a file's size, or -1 if it doesn't exist. Kept
// independent of GetStat since it ships alone ahead of a transfer. Mirrors
// rshell.py's get_filesize.
const GetFilesize = `def get_filesize(filename):
    import os
    try:
        return os.stat(filename)[6]
    except OSError:
        return -1
`

// GetMode returns a file's raw os.stat mode word, or 0 if it doesn't exist.
// Mirrors rshell.py's get_mode.
const GetMode = `def get_mode(filename):
    import os
    try:
        return os.stat(filename)[0]
    except OSError:
        return 0
`

// Mkdir creates one directory, reporting success as a bool rather than
// raising. Mirrors rshell.py's make_directory.
const Mkdir = `def make_directory(dirname):
    import os
    try:
        os.mkdir(dirname)
    except OSError:
        return False
    return True
`

// Remove deletes a file, or a directory tree when recursive is set,
// tolerating individual failures when force is set. Mirrors rshell.py's
// remove_file.
const Remove = `def remove_file(filename, recursive=False, force=False):
    import os
    try:
        mode = os.stat(filename)[0]
        if mode & 0x4000 != 0:
            if recursive:
                for entry in os.listdir(filename):
                    ok = remove_file(filename + '/' + entry, recursive, force)
                    if not ok and not force:
                        return False
            os.rmdir(filename)
        else:
            os.remove(filename)
    except OSError:
        if not force:
            return False
    return True
`

// Rename renames a path in place on the board. Not present in the original
// rshell.py — its cross-device moves always funnel through cp+rm — but
// same-device rename is cheap and every board MicroPython ships os.rename,
// so it earns its own procedure rather than a copy-then-delete round trip.
const Rename = `def rename_file(old, new):
    import os
    try:
        os.rename(old, new)
    except OSError:
        return False
    return True
`

// BoardName reports board.name if the firmware defines it, else a generic
// fallback. Mirrors rshell.py's board_name; used once per connect to build
// the device's display name.
const BoardName = `def board_name():
    try:
        import board
        name = board.name
    except ImportError:
        name = 'pyboard'
    return repr(name)
`

// SetTime pushes the host's wall clock to the board's RTC, in the
// MicroPython pyb.RTC().datetime(...) tuple layout. Mirrors rshell.py's
// set_time.
const SetTime = `def set_time(rtc_time):
    import pyb
    pyb.RTC().datetime(rtc_time)
`

// TestBuffer reports whether sys.stdin.buffer exists, which gates whether
// the transfer sub-protocol can use raw binary mode. Mirrors rshell.py's
// test_buffer.
const TestBuffer = `def test_buffer():
    import sys
    try:
        sys.stdin.buffer
        return True
    except AttributeError:
        return False
`

// TestUnhexlify reports whether ubinascii.unhexlify exists, the fallback
// path used when TestBuffer is false. Mirrors rshell.py's test_unhexlify.
const TestUnhexlify = `def test_unhexlify():
    try:
        import ubinascii
        ubinascii.unhexlify
        return True
    except (ImportError, AttributeError):
        return False
`

// RecvFileFromHost runs on the board during a host-to-board transfer: it
// reads filesize bytes off stdin (raw if HAS_BUFFER, else hex-decoded) in
// BUFFER_SIZE-sized chunks, ACKing each one on stdout. Mirrors rshell.py's
// recv_file_from_host.
const RecvFileFromHost = `def recv_file_from_host(dst_filename, filesize):
    import sys
    try:
        import pyb
        usb = pyb.USB_VCP()
        if HAS_BUFFER and usb.isconnected():
            usb.setinterrupt(-1)
    except ImportError:
        pass
    try:
        with open(dst_filename, 'wb') as dst_file:
            remaining = filesize
            if not HAS_BUFFER:
                remaining *= 2
            buf_size = BUFFER_SIZE
            write_buf = bytearray(buf_size)
            while remaining > 0:
                read_size = min(remaining, buf_size)
                got = 0
                while got < read_size:
                    if HAS_BUFFER:
                        n = sys.stdin.buffer.readinto(write_buf, read_size - got)
                    else:
                        n = sys.stdin.readinto(write_buf, read_size - got)
                    if n:
                        got += n
                if HAS_BUFFER:
                    dst_file.write(write_buf[0:read_size])
                else:
                    import ubinascii
                    dst_file.write(ubinascii.unhexlify(write_buf[0:read_size]))
                sys.stdout.write('\x06')
                remaining -= read_size
        return True
    except OSError:
        return False
`

// SendFileToHost runs on the board during a board-to-host transfer: it
// writes filesize bytes of src_filename to stdout (raw or hex-encoded) in
// BUFFER_SIZE chunks, waiting for a 0x06 ack after each one. Mirrors
// rshell.py's send_file_to_host.
const SendFileToHost = `def send_file_to_host(src_filename, filesize):
    import sys
    try:
        with open(src_filename, 'rb') as src_file:
            remaining = filesize
            if HAS_BUFFER:
                buf_size = BUFFER_SIZE
            else:
                buf_size = BUFFER_SIZE // 2
            while remaining > 0:
                read_size = min(remaining, buf_size)
                buf = src_file.read(read_size)
                if HAS_BUFFER:
                    sys.stdout.buffer.write(buf)
                else:
                    import ubinascii
                    sys.stdout.write(ubinascii.hexlify(buf))
                remaining -= read_size
                while True:
                    ch = sys.stdin.read(1)
                    if ch == '\x06':
                        break
        return True
    except OSError:
        return False
`

// CopyFile copies src to dst entirely on the board, so a same-device cp
// never round-trips the file through the host. Mirrors rshell.py's
// copy_file, which runs the same way via remote_eval.
const CopyFile = `def copy_file(src_filename, dst_filename):
    import os
    try:
        with open(src_filename, 'rb') as src_file:
            with open(dst_filename, 'wb') as dst_file:
                buf_size = BUFFER_SIZE
                while True:
                    buf = src_file.read(buf_size)
                    if not buf:
                        break
                    dst_file.write(buf)
        return True
    except OSError:
        return False
`
