package passthrough

import (
	"bytes"
	"strings"
	"testing"

	"github.com/micronext/upy-shell/internal/boardsim"
)

func TestStripOneShot(t *testing.T) {
	stripped, ok := StripOneShot("ls ~/flash~")
	if !ok || stripped != "ls ~/flash" {
		t.Fatalf("got %q, %v", stripped, ok)
	}
	if _, ok := StripOneShot("ls ~/flash"); ok {
		t.Fatal("expected no one-shot trigger without trailing ~")
	}
	if _, ok := StripOneShot("~"); ok {
		t.Fatal("expected a bare ~ not to trigger one-shot with an empty command")
	}
}

func TestRunEchoesAndTranslatesNewlineThenExits(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := board.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			if _, err := board.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	in := strings.NewReader("ab\ncd" + string(rune(ExitKey)))
	var out bytes.Buffer
	if err := Run(client, in, &out, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "\rab\rcd" // leading provoke CR, "ab", \n translated to \r, "cd"; ExitKey never forwarded
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestRunReturnsOnInputEOF(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := board.Read(buf); err != nil {
				return
			}
		}
	}()

	var out bytes.Buffer
	if err := Run(client, strings.NewReader(""), &out, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunOneShotSendsLineAndExitsAfterIdle(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()

	go func() {
		var got bytes.Buffer
		buf := make([]byte, 1)
		for {
			n, err := board.Read(buf)
			if err != nil {
				return
			}
			if n > 0 {
				got.WriteByte(buf[0])
			}
			if strings.HasSuffix(got.String(), "ls\r") {
				board.Write([]byte("file1\r\nfile2\r\n"))
				return
			}
		}
	}()

	var out bytes.Buffer
	if err := Run(client, strings.NewReader(""), &out, "ls"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "file1") || !strings.Contains(out.String(), "file2") {
		t.Fatalf("got %q", out.String())
	}
}
