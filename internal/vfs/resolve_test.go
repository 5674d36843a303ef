package vfs

import "testing"

func TestResolveHostRelative(t *testing.T) {
	res, err := Resolve("foo/bar", "/home/user", "/home/user", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Device != "" || res.Path != "/home/user/foo/bar" {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveTilde(t *testing.T) {
	res, err := Resolve("~/foo", "/somewhere", "/home/user", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Device != "" || res.Path != "/home/user/foo" {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveBareTilde(t *testing.T) {
	res, err := Resolve("~", "/somewhere", "/home/user", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Path != "/home/user" {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveDotDotNeverPopsRoot(t *testing.T) {
	res, err := Resolve("/a/../../b", "/", "/home/user", nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Path != "/b" {
		t.Fatalf("got %q", res.Path)
	}
}

func TestResolveEmptyPathFails(t *testing.T) {
	if _, err := Resolve("", "/", "/home/user", nil, nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestResolveDefaultDeviceRootDirs(t *testing.T) {
	def := &Mount{Name: "pyboard", NamePath: "/pyboard/", RootDirs: []string{"/flash/"}}
	res, err := Resolve("/flash/main.py", "/", "/home/user", def, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Device != "pyboard" {
		t.Fatalf("expected default device routing, got %+v", res)
	}
}

func TestResolveNamedMountPrefix(t *testing.T) {
	mounts := []Mount{{Name: "pyboard-2", NamePath: "/pyboard-2/"}}
	res, err := Resolve("/pyboard-2/lib/foo.py", "/", "/home/user", nil, mounts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Device != "pyboard-2" || res.Path != "/lib/foo.py" {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveNamedMountBareRoot(t *testing.T) {
	mounts := []Mount{{Name: "pyboard", NamePath: "/pyboard/"}}
	res, err := Resolve("/pyboard", "/", "/home/user", nil, mounts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Device != "pyboard" || res.Path != "/" {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveFallsThroughToHost(t *testing.T) {
	mounts := []Mount{{Name: "pyboard", NamePath: "/pyboard/"}}
	res, err := Resolve("/etc/hosts", "/", "/home/user", nil, mounts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Device != "" || res.Path != "/etc/hosts" {
		t.Fatalf("got %+v", res)
	}
}

// Resolving an already-normalized absolute path twice must be idempotent:
// feeding Resolve's own output back in as cwd-relative-to-root should yield
// the same Resolution.
func TestResolveIdempotent(t *testing.T) {
	mounts := []Mount{{Name: "pyboard", NamePath: "/pyboard/"}}
	first, err := Resolve("/pyboard/a/./b/../c", "/", "/home/user", nil, mounts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := Resolve("/pyboard"+first.Path, "/", "/home/user", nil, mounts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Fatalf("not idempotent: %+v vs %+v", first, second)
	}
}
