package vfs

import (
	"strings"

	"github.com/micronext/upy-shell/internal/rerr"
)

// Mount is the routing-relevant slice of a registered device: its mount
// prefix and, for the default device only, the set of top-level
// directories it claims even without the prefix.
type Mount struct {
	Name     string   // display_name, used as the resolution's Device field
	NamePath string   // "/" + display_name + "/"
	RootDirs []string // each already formatted "/foo/"
}

// Resolution is the result of resolving a VFS path: Device == "" means the
// host filesystem; otherwise Device names the owning Mount and Path is
// relative to that device's own root.
type Resolution struct {
	Device string
	Path   string
}

// Resolve implements the path resolution algorithm: expand
// `~`, join relative paths onto cwd, normalize `.`/`..`, then route to the
// default device's root_dirs, a named device's mount prefix, or the host.
func Resolve(path, cwd, home string, def *Mount, mounts []Mount) (Resolution, error) {
	if path == "" {
		return Resolution{}, rerr.New(rerr.KindResolutionError, "empty path", nil)
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		path = home + path[1:]
	}
	if !strings.HasPrefix(path, "/") {
		if cwd == "" {
			cwd = "/"
		}
		if strings.HasSuffix(cwd, "/") {
			path = cwd + path
		} else {
			path = cwd + "/" + path
		}
	}
	path = normalize(path)

	if def != nil {
		for _, root := range def.RootDirs {
			if pathUnderRoot(path, root) {
				return Resolution{Device: def.Name, Path: path}, nil
			}
		}
	}
	for _, m := range mounts {
		if path == strings.TrimSuffix(m.NamePath, "/") {
			return Resolution{Device: m.Name, Path: "/"}, nil
		}
		if strings.HasPrefix(path, m.NamePath) {
			stripped := strings.TrimPrefix(path, strings.TrimSuffix(m.NamePath, "/"))
			return Resolution{Device: m.Name, Path: stripped}, nil
		}
	}
	return Resolution{Device: "", Path: path}, nil
}

// pathUnderRoot reports whether path begins with root (a "/foo/"-shaped
// prefix), matching either the bare directory or anything beneath it.
func pathUnderRoot(path, root string) bool {
	bare := strings.TrimSuffix(root, "/")
	return path == bare || strings.HasPrefix(path, root)
}

// normalize splits path on "/", drops "." components, folds ".." upward
// without popping above the root, and rejoins.
func normalize(path string) string {
	parts := strings.Split(path, "/")
	var out []string
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, p)
		}
	}
	return "/" + strings.Join(out, "/")
}
