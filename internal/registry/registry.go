// Package registry implements the Device Registry: an ordered
// collection of connected devices plus a "default" pointer, mutated only
// under a single lock shared with the optional hotplug watcher.
package registry

import (
	"fmt"
	"sync"

	"github.com/micronext/upy-shell/internal/device"
	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/vfs"
)

// Registry holds every currently-registered device in insertion order, plus
// a pointer to the default device.
type Registry struct {
	mu      sync.RWMutex
	entries []*device.Device
	dflt    *device.Device
	seq     map[string]int // baseName -> collisions so far; the latest "-N" suffix tried is this value + 1
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{seq: make(map[string]int)}
}

// Add registers d. If a device with the same ShortName is already present
// it is removed (and closed) first. If DisplayName collides with an
// already-registered device, a monotonic "-N" suffix is appended until the
// name is free. The first successfully added device becomes the default;
// Default stays cleared until Add or SetDefault gives it a new value.
func (r *Registry) Add(d *device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeByShortNameLocked(d.ShortName)

	base := d.DisplayName
	name := base
	for r.nameTakenLocked(name) {
		r.seq[base]++
		name = fmt.Sprintf("%s-%d", base, r.seq[base]+1)
	}
	d.SetDisplayName(name)

	r.entries = append(r.entries, d)
	if r.dflt == nil {
		r.dflt = d
	}
}

func (r *Registry) nameTakenLocked(name string) bool {
	for _, e := range r.entries {
		if e.DisplayName == name {
			return true
		}
	}
	return false
}

// Remove closes and deletes the device with the given short name, clearing
// the default pointer if it was the removed device.
func (r *Registry) Remove(shortName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeByShortNameLocked(shortName)
}

func (r *Registry) removeByShortNameLocked(shortName string) {
	for i, e := range r.entries {
		if e.ShortName == shortName {
			e.Close()
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			if r.dflt == e {
				r.dflt = nil
			}
			return
		}
	}
}

// Find returns the named device, or the default device when name is empty.
func (r *Registry) Find(name string) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		if r.dflt == nil {
			return nil, rerr.New(rerr.KindResolutionError, "no default device", nil)
		}
		return r.dflt, nil
	}
	for _, e := range r.entries {
		if e.DisplayName == name {
			return e, nil
		}
	}
	return nil, rerr.New(rerr.KindResolutionError, "unknown device: "+name, nil)
}

// Default returns the current default device, or nil if none is set.
func (r *Registry) Default() *device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dflt
}

// SetDefault makes the named device the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.DisplayName == name {
			r.dflt = e
			return nil
		}
	}
	return rerr.New(rerr.KindResolutionError, "unknown device: "+name, nil)
}

// List returns a snapshot of the registered devices for UI printing.
func (r *Registry) List() []*device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*device.Device, len(r.entries))
	copy(out, r.entries)
	return out
}

// Mounts builds the vfs.Mount slice (name path + root dirs) that
// vfs.Resolve needs, along with the default mount if one exists. It takes
// its own lock internally so callers can call it directly before resolving
// a path without separately snapshotting List().
func (r *Registry) Mounts() (defMount *vfs.Mount, mounts []vfs.Mount) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		m := vfs.Mount{Name: e.DisplayName, NamePath: e.NamePath, RootDirs: e.RootDirs}
		mounts = append(mounts, m)
		if e == r.dflt {
			dm := m
			defMount = &dm
		}
	}
	return defMount, mounts
}

// VFSDevice adapts a registered device to the vfs.Device interface by
// display name, for use after a vfs.Resolve call names a device.
func (r *Registry) VFSDevice(name string) (vfs.Device, error) {
	d, err := r.Find(name)
	if err != nil {
		return nil, err
	}
	return d, nil
}
