// Package monitor supervises one status channel per discovered printer and
// turns the raw snapshot stream into sparse operator notifications.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alex/sdcp_monitor/sdcp"
)

// entry pairs a device with its single-slot snapshot history. prev always
// holds the value cur had immediately before the latest record.
type entry struct {
	device sdcp.Device

	mu        sync.RWMutex
	prev      *sdcp.StatusSnapshot
	cur       *sdcp.StatusSnapshot
	updatedAt time.Time
}

// Registry is the set of known devices and their last-seen status. The key
// set is fixed at construction, after discovery; entries live for the
// process lifetime. Each monitor owns the writes to exactly one entry.
type Registry struct {
	entries map[string]*entry
}

// NewRegistry builds a registry over the discovery result.
func NewRegistry(devices []sdcp.Device) *Registry {
	entries := make(map[string]*entry, len(devices))
	for _, d := range devices {
		entries[d.ID] = &entry{device: d}
	}
	return &Registry{entries: entries}
}

// Device looks up a device descriptor by id.
func (r *Registry) Device(id string) (sdcp.Device, bool) {
	e, ok := r.entries[id]
	if !ok {
		return sdcp.Device{}, false
	}
	return e.device, true
}

// Devices lists all registered devices, ordered by id.
func (r *Registry) Devices() []sdcp.Device {
	out := make([]sdcp.Device, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordSnapshot installs snap as the device's current snapshot and returns
// the consistent (previous, current) pair in one step, so the caller can
// diff without racing a later update. The first record for a device returns
// previous == nil, the no-history marker.
func (r *Registry) RecordSnapshot(id string, snap sdcp.StatusSnapshot) (prev *sdcp.StatusSnapshot, cur sdcp.StatusSnapshot, err error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, sdcp.StatusSnapshot{}, fmt.Errorf("unknown device %q", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.prev = e.cur
	s := snap
	e.cur = &s
	e.updatedAt = time.Now()
	return e.prev, snap, nil
}

// LastSnapshot returns the current (previous, current) pair and update time
// for a device. Serves the read-only HTTP surface; monitors never use it.
func (r *Registry) LastSnapshot(id string) (prev, cur *sdcp.StatusSnapshot, updatedAt time.Time, ok bool) {
	e, found := r.entries[id]
	if !found {
		return nil, nil, time.Time{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prev, e.cur, e.updatedAt, true
}
