// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import (
	"fmt"
	"sync"
)

// Registry is a process-wide table of open Devices, keyed by
// interface name. Two capture threads bound to the same interface —
// an RX/TX pair configured for IPS forwarding, or simply two threads
// sharing one NIC's ring set — acquire the same *Device and share its
// memory mapping; the device is opened exactly once and torn down
// exactly once, when the last acquirer releases it.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*Device
}

// NewRegistry returns an empty device registry. Most programs need
// exactly one, shared by every capture thread; see cmd/nmcapture for
// how it is wired in.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Acquire returns the named Device, opening it if this is the first
// acquisition and incrementing its reference count either way. warn,
// if non-nil, receives non-fatal errors encountered during open (for
// example a failed attempt to enable promiscuous mode); it is never
// called for a cache hit.
func (r *Registry) Acquire(name string, promisc bool, warn func(error)) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[name]; ok {
		d.refcount++
		return d, nil
	}

	d, err := openDevice(name, promisc, warn)
	if err != nil {
		return nil, err
	}
	d.refcount = 1
	r.devices[name] = d
	return d, nil
}

// Release decrements the named Device's reference count, tearing it
// down and removing it from the registry once the count reaches
// zero. Releasing a name that was never successfully Acquired is a
// programming error; Release reports ErrNotRegistered in that case.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}

	d.refcount--
	if d.refcount > 0 {
		return nil
	}

	delete(r.devices, name)
	return d.teardown()
}

// Lookup returns the named Device without adjusting its reference
// count, for callers that already hold a valid acquisition on a
// paired interface and need to resolve the peer device by name. The
// IPS forwarding path does not use it: it holds the destination
// *Device directly.
func (r *Registry) Lookup(name string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[name]
	return d, ok
}

// Count returns the number of currently-open devices, for tests and
// diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
