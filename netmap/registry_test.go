// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import "testing"

// inject inserts a fake, already-"open" device into the registry,
// bypassing openDevice (and therefore real hardware), so refcounting
// can be exercised in isolation.
func (r *Registry) inject(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.refcount = 1
	r.devices[d.Name] = d
}

func TestRegistryRefcounting(t *testing.T) {
	r := NewRegistry()
	d := newFakeDevice("eth0", 2)
	r.inject(d)

	got, err := r.Acquire("eth0", false, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != d {
		t.Fatalf("Acquire returned a different device than was injected")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	// Two acquisitions outstanding (the inject plus the Acquire
	// above); neither Release should tear the device down until
	// both are accounted for.
	if err := r.Release("eth0"); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("device released early: Count() = %d, want 1", r.Count())
	}

	if err := r.Release("eth0"); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after final release", r.Count())
	}
}

func TestRegistryReleaseUnknown(t *testing.T) {
	r := NewRegistry()
	if err := r.Release("eth9"); err == nil {
		t.Fatal("Release of an unacquired device: got nil error, want ErrNotRegistered")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	d := newFakeDevice("eth0", 1)
	r.inject(d)

	got, ok := r.Lookup("eth0")
	if !ok || got != d {
		t.Fatalf("Lookup(%q) = (%v, %v), want (%v, true)", "eth0", got, ok, d)
	}

	if _, ok := r.Lookup("eth1"); ok {
		t.Fatal("Lookup of unknown device reported ok=true")
	}
}
