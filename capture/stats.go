// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a monotonically increasing accumulator exported to an
// external stats subsystem.
type Counter interface {
	Add(delta uint64)
}

// StatsRegistry is the external stats subsystem contract: a place to
// register named counters. A CaptureThreadState registers
// "capture.kernel_packets", "capture.kernel_bytes" and
// "capture.kernel_drops" against it during Init and flushes thread-local deltas into the returned
// Counters once per loop iteration.
type StatsRegistry interface {
	RegisterCounter(name string) Counter
}

// PrometheusRegistry is a StatsRegistry backed by
// github.com/prometheus/client_golang. Counters are registered
// eagerly, named "<namespace>_<name>" with any character outside
// [A-Za-z0-9_] in name folded to an underscore. Registering a name
// that is already registered returns the existing counter, so every
// capture thread adds into one shared series.
type PrometheusRegistry struct {
	namespace string
	registry  *prometheus.Registry
}

// NewPrometheusRegistry returns a StatsRegistry whose counters are
// namespaced under namespace and collected by a dedicated
// prometheus.Registry (use Registry to wire it into an HTTP handler
// via promhttp).
func NewPrometheusRegistry(namespace string) *PrometheusRegistry {
	return &PrometheusRegistry{namespace: namespace, registry: prometheus.NewRegistry()}
}

// Registry exposes the underlying prometheus.Registry.
func (p *PrometheusRegistry) Registry() *prometheus.Registry { return p.registry }

// RegisterCounter implements StatsRegistry.
func (p *PrometheusRegistry) RegisterCounter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      sanitizeMetricName(name),
	})
	if err := p.registry.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		return promCounter{are.ExistingCollector.(prometheus.Counter)}
	}
	return promCounter{c}
}

type promCounter struct{ c prometheus.Counter }

func (pc promCounter) Add(delta uint64) { pc.c.Add(float64(delta)) }

func sanitizeMetricName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// Livedev accumulates cross-thread statistics for one capture
// interface. Every CaptureThreadState bound to rings of the same
// device shares one Livedev and must only touch it through its
// atomic methods, since several capture goroutines update it
// concurrently.
type Livedev struct {
	Name string

	pkts             uint64
	drop             uint64
	invalidChecksums uint64
	ignoreChecksum   int32 // 0 or 1; latched by the AUTO checksum policy
}

// NewLivedev returns a zeroed Livedev for the named interface.
func NewLivedev(name string) *Livedev { return &Livedev{Name: name} }

func (d *Livedev) AddPkts(n uint64)             { atomic.AddUint64(&d.pkts, n) }
func (d *Livedev) AddDrop(n uint64)              { atomic.AddUint64(&d.drop, n) }
func (d *Livedev) AddInvalidChecksums(n uint64)  { atomic.AddUint64(&d.invalidChecksums, n) }

func (d *Livedev) Pkts() uint64             { return atomic.LoadUint64(&d.pkts) }
func (d *Livedev) Drop() uint64             { return atomic.LoadUint64(&d.drop) }
func (d *Livedev) InvalidChecksums() uint64 { return atomic.LoadUint64(&d.invalidChecksums) }

// SetIgnoreChecksum latches the AUTO checksum policy's decision to
// stop trusting hardware checksum offload for this device, once the
// invalid-checksum ratio trips its configured threshold.
func (d *Livedev) SetIgnoreChecksum(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&d.ignoreChecksum, i)
}

// IgnoreChecksum reports whether the AUTO policy has latched off
// checksum validation for this device.
func (d *Livedev) IgnoreChecksum() bool { return atomic.LoadInt32(&d.ignoreChecksum) != 0 }
