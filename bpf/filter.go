package bpf

import "golang.org/x/net/bpf"

// Filter is the common interface for anything that can accept or
// reject a raw packet buffer before it is handed to a packet pool.
type Filter interface {
	// Accept reports whether p should be delivered downstream. A
	// filter that rejects a packet lets the capture loop advance
	// past its slot without ever touching the packet pool.
	Accept(p []byte) bool
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(p []byte) bool

// Accept calls f.
func (f FilterFunc) Accept(p []byte) bool { return f(p) }

// Program is a classic BPF program executed through
// golang.org/x/net/bpf's pure-Go virtual machine. This package only
// executes programs; compiling a human-readable filter expression
// (tcpdump-style) into raw instructions is out of scope, matching the
// capture engine's original design — callers bring an already
// assembled program, e.g. ported from a `tcpdump -ddd` dump.
type Program struct {
	vm *bpf.VM
}

// Compile validates prog and wraps it into an executable Program. A
// nil *Program (returned when Compile is never called) always
// accepts — see Accept.
func Compile(prog []bpf.RawInstruction) (*Program, error) {
	insns := make([]bpf.Instruction, len(prog))
	for i, raw := range prog {
		insns[i] = raw
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, err
	}
	return &Program{vm: vm}, nil
}

// Accept runs the compiled program against pkt, or always accepts if
// p is nil (no filter configured). Classic BPF programs return the
// number of bytes of the packet to keep; zero means reject.
func (p *Program) Accept(pkt []byte) bool {
	if p == nil {
		return true
	}
	n, err := p.vm.Run(pkt)
	return err == nil && n > 0
}
