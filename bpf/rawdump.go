package bpf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"
)

// ParseRawDump reads a classic-BPF program in the plain text format
// `tcpdump -ddd` emits: a first line giving the instruction count,
// followed by one line per instruction of four whitespace-separated
// fields (opcode, jt, jf, k). This only deserializes an
// already-compiled program; turning a filter expression like "tcp and
// port 80" into this form stays out of scope, same as Compile.
func ParseRawDump(r io.Reader) ([]bpf.RawInstruction, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		return nil, fmt.Errorf("bpf: empty raw dump")
	}
	count, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return nil, fmt.Errorf("bpf: invalid instruction count: %w", err)
	}

	prog := make([]bpf.RawInstruction, 0, count)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("bpf: malformed instruction line %q", line)
		}

		vals := make([]uint64, 4)
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("bpf: malformed field %q in line %q: %w", f, line, err)
			}
			vals[i] = v
		}

		prog = append(prog, bpf.RawInstruction{
			Op: uint16(vals[0]),
			Jt: uint8(vals[1]),
			Jf: uint8(vals[2]),
			K:  uint32(vals[3]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("bpf: scanning raw dump: %w", err)
	}

	if len(prog) != count {
		return nil, fmt.Errorf("bpf: raw dump declared %d instructions, found %d", count, len(prog))
	}
	return prog, nil
}
