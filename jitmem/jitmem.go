//go:build linux

// Package jitmem maps emitted machine code into executable memory. Pages go
// through a write-then-protect cycle so the mapping is never writable and
// executable at the same time.
package jitmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/codegenlab/uniasm/log"
)

// Region is one executable mapping.
type Region struct {
	mem []byte
}

// Map copies code into a fresh anonymous mapping and flips it to
// read-execute.
func Map(code []byte) (*Region, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("jitmem: empty code buffer")
	}
	mem, err := unix.Mmap(-1, 0, len(code),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("jitmem: mmap: %w", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("jitmem: mprotect: %w", err)
	}
	log.Trace(log.SandboxMonitoring, "mapped executable region", "bytes", len(code))
	return &Region{mem: mem}, nil
}

// Addr returns the entry address of the mapped code.
func (r *Region) Addr() uintptr {
	return uintptr(unsafe.Pointer(&r.mem[0]))
}

// Size returns the mapping length.
func (r *Region) Size() int { return len(r.mem) }

// Close unmaps the region. The entry address is invalid afterwards.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}
