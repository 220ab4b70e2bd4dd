package spmi

import (
	"fmt"

	"periph.io/x/host/v3/pmem"
)

// Registers is 32-bit aligned access to the controller register window.
// Offsets are in bytes from the controller base address. Accesses are
// assumed to be non-faulting and strongly ordered.
type Registers interface {
	Read32(off uint32) uint32
	Write32(off, v uint32)
}

// PhysRegisters is a view of the controller registers mapped from physical
// memory through /dev/mem.
type PhysRegisters struct {
	view *pmem.View
	regs []uint32
	base uint64
}

// MapPhysical maps the controller register window at the physical address
// base. It usually requires root privileges.
func MapPhysical(base uint64) (*PhysRegisters, error) {
	if base%4 != 0 {
		return nil, fmt.Errorf("%w: unaligned base address %#x", ErrInvalidArgument, base)
	}
	v, err := pmem.Map(base, RegisterWindowSize)
	if err != nil {
		return nil, err
	}
	return &PhysRegisters{view: v, regs: v.Uint32(), base: base}, nil
}

func (p *PhysRegisters) Read32(off uint32) uint32 { return p.regs[off/4] }

func (p *PhysRegisters) Write32(off, v uint32) { p.regs[off/4] = v }

// Base returns the physical base address of the mapping.
func (p *PhysRegisters) Base() uint64 { return p.base }

// Close unmaps the register window.
func (p *PhysRegisters) Close() error {
	if p.view == nil {
		return nil
	}
	err := p.view.Close()
	p.view = nil
	p.regs = nil
	return err
}
