package spmi

import "fmt"

// NumBusEventBanks is the number of BUS_EVENTS mask/flag register pairs.
const NumBusEventBanks = 8

// NumCounters is the number of 6-bit counters in COUNTERS_1.
const NumCounters = 4

// The IRQ mask and flag accessors below read zero and ignore writes on a
// closed handle.

// IRQMask returns the enabled controller IRQs.
func (d *Dev) IRQMask() IRQs { return IRQs(d.readReg(regIRQMask)) }

// SetIRQMask enables the controller IRQs in mask. Cleared bits only mask the
// IRQ line, flags are still latched.
func (d *Dev) SetIRQMask(mask IRQs) { d.writeReg(regIRQMask, uint32(mask)) }

// IRQFlags returns the latched controller IRQ flags.
func (d *Dev) IRQFlags() IRQs { return IRQs(d.readReg(regIRQFlag)) }

// ClearIRQFlags clears the flags set in f.
func (d *Dev) ClearIRQFlags(f IRQs) { d.writeReg(regIRQFlag, uint32(f)) }

func (d *Dev) readReg(off uint32) uint32 {
	if d.closed() {
		return 0
	}
	return d.regs.Read32(off)
}

func (d *Dev) writeReg(off, v uint32) {
	if !d.closed() {
		d.regs.Write32(off, v)
	}
}

// BusStalled reports whether the controller signals it is unable to drive
// the bus (STATUS_2 bit 0).
func (d *Dev) BusStalled() (bool, error) {
	if d.closed() {
		return false, ErrClosed
	}
	return d.regs.Read32(regStatus2)&1 != 0, nil
}

// Counters returns the four 6-bit hardware counters of COUNTERS_1. What they
// count is undocumented.
func (d *Dev) Counters() (c [NumCounters]uint8, err error) {
	if d.closed() {
		return c, ErrClosed
	}
	v := d.regs.Read32(regCounters1)
	for i := range c {
		c[i] = uint8(v>>(8*i)) & 0x3f
	}
	return c, nil
}

// BusEventFlags returns the latched bus event flags of bank n.
// Bus events are raised by other devices on the bus.
func (d *Dev) BusEventFlags(n int) (uint32, error) {
	if d.closed() {
		return 0, ErrClosed
	}
	if n < 0 || n >= NumBusEventBanks {
		return 0, fmt.Errorf("%w: bus event bank %d", ErrInvalidArgument, n)
	}
	return d.regs.Read32(regBusEventsFlag + 4*uint32(n)), nil
}

// ClearBusEventFlags clears the bits set in v in bus event bank n.
func (d *Dev) ClearBusEventFlags(n int, v uint32) error {
	if d.closed() {
		return ErrClosed
	}
	if n < 0 || n >= NumBusEventBanks {
		return fmt.Errorf("%w: bus event bank %d", ErrInvalidArgument, n)
	}
	d.regs.Write32(regBusEventsFlag+4*uint32(n), v)
	return nil
}

// SetBusEventMask sets the IRQ enable mask of bus event bank n.
func (d *Dev) SetBusEventMask(n int, mask uint32) error {
	if d.closed() {
		return ErrClosed
	}
	if n < 0 || n >= NumBusEventBanks {
		return fmt.Errorf("%w: bus event bank %d", ErrInvalidArgument, n)
	}
	d.regs.Write32(regBusEventsMask+4*uint32(n), mask)
	return nil
}
