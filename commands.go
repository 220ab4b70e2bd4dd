package spmi

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Reset sends the Reset command to the slave at addr.
func (d *Dev) Reset(addr uint8) (ack bool, err error) {
	return d.command(addr, CmdReset)
}

// Sleep sends the Sleep command to the slave at addr.
func (d *Dev) Sleep(addr uint8) (ack bool, err error) {
	return d.command(addr, CmdSleep)
}

// Shutdown sends the Shutdown command to the slave at addr.
func (d *Dev) Shutdown(addr uint8) (ack bool, err error) {
	return d.command(addr, CmdShutdown)
}

// Wakeup sends the Wakeup command to the slave at addr.
func (d *Dev) Wakeup(addr uint8) (ack bool, err error) {
	return d.command(addr, CmdWakeup)
}

func (d *Dev) command(addr, cmd uint8) (bool, error) {
	reply, err := d.RawTransaction(addr, cmd, 0, nil, 0)
	return reply.Ack, err
}

// ZeroWrite performs a register 0 write of a 7-bit value.
func (d *Dev) ZeroWrite(addr, value uint8) (ack bool, err error) {
	if value > 0x7f {
		d.logerr("spmi:invalid-reg0-value", slog.Int("value", int(value)))
		return false, fmt.Errorf("%w: register 0 value %#x", ErrInvalidArgument, value)
	}
	reply, err := d.RawTransaction(addr, CmdZeroWrite|value, uint16(value)<<8, nil, 0)
	return reply.Ack, err
}

// RegRead performs a register read command. reg must be below 32.
func (d *Dev) RegRead(addr, reg uint8) (value uint8, ack bool, err error) {
	if reg >= 32 {
		return 0, false, fmt.Errorf("%w: register %#x out of range for read", ErrInvalidArgument, reg)
	}
	reply, err := d.RawTransaction(addr, CmdRead|reg, uint16(reg), nil, 1)
	if err != nil {
		return 0, false, err
	}
	return reply.Data[0], reply.Ack, nil
}

// RegWrite performs a register write command. reg must be below 32.
func (d *Dev) RegWrite(addr, reg, value uint8) (ack bool, err error) {
	if reg >= 32 {
		return false, fmt.Errorf("%w: register %#x out of range for write", ErrInvalidArgument, reg)
	}
	reply, err := d.RawTransaction(addr, CmdWrite|reg, uint16(reg)|uint16(value)<<8, nil, 0)
	return reply.Ack, err
}

// SlaveDescriptor reads the slave descriptor block.
func (d *Dev) SlaveDescriptor(addr uint8) ([]byte, error) {
	reply, err := d.RawTransaction(addr, CmdSlaveDesc, 0, nil, SlaveDescriptorLen)
	return reply.Data, err
}

// ExtRead performs an extended read of n bytes, 1 <= n <= 16, starting at reg.
func (d *Dev) ExtRead(addr, reg uint8, n int) (data []byte, ack bool, err error) {
	if n < 1 || n > MaxPayload {
		d.logerr("spmi:invalid-ext-read-size", slog.Int("len", n))
		return nil, false, fmt.Errorf("%w: extended read of %d bytes", ErrInvalidArgument, n)
	}
	reply, err := d.RawTransaction(addr, CmdExtRead|uint8(n-1), uint16(reg), nil, n)
	return reply.Data, reply.Ack, err
}

// ExtWrite performs an extended write of 1 to 16 bytes starting at reg.
func (d *Dev) ExtWrite(addr, reg uint8, p []byte) (ack bool, err error) {
	if len(p) < 1 || len(p) > MaxPayload {
		d.logerr("spmi:invalid-ext-write-size", slog.Int("len", len(p)))
		return false, fmt.Errorf("%w: extended write of %d bytes", ErrInvalidArgument, len(p))
	}
	reply, err := d.RawTransaction(addr, CmdExtWrite|uint8(len(p)-1), uint16(reg), p, 0)
	return reply.Ack, err
}

// ExtReadLong performs an extended read long of n bytes, 1 <= n <= 8, starting
// at the 16-bit register reg.
func (d *Dev) ExtReadLong(addr uint8, reg uint16, n int) (data []byte, ack bool, err error) {
	if n < 1 || n > MaxLongPayload {
		d.logerr("spmi:invalid-ext-read-long-size", slog.Int("len", n))
		return nil, false, fmt.Errorf("%w: extended read long of %d bytes", ErrInvalidArgument, n)
	}
	reply, err := d.RawTransaction(addr, CmdExtReadL|uint8(n-1), reg, nil, n)
	return reply.Data, reply.Ack, err
}

// ExtWriteLong performs an extended write long of 1 to 8 bytes starting at
// the 16-bit register reg.
func (d *Dev) ExtWriteLong(addr uint8, reg uint16, p []byte) (ack bool, err error) {
	if len(p) < 1 || len(p) > MaxLongPayload {
		d.logerr("spmi:invalid-ext-write-long-size", slog.Int("len", len(p)))
		return false, fmt.Errorf("%w: extended write long of %d bytes", ErrInvalidArgument, len(p))
	}
	reply, err := d.RawTransaction(addr, CmdExtWriteL|uint8(len(p)-1), reg, p, 0)
	return reply.Ack, err
}

// Read8 reads a byte at the 16-bit register reg.
func (d *Dev) Read8(addr uint8, reg uint16) (uint8, error) {
	b, _, err := d.ExtReadLong(addr, reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read16 reads a little endian 16-bit value at reg.
func (d *Dev) Read16(addr uint8, reg uint16) (uint16, error) {
	b, _, err := d.ExtReadLong(addr, reg, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Read32 reads a little endian 32-bit value at reg.
func (d *Dev) Read32(addr uint8, reg uint16) (uint32, error) {
	b, _, err := d.ExtReadLong(addr, reg, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Read64 reads a little endian 64-bit value at reg.
func (d *Dev) Read64(addr uint8, reg uint16) (uint64, error) {
	b, _, err := d.ExtReadLong(addr, reg, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Write8 writes a byte at the 16-bit register reg.
func (d *Dev) Write8(addr uint8, reg uint16, v uint8) (ack bool, err error) {
	return d.ExtWriteLong(addr, reg, []byte{v})
}

// Write16 writes a little endian 16-bit value at reg.
func (d *Dev) Write16(addr uint8, reg uint16, v uint16) (ack bool, err error) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return d.ExtWriteLong(addr, reg, buf[:])
}

// Write32 writes a little endian 32-bit value at reg.
func (d *Dev) Write32(addr uint8, reg uint16, v uint32) (ack bool, err error) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return d.ExtWriteLong(addr, reg, buf[:])
}

// Write64 writes a little endian 64-bit value at reg.
func (d *Dev) Write64(addr uint8, reg uint16, v uint64) (ack bool, err error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return d.ExtWriteLong(addr, reg, buf[:])
}
