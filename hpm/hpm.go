// Package hpm implements a client for the TPS6598x family USB-PD controllers
// (HPM) found on Apple silicon machines. The controller is reached either
// directly over I2C or through a paged register interface on the SPMI bus,
// where a register is selected by writing its number to register 0 and then
// accessed through a 64 byte window.
package hpm

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/spmi"
	"github.com/soypat/spmi/devtree"
	"periph.io/x/conn/v3/i2c"
)

var (
	ErrSelectTimeout    = errors.New("hpm: register select not confirmed")
	ErrWakeTimeout      = errors.New("hpm: device did not wake up")
	ErrRegisterTooShort = errors.New("hpm: register shorter than access")
	ErrInvalidCommand   = errors.New("hpm: invalid command")
	ErrUnsupported      = errors.New("hpm: unsupported on this transport")
	ErrPowerState       = errors.New("hpm: power state not reached")
	ErrClosed           = errors.New("hpm: device closed")
)

// Config configures a Dev.
type Config struct {
	// Logger receives diagnostics. May be nil.
	Logger *slog.Logger
	// Delay busy-waits between polls. If nil time.Sleep is used.
	Delay func(time.Duration)
}

// transport moves whole register contents to and from the device.
type transport interface {
	read(reg uint8, p []byte) error
	write(reg uint8, p []byte) error
	wake() error
}

// Dev is a handle to an HPM. It borrows its bus and is not safe for
// concurrent use.
type Dev struct {
	tr     transport
	logger *slog.Logger
	delay  func(time.Duration)
}

func newDev(cfg Config) *Dev {
	d := &Dev{
		logger: cfg.Logger,
		delay:  cfg.Delay,
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	return d
}

// NewSPMI returns a handle to the HPM at slave address addr of bus and wakes
// it up. If the device does not wake up the error is returned and no handle.
func NewSPMI(bus *spmi.Dev, addr uint8, cfg Config) (*Dev, error) {
	if addr > spmi.MaxAddr {
		return nil, fmt.Errorf("%w: slave address %d", spmi.ErrInvalidArgument, addr)
	}
	d := newDev(cfg)
	d.tr = &pagedIO{bus: bus, addr: addr, dev: d}
	if err := d.Wake(); err != nil {
		d.logerr("hpm:wake-failed", slog.Int("addr", int(addr)), slog.String("err", err.Error()))
		return nil, err
	}
	d.debug("hpm:init", slog.Int("addr", int(addr)))
	return d, nil
}

// NewI2C returns a handle to the HPM at addr of an I2C bus.
func NewI2C(bus i2c.Bus, addr uint16, cfg Config) *Dev {
	d := newDev(cfg)
	d.tr = &directIO{dev: i2c.Dev{Bus: bus, Addr: addr}}
	return d
}

// NewFromDeviceTree returns a handle to the HPM described by node, whose
// first reg cell is its slave address on bus.
func NewFromDeviceTree(tree devtree.Lookup, node string, bus *spmi.Dev, cfg Config) (*Dev, error) {
	reg, err := tree.Reg(node)
	if err != nil {
		return nil, fmt.Errorf("hpm: looking up %s: %w", node, err)
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("%w: %s has empty reg", devtree.ErrDeviceNotFound, node)
	}
	if reg[0] > spmi.MaxAddr {
		return nil, fmt.Errorf("%w: %s slave address %d", spmi.ErrInvalidArgument, node, reg[0])
	}
	return NewSPMI(bus, uint8(reg[0]), cfg)
}

// Close drops the borrowed transport. It does not close the bus.
func (d *Dev) Close() error {
	d.tr = nil
	return nil
}

// Read reads len(p) bytes of register reg, 1 <= len(p) <= 64.
func (d *Dev) Read(reg uint8, p []byte) error {
	if err := d.checkAccess(reg, len(p)); err != nil {
		return err
	}
	return d.tr.read(reg, p)
}

// Write writes p to register reg, 1 <= len(p) <= 64.
func (d *Dev) Write(reg uint8, p []byte) error {
	if err := d.checkAccess(reg, len(p)); err != nil {
		return err
	}
	return d.tr.write(reg, p)
}

// Wake wakes the device up from sleep. Only the SPMI transport supports it.
func (d *Dev) Wake() error {
	if d.tr == nil {
		return ErrClosed
	}
	return d.tr.wake()
}

func (d *Dev) checkAccess(reg uint8, n int) error {
	if d.tr == nil {
		return ErrClosed
	}
	if n < 1 || n > MaxRegisterSize || reg > 0x7f {
		d.logerr("hpm:invalid-access", regAttr(reg), slog.Int("len", n))
		return fmt.Errorf("%w: %d bytes of register %#x", spmi.ErrInvalidArgument, n, reg)
	}
	return nil
}
