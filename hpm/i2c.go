package hpm

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// directIO reaches registers with SMBus block transfers. Block reads return
// the register width as the first byte.
type directIO struct {
	dev i2c.Dev
	buf [MaxRegisterSize + 2]byte
}

var _ transport = (*directIO)(nil)

func (d *directIO) read(reg uint8, p []byte) error {
	rx := d.buf[:len(p)+1]
	if err := d.dev.Tx([]byte{reg}, rx); err != nil {
		return fmt.Errorf("hpm: i2c read of register %#x: %w", reg, err)
	}
	if int(rx[0]) < len(p) {
		return fmt.Errorf("%w: register %#x is %d bytes, want %d", ErrRegisterTooShort, reg, rx[0], len(p))
	}
	copy(p, rx[1:])
	return nil
}

func (d *directIO) write(reg uint8, p []byte) error {
	tx := append(d.buf[:0], reg, byte(len(p)))
	tx = append(tx, p...)
	if err := d.dev.Tx(tx, nil); err != nil {
		return fmt.Errorf("hpm: i2c write of register %#x: %w", reg, err)
	}
	return nil
}

func (d *directIO) wake() error {
	return fmt.Errorf("%w: wake over i2c", ErrUnsupported)
}
