package hpm

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/spmi"
)

const (
	selectAttempts     = 5
	selectPolls        = 50
	selectPollInterval = 100 * time.Microsecond

	wakeAttempts     = 50
	wakeRegister     = RegMode
	wakePollInterval = time.Millisecond
)

// pagedIO reaches registers through the register 0 select handshake and the
// read/write windows.
type pagedIO struct {
	bus  *spmi.Dev
	addr uint8
	dev  *Dev
}

var _ transport = (*pagedIO)(nil)

// selectRegister selects reg and waits until the device confirms it.
func (p *pagedIO) selectRegister(reg uint8) error {
	for attempt := 0; attempt < selectAttempts; attempt++ {
		ack, err := p.bus.ZeroWrite(p.addr, reg)
		if err != nil {
			return err
		}
		if !ack {
			p.dev.debug("hpm:select-nack", regAttr(reg), slog.Int("attempt", attempt))
			continue
		}
		for i := 0; i < selectPolls; i++ {
			got, _, err := p.bus.ExtRead(p.addr, regIndex, 1)
			if errors.Is(err, spmi.ErrParity) {
				continue // Index not latched yet.
			} else if err != nil {
				return err
			}
			if got[0]&0x7f != reg {
				p.dev.warn("hpm:select-mismatch", regAttr(reg), slog.Int("got", int(got[0])))
				break
			}
			if got[0] == reg {
				return nil
			}
			p.dev.delay(selectPollInterval)
		}
	}
	p.dev.logerr("hpm:select-timeout", regAttr(reg))
	return fmt.Errorf("%w: register %#x", ErrSelectTimeout, reg)
}

// selectChecked selects reg and checks it is at least n bytes wide.
func (p *pagedIO) selectChecked(reg uint8, n int) error {
	if err := p.selectRegister(reg); err != nil {
		return err
	}
	width, _, err := p.bus.ExtRead(p.addr, regWidth, 1)
	if err != nil {
		return err
	}
	if n > int(width[0]) {
		p.dev.logerr("hpm:register-too-short", regAttr(reg), slog.Int("width", int(width[0])), slog.Int("len", n))
		return fmt.Errorf("%w: register %#x is %d bytes, want %d", ErrRegisterTooShort, reg, width[0], n)
	}
	return nil
}

func (p *pagedIO) read(reg uint8, dst []byte) error {
	if err := p.selectChecked(reg, len(dst)); err != nil {
		return err
	}
	for off := 0; off < len(dst); {
		n := min(len(dst)-off, chunkSize)
		data, _, err := p.bus.ExtRead(p.addr, regReadWindow+uint8(off), n)
		if err != nil {
			return err
		}
		off += copy(dst[off:], data)
	}
	return nil
}

func (p *pagedIO) write(reg uint8, src []byte) error {
	if err := p.selectChecked(reg, len(src)); err != nil {
		return err
	}
	for off := 0; off < len(src); {
		n := min(len(src)-off, chunkSize)
		if _, err := p.bus.ExtWrite(p.addr, regWriteWindow+uint8(off), src[off:off+n]); err != nil {
			return err
		}
		off += n
	}
	// Selecting the register again commits the staged write.
	return p.selectRegister(reg)
}

func (p *pagedIO) wake() error {
	ack, err := p.bus.Wakeup(p.addr)
	if err != nil {
		return err
	}
	if !ack {
		return fmt.Errorf("%w: wakeup not acknowledged", ErrWakeTimeout)
	}
	// Selecting any register other than 0 succeeds once the device is up.
	for attempt := 0; attempt < wakeAttempts; attempt++ {
		ack, err := p.bus.ZeroWrite(p.addr, wakeRegister)
		if err != nil {
			return err
		} else if !ack {
			continue
		}
		got, _, err := p.bus.ExtRead(p.addr, regIndex, 1)
		if errors.Is(err, spmi.ErrParity) {
			continue
		} else if err != nil {
			return err
		}
		if got[0] == wakeRegister {
			return nil
		}
		p.dev.delay(wakePollInterval)
	}
	p.dev.logerr("hpm:wake-timeout", slog.Int("addr", int(p.addr)))
	return ErrWakeTimeout
}
