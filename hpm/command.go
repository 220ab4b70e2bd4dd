package hpm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/spmi"
)

const commandPollInterval = 100 * time.Microsecond

// Command runs the 4CC command token with input in and returns outLen bytes
// of its output. Completion is polled without bound; ctx is only checked
// between polls.
func (d *Dev) Command(ctx context.Context, token string, in []byte, outLen int) ([]byte, error) {
	if len(token) != 4 {
		return nil, fmt.Errorf("%w: command %q is not 4 bytes", spmi.ErrInvalidArgument, token)
	}
	if outLen < 0 || outLen > MaxRegisterSize {
		return nil, fmt.Errorf("%w: command output of %d bytes", spmi.ErrInvalidArgument, outLen)
	}
	if len(in) > 0 {
		if err := d.Write(RegData1, in); err != nil {
			return nil, fmt.Errorf("hpm: writing %s input: %w", token, err)
		}
	}
	if err := d.Write(RegCmd1, []byte(token)); err != nil {
		return nil, fmt.Errorf("hpm: issuing %s: %w", token, err)
	}
	d.debug("hpm:command", slog.String("cmd", token), slog.Int("in", len(in)))

	var status [4]byte
	for polls := 1; ; polls++ {
		if err := d.Read(RegCmd1, status[:]); err != nil {
			return nil, fmt.Errorf("hpm: polling %s: %w", token, err)
		}
		if status == invalidCommand {
			d.logerr("hpm:invalid-command", slog.String("cmd", token))
			return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, token)
		}
		if status == [4]byte{} {
			d.debug("hpm:command-done", slog.String("cmd", token), slog.Int("polls", polls))
			break
		}
		if string(status[:]) != token {
			d.warn("hpm:command-status", slog.String("cmd", token), slog.String("status", fmt.Sprintf("%q", status[:])))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.delay(commandPollInterval)
	}
	if outLen == 0 {
		return nil, nil
	}
	out := make([]byte, outLen)
	if err := d.Read(RegData1, out); err != nil {
		return nil, fmt.Errorf("hpm: reading %s output: %w", token, err)
	}
	return out, nil
}

// IRQState is a snapshot of INT_MASK1 taken by DisableIRQs.
type IRQState struct {
	mask  [IRQWidth]byte
	valid bool
}

// Valid reports whether the snapshot can be restored.
func (s *IRQState) Valid() bool { return s.valid }

// Mask returns the saved INT_MASK1 contents.
func (s *IRQState) Mask() [IRQWidth]byte { return s.mask }

// DisableIRQs saves INT_MASK1, acknowledges all pending events and masks all
// interrupts. The snapshot is valid as soon as INT_MASK1 was read, even when a
// later step fails.
func (d *Dev) DisableIRQs() (state IRQState, err error) {
	var ones, zeros [IRQWidth]byte
	for i := range ones {
		ones[i] = 0xff
	}
	if err = d.Read(RegIntMask1, state.mask[:]); err != nil {
		d.logerr("hpm:read-int-mask1-failed")
		return state, fmt.Errorf("hpm: reading INT_MASK1: %w", err)
	}
	state.valid = true
	if err = d.Write(RegIntClear1, ones[:]); err != nil {
		d.logerr("hpm:write-int-clear1-failed")
		return state, fmt.Errorf("hpm: writing INT_CLEAR1: %w", err)
	}
	if err = d.Write(RegIntMask1, zeros[:]); err != nil {
		d.logerr("hpm:write-int-mask1-failed")
		return state, fmt.Errorf("hpm: writing INT_MASK1: %w", err)
	}
	return state, nil
}

// RestoreIRQs writes back the INT_MASK1 saved in state and invalidates it.
func (d *Dev) RestoreIRQs(state *IRQState) error {
	if state == nil || !state.valid {
		return fmt.Errorf("%w: IRQ state not valid", spmi.ErrInvalidArgument)
	}
	if err := d.Write(RegIntMask1, state.mask[:]); err != nil {
		d.logerr("hpm:restore-int-mask1-failed")
		return fmt.Errorf("hpm: restoring INT_MASK1: %w", err)
	}
	state.valid = false
	return nil
}

// PowerUp brings the device to power state S0 with the SSPS command if it is
// not there already. It succeeds if the device reports S0 afterwards, even
// when the command itself failed.
func (d *Dev) PowerUp(ctx context.Context) error {
	ps, err := d.PowerState()
	if err != nil {
		return err
	}
	if ps == 0 {
		return nil
	}
	d.info("hpm:power-up", slog.Int("from", int(ps)))
	// The power state read back decides the outcome, not the command status.
	_, cmdErr := d.Command(ctx, "SSPS", []byte{0}, 0)
	if cmdErr != nil {
		d.warn("hpm:power-up-command", slog.String("err", cmdErr.Error()))
	}
	ps, err = d.PowerState()
	if err != nil {
		return err
	}
	if ps != 0 {
		if cmdErr != nil {
			return fmt.Errorf("%w: power state %d after SSPS: %w", ErrPowerState, ps, cmdErr)
		}
		return fmt.Errorf("%w: power state %d after SSPS", ErrPowerState, ps)
	}
	return nil
}

// PowerState returns the current system power state, 0 being S0.
func (d *Dev) PowerState() (uint8, error) {
	var buf [1]byte
	if err := d.Read(RegPowerState, buf[:]); err != nil {
		return 0, fmt.Errorf("hpm: reading power state: %w", err)
	}
	return buf[0], nil
}

// Mode returns the 4 character operating mode, such as "APP ".
func (d *Dev) Mode() (string, error) {
	var buf [4]byte
	if err := d.Read(RegMode, buf[:]); err != nil {
		return "", fmt.Errorf("hpm: reading mode: %w", err)
	}
	return string(buf[:]), nil
}

// Version returns the firmware version string.
func (d *Dev) Version() (string, error) {
	buf := make([]byte, RegisterSize(RegVersion))
	if err := d.Read(RegVersion, buf); err != nil {
		return "", fmt.Errorf("hpm: reading version: %w", err)
	}
	return string(bytes.TrimRight(buf, "\x00")), nil
}

// ReadEvents reads and acknowledges pending events. It returns the set event
// bits in ascending order, INT_EVENT2 bits numbered after INT_EVENT1 bits.
func (d *Dev) ReadEvents() ([]int, error) {
	var events []int
	var buf [IRQWidth]byte
	for i, reg := range [2]uint8{RegIntEvent1, RegIntEvent2} {
		if err := d.Read(reg, buf[:]); err != nil {
			return nil, fmt.Errorf("hpm: reading events: %w", err)
		}
		if err := d.Write(reg+RegIntClear1-RegIntEvent1, buf[:]); err != nil {
			return nil, fmt.Errorf("hpm: clearing events: %w", err)
		}
		for j, b := range buf {
			for bit := 0; bit < 8; bit++ {
				if b&(1<<bit) != 0 {
					events = append(events, i*8*IRQWidth+8*j+bit)
				}
			}
		}
	}
	return events, nil
}
