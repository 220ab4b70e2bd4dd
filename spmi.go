// Package spmi implements transactions on a memory mapped SPMI bus
// controller. The controller exposes a TX FIFO fed through the CMD register
// and an RX FIFO drained through the REPLY register. Every transaction is a
// single command word, an optional payload, a reply word and an optional
// reply payload.
//
// The bus is assumed single master and the API is synchronous and polled.
// A Dev must not be used from multiple goroutines concurrently.
package spmi

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	rxPollAttempts = 100
	rxPollInterval = 100 * time.Microsecond
)

// Config configures a Dev.
type Config struct {
	// Logger receives diagnostics. May be nil.
	Logger *slog.Logger
	// Delay busy-waits for the given duration between FIFO polls.
	// If nil time.Sleep is used.
	Delay func(time.Duration)
}

// Dev is a handle to an SPMI bus controller.
type Dev struct {
	regs   Registers
	logger *slog.Logger
	delay  func(time.Duration)
	// outBuf holds packed payload words so transactions don't allocate.
	outBuf [MaxPayload / 4]uint32
}

// Open returns a handle to the controller whose registers are regs.
// It has no side effects on the bus.
func Open(regs Registers, cfg Config) *Dev {
	d := &Dev{
		regs:   regs,
		logger: cfg.Logger,
		delay:  cfg.Delay,
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	return d
}

// Close releases the handle. If the underlying Registers implement io.Closer
// they are closed too. Calling Close more than once is a no-op.
func (d *Dev) Close() (err error) {
	if d.regs == nil {
		return nil
	}
	if c, ok := d.regs.(io.Closer); ok {
		err = c.Close()
	}
	d.regs = nil
	return err
}

// Delay busy-waits using the handle's configured delay function.
func (d *Dev) Delay(t time.Duration) { d.delay(t) }

// Logger returns the handle's logger, which may be nil.
func (d *Dev) Logger() *slog.Logger { return d.logger }

// Status reads the controller FIFO status. It is zero on a closed handle.
func (d *Dev) Status() Status { return Status(d.readReg(regStatus)) }

func (d *Dev) closed() bool { return d.regs == nil }

// RawTransaction performs a single command transaction with the slave at addr.
// The out payload is streamed after the command word and inLen bytes of reply
// payload are collected after the reply word. The returned Reply has Ack set
// if the slave acknowledged the command.
//
// RawTransaction never retries. Errors are one of ErrInvalidArgument,
// ErrBusBusy, ErrTimeout, ErrProtocolMismatch, ErrParity or ErrClosed,
// possibly wrapped.
func (d *Dev) RawTransaction(addr, cmd uint8, extra uint16, out []byte, inLen int) (Reply, error) {
	if d.closed() {
		return Reply{}, ErrClosed
	}
	if addr > MaxAddr {
		d.logerr("spmi:invalid-slave-address", slog.Int("addr", int(addr)))
		return Reply{}, fmt.Errorf("%w: slave address %d", ErrInvalidArgument, addr)
	}
	if inLen < 0 || inLen > MaxPayload || len(out) > MaxPayload {
		d.logerr("spmi:invalid-size", slog.Int("in", inLen), slog.Int("out", len(out)))
		return Reply{}, fmt.Errorf("%w: payload sizes out=%d in=%d", ErrInvalidArgument, len(out), inLen)
	}

	// Ensure FIFOs are in the correct state.
	status := d.Status()
	if !status.TxEmpty() {
		d.logerr("spmi:tx-not-empty", slog.String("status", status.String()))
		return Reply{}, ErrBusBusy
	}
	d.drainRx()

	// Write command and payload.
	d.trace("spmi:tx", slog.Uint64("addr", uint64(addr)), slog.Uint64("cmd", uint64(cmd)),
		slog.Uint64("extra", uint64(extra)), slog.Int("out", len(out)), slog.Int("in", inLen), slog.Int("words", wordsFor(len(out))))
	d.regs.Write32(regCmd, makeCmdWord(addr, cmd, extra))
	for _, w := range packWords(d.outBuf[:0], out) {
		d.regs.Write32(regCmd, w)
	}

	// Read response.
	w, err := d.readRx()
	if err != nil {
		return Reply{}, err
	}
	reply := decodeReply(w)
	if reply.Cmd != cmd || reply.Addr != addr {
		d.logerr("spmi:unexpected-reply", slog.String("reply", hex32(w)),
			slog.Uint64("addr", uint64(addr)), slog.Uint64("cmd", uint64(cmd)))
		return Reply{}, ErrProtocolMismatch
	}

	if inLen > 0 {
		reply.Data = make([]byte, inLen)
	}
	for i := 0; i < wordsFor(inLen); i++ {
		w, err := d.readRx()
		if err != nil {
			return Reply{}, err
		}
		unpackWord(reply.Data[4*i:], w)
	}

	if reply.Parity != frameMask(inLen) {
		d.debug("spmi:parity-mismatch", slog.Uint64("parity", uint64(reply.Parity)), slog.Int("in", inLen))
		return Reply{}, ErrParity
	}
	return reply, nil
}

// drainRx pops stale words left in the RX FIFO by a previous transaction.
func (d *Dev) drainRx() {
	for !d.Status().RxEmpty() {
		d.warn("spmi:leftover-rx", slog.String("data", hex32(d.regs.Read32(regReply))))
	}
}

// readRx pops a single word from the RX FIFO, polling for a bounded time.
func (d *Dev) readRx() (uint32, error) {
	for i := 0; i < rxPollAttempts; i++ {
		if !d.Status().RxEmpty() {
			w := d.regs.Read32(regReply)
			d.trace("spmi:rx", slog.String("data", hex32(w)))
			return w, nil
		}
		d.delay(rxPollInterval)
	}
	d.logerr("spmi:rx-timeout")
	return 0, ErrTimeout
}
