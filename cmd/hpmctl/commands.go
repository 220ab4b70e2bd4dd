package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soypat/spmi/hpm"
	"github.com/soypat/spmi/internal/board"
)

var errUsage = errors.New("bad usage")

type command struct {
	usage string
	run   func(ctx context.Context, b *board.Board, w io.Writer, args []string) error
}

var commands = map[string]command{
	"info":    {"info", cmdInfo},
	"powerup": {"powerup", cmdPowerUp},
	"cmd":     {"cmd TOKEN [HEX-INPUT] [OUTPUT-LEN]", cmdCommand},
	"events":  {"events", cmdEvents},
	"read":    {"read REG [LEN]", cmdRead},
	"write":   {"write REG HEX", cmdWrite},
	"irqs":    {"irqs", cmdIRQs},
	"wake":    {"wake", cmdWake},
}

// run executes a single command line against the HPM of b.
func run(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	c, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	err := c.run(ctx, b, w, args[1:])
	if errors.Is(err, errUsage) {
		return fmt.Errorf("%w: %s", err, c.usage)
	}
	return err
}

func cmdInfo(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	mode, err := d.Mode()
	if err != nil {
		return err
	}
	version, err := d.Version()
	if err != nil {
		return err
	}
	ps, err := d.PowerState()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "mode:        %q\nversion:     %s\npower state: %d\n", mode, version, ps)
	if b.Bus == nil {
		return nil
	}
	stalled, err := b.Bus.BusStalled()
	if err != nil {
		return err
	}
	counters, err := b.Bus.Counters()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "bus status:  %s\nbus stalled: %v\ncounters:    %d\n", b.Bus.Status(), stalled, counters)
	return nil
}

func cmdPowerUp(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	if err := d.PowerUp(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "power state: 0")
	return nil
}

func cmdCommand(ctx context.Context, b *board.Board, w io.Writer, args []string) (err error) {
	d := b.HPM
	if len(args) < 1 || len(args) > 3 || len(args[0]) != 4 {
		return errUsage
	}
	var in []byte
	if len(args) > 1 {
		in, err = hex.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	var outLen int
	if len(args) > 2 {
		outLen, err = strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	out, err := d.Command(ctx, args[0], in, outLen)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: ok %x\n", args[0], out)
	return nil
}

func cmdEvents(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	events, err := d.ReadEvents()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "events: %v\n", events)
	return nil
}

func cmdRead(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	reg, err := parseReg(args[0])
	if err != nil {
		return err
	}
	n := hpm.RegisterSize(reg)
	if len(args) > 1 {
		if n, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	buf := make([]byte, n)
	if err := d.Read(reg, buf); err != nil {
		return err
	}
	fmt.Fprintf(w, "0x%02x: %x\n", reg, buf)
	return nil
}

func cmdWrite(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	if len(args) != 2 {
		return errUsage
	}
	reg, err := parseReg(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return d.Write(reg, data)
}

func cmdIRQs(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	state, err := d.DisableIRQs()
	if err != nil {
		if state.Valid() {
			d.RestoreIRQs(&state)
		}
		return err
	}
	mask := state.Mask()
	fmt.Fprintf(w, "int mask 1: %x\n", mask)
	return d.RestoreIRQs(&state)
}

func cmdWake(ctx context.Context, b *board.Board, w io.Writer, args []string) error {
	d := b.HPM
	return d.Wake()
}

func parseReg(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 7)
	if err != nil {
		return 0, fmt.Errorf("%w: register %q: %v", errUsage, s, err)
	}
	return uint8(v), nil
}
