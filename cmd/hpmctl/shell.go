package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soypat/spmi/internal/board"
	"golang.org/x/term"
)

const prompt = "hpm> "

// lineReader reads shell input one line at a time.
type lineReader interface {
	ReadLine() (string, error)
}

type scanLines struct{ s *bufio.Scanner }

func (l scanLines) ReadLine() (string, error) {
	if !l.s.Scan() {
		if err := l.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return l.s.Text(), nil
}

// shell runs commands read from in until EOF or "exit". A terminal on in is
// put in raw mode and gets line editing and history.
func shell(ctx context.Context, b *board.Board, in *os.File, out io.Writer) error {
	var lines lineReader = scanLines{bufio.NewScanner(in)}
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("setting raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, out}, prompt)
		lines, out = t, t
	}
	fmt.Fprintf(out, "connected to %s, type help for commands\n", b.Name)
	return repl(ctx, b, lines, out)
}

func repl(ctx context.Context, b *board.Board, lines lineReader, out io.Writer) error {
	for ctx.Err() == nil {
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		case "help":
			for _, name := range commandNames() {
				fmt.Fprintln(out, commands[name].usage)
			}
			continue
		}
		if err := run(ctx, b, out, args); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
	return ctx.Err()
}
