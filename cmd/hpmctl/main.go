// Command hpmctl talks to the USB-PD controller (HPM) of a machine during
// bring-up.
//
//	hpmctl [flags] info
//	hpmctl [flags] cmd SSPS 00
//	hpmctl -sim shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"

	"github.com/soypat/spmi/internal/board"
)

func main() {
	var cfg board.SetupConfig
	cfg.RegisterFlags(flag.CommandLine)
	verbose := flag.Bool("v", false, "Verbose logging.")
	debugBus := flag.Bool("debug-bus", false, "Log every SPMI transaction.")
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "hpmctl - USB-PD controller bring-up tool.\n\tUsage: hpmctl [flags] COMMAND [ARGS]\nCommands:\n")
		fmt.Fprintf(out, "\tshell\n")
		for _, name := range commandNames() {
			fmt.Fprintf(out, "\t%s\n", commands[name].usage)
		}
		fmt.Fprintf(out, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	if *debugBus {
		level = slog.LevelDebug - 1
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := execute(ctx, cfg, flag.Args())
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, "hpmctl:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, cfg board.SetupConfig, args []string) error {
	if _, ok := commands[args[0]]; !ok && args[0] != "shell" {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	b, err := board.Setup(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if args[0] == "shell" {
		return shell(ctx, b, os.Stdin, os.Stdout)
	}
	return run(ctx, b, os.Stdout, args)
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
