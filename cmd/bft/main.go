package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/log"

	"github.com/rkhudov/btf/interp"
	"github.com/rkhudov/btf/program"
)

var (
	filename   string
	cells      int
	extensible bool
	trace      bool
	debug      bool
)

func init() {
	flag.StringVar(&filename, "file", "", "brainfuck source file")
	flag.IntVar(&cells, "cells", 0, fmt.Sprintf("size of the VM tape (default %d)", interp.DefaultTapeSize))
	flag.BoolVar(&extensible, "extensible", false, "grow the tape on demand instead of failing at its end")
	flag.BoolVar(&trace, "trace", false, "print each instruction with its source location instead of executing")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
}

func run(ctx context.Context) error {
	prog, err := program.Load(filename)
	if err != nil {
		return err
	}
	log.G(ctx).Debugf("parsed %d instructions from %s", len(prog.Instructions()), prog.Name())

	if trace {
		return prog.Trace(os.Stdout)
	}

	if err := prog.ValidateBrackets(); err != nil {
		return err
	}
	log.G(ctx).Debugf("brackets validated: %d pairs", len(prog.Brackets())/2)

	vm := interp.New[uint8](prog, cells, extensible)
	return vm.RunContext(ctx, os.Stdin, os.Stdout)
}

func main() {
	flag.Parse()
	if filename == "" {
		fmt.Fprintln(os.Stderr, "bft: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	if debug {
		if err := log.SetLevel("debug"); err != nil {
			fmt.Fprintf(os.Stderr, "bft: %v\n", err)
			os.Exit(2)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bft: %v\n", err)
		os.Exit(1)
	}
}
