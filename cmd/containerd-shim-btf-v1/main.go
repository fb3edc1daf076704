package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/containerd/v2/pkg/shim"

	"github.com/rkhudov/btf/interp"
	btfshim "github.com/rkhudov/btf/shim"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Maybe hijack the shim binary to run as the interpreter. This is how
	// the task service runs programs inside containers: it re-execs itself
	// with the marker arg.
	hijack, args := isInterpreterArg(os.Args[1:])

	if hijack {
		if err := runInterpreter(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "bft: %v\n", err)
			os.Exit(1)
		}
		return
	}

	shim.Run(ctx, btfshim.NewManager("io.containerd.btf.v1"))
}

func isInterpreterArg(args []string) (bool, []string) {
	for i, arg := range args {
		if arg == "bft" {
			return true, append(args[:i], args[i+1:]...)
		}
	}
	return false, args
}

func runInterpreter(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bft", flag.ExitOnError)
	filename := fs.String("file", "", "brainfuck source file")
	cells := fs.Int("cells", 0, "size of the VM tape")
	extensible := fs.Bool("extensible", false, "grow the tape on demand")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *filename == "" {
		return fmt.Errorf("invalid argument: -file is required")
	}

	source, err := os.ReadFile(*filename)
	if err != nil {
		return err
	}

	return interp.RunSource(ctx, string(source), *filename, *cells, *extensible, os.Stdin, os.Stdout)
}
