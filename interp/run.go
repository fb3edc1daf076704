package interp

import (
	"context"
	"io"

	"github.com/rkhudov/btf/program"
)

// RunSource parses, validates and runs source on a uint8 VM in one call.
// name labels the source in error messages.
func RunSource(ctx context.Context, source, name string, cells int, extensible bool, input io.Reader, output io.Writer) error {
	prog := program.Parse(source, name)
	if err := prog.ValidateBrackets(); err != nil {
		return err
	}
	return New[uint8](prog, cells, extensible).RunContext(ctx, input, output)
}
