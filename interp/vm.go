package interp

import (
	"context"
	"io"

	"github.com/rkhudov/btf/program"
)

// DefaultTapeSize is the number of cells in a fixed tape when no size is
// configured.
const DefaultTapeSize = 3000

// VM executes a validated program against a tape of T cells. A VM is a
// sequential state machine, good for one run. It never mutates the
// program, so a program can be shared between VM instances.
type VM[T CellKind] struct {
	program    *program.Program
	tape       []T
	tapeSize   int
	extensible bool
	head       int
	ip         int
}

// New creates a VM over prog. cells is the tape size; cells <= 0 selects
// DefaultTapeSize. A fixed tape is zero-filled up front and moving past
// its end is an error; an extensible tape starts empty and grows zero
// cells on demand with no upper bound.
func New[T CellKind](prog *program.Program, cells int, extensible bool) *VM[T] {
	if cells <= 0 {
		cells = DefaultTapeSize
	}
	vm := &VM[T]{
		program:    prog,
		tapeSize:   cells,
		extensible: extensible,
	}
	if !extensible {
		vm.tape = make([]T, cells)
	}
	return vm
}

// Head returns the index of the current tape cell.
func (vm *VM[T]) Head() int {
	return vm.head
}

// TapeLen returns the number of allocated tape cells.
func (vm *VM[T]) TapeLen() int {
	return len(vm.tape)
}

// At returns the value of tape cell i. Cells an extensible tape has not
// grown to yet read as zero.
func (vm *VM[T]) At(i int) T {
	if i < 0 || i >= len(vm.tape) {
		return 0
	}
	return vm.tape[i]
}

type flusher interface {
	Flush() error
}

// Run drives the program to completion, reading from input and writing to
// output one byte at a time. It returns nil when the instruction pointer
// walks off the end of the program, or the first error encountered.
func (vm *VM[T]) Run(input io.Reader, output io.Writer) error {
	return vm.RunContext(context.Background(), input, output)
}

// RunContext is Run with cancellation between instruction steps.
func (vm *VM[T]) RunContext(ctx context.Context, input io.Reader, output io.Writer) error {
	instructions := vm.program.Instructions()
	for vm.ip < len(instructions) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := vm.step(instructions[vm.ip], input, output); err != nil {
			return err
		}
	}
	return nil
}

// cell returns the cell under the head, growing an extensible tape with
// zero cells as needed. A fixed tape is fully allocated, so the head is
// always in range there.
func (vm *VM[T]) cell() *T {
	for vm.head >= len(vm.tape) {
		vm.tape = append(vm.tape, 0)
	}
	return &vm.tape[vm.head]
}

func (vm *VM[T]) step(in program.PositionedInstruction, input io.Reader, output io.Writer) error {
	switch in.Instruction {
	case program.MoveRight:
		if !vm.extensible && vm.head+1 == vm.tapeSize {
			return &TapeOverflowError{Line: in.Line, Column: in.Column}
		}
		vm.head++
	case program.MoveLeft:
		if vm.head == 0 {
			return &TapeUnderflowError{Line: in.Line, Column: in.Column}
		}
		vm.head--
	case program.Increment:
		c := vm.cell()
		*c++
	case program.Decrement:
		c := vm.cell()
		*c--
	case program.Output:
		buf := [1]byte{byte(*vm.cell())}
		if _, err := output.Write(buf[:]); err != nil {
			return &IOError{Line: in.Line, Column: in.Column, Err: err}
		}
		if f, ok := output.(flusher); ok {
			if err := f.Flush(); err != nil {
				return &IOError{Line: in.Line, Column: in.Column, Err: err}
			}
		}
	case program.Input:
		var buf [1]byte
		if _, err := io.ReadFull(input, buf[:]); err != nil {
			return &IOError{Line: in.Line, Column: in.Column, Err: err}
		}
		*vm.cell() = T(buf[0])
	case program.JumpIfZero:
		partner, ok := vm.program.Bracket(vm.ip)
		if !ok {
			return &MalformedProgramError{Line: in.Line, Column: in.Column}
		}
		if *vm.cell() == 0 {
			vm.ip = partner + 1
		} else {
			vm.ip++
		}
		return nil
	case program.JumpIfNonZero:
		partner, ok := vm.program.Bracket(vm.ip)
		if !ok {
			return &MalformedProgramError{Line: in.Line, Column: in.Column}
		}
		if *vm.cell() != 0 {
			vm.ip = partner + 1
		} else {
			vm.ip++
		}
		return nil
	}
	vm.ip++
	return nil
}
