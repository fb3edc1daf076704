package interp

import "fmt"

// TapeOverflowError reports a move past the last cell of a fixed tape.
type TapeOverflowError struct {
	Line   int
	Column int
}

func (e *TapeOverflowError) Error() string {
	return fmt.Sprintf("tape overflow at line %d column %d", e.Line, e.Column)
}

// TapeUnderflowError reports a move before the first cell of the tape.
type TapeUnderflowError struct {
	Line   int
	Column int
}

func (e *TapeUnderflowError) Error() string {
	return fmt.Sprintf("tape underflow at line %d column %d", e.Line, e.Column)
}

// IOError reports a failed one-byte transfer at an input or output
// instruction. End of input on ',' is an IOError like any other.
type IOError struct {
	Line   int
	Column int
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error at line %d column %d: %v", e.Line, e.Column, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MalformedProgramError reports a jump instruction with no bracket-map
// entry. It means an unvalidated or invalid program reached execution and
// should be unreachable after ValidateBrackets succeeds.
type MalformedProgramError struct {
	Line   int
	Column int
}

func (e *MalformedProgramError) Error() string {
	return fmt.Sprintf("malformed program: unresolved bracket at line %d column %d", e.Line, e.Column)
}
