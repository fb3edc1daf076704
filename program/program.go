package program

import (
	"fmt"
	"io"
	"os"
)

// PositionedInstruction is an Instruction tagged with the 1-based line and
// column it was read from. Positions are used for error reporting only and
// never affect execution.
type PositionedInstruction struct {
	Instruction Instruction
	Line        int
	Column      int
}

func (p PositionedInstruction) String() string {
	return fmt.Sprintf("%d:%d] %s", p.Line, p.Column, p.Instruction)
}

// Program is a parsed brainfuck program: the name of its source, the
// instruction stream, and a bidirectional bracket map pairing each jump
// instruction with its partner. The bracket map is nil until
// ValidateBrackets succeeds; executing an unvalidated program fails at the
// first jump instruction.
type Program struct {
	name         string
	instructions []PositionedInstruction
	brackets     map[int]int
}

// Parse scans source character by character and collects the recognized
// instructions. Columns are 1-based, reset to 1 after each newline, and
// count every character including comments. Any character that is not one
// of the eight instruction symbols is a comment and is skipped, so Parse
// never fails.
func Parse(source, name string) *Program {
	p := &Program{name: name}
	line, column := 1, 1
	for _, c := range source {
		if c == '\n' {
			line++
			column = 1
			continue
		}
		if in := parse(c); in != Ignore {
			p.instructions = append(p.instructions, PositionedInstruction{
				Instruction: in,
				Line:        line,
				Column:      column,
			})
		}
		column++
	}
	return p
}

// Load reads the file at path and parses it. The path doubles as the
// program name in error messages.
func Load(path string) (*Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program file: %w", err)
	}
	return Parse(string(source), path), nil
}

// Name returns the source identifier the program was parsed from.
func (p *Program) Name() string {
	return p.name
}

// Instructions returns the instruction stream. The slice is owned by the
// program and must not be mutated.
func (p *Program) Instructions() []PositionedInstruction {
	return p.instructions
}

// Brackets returns the bracket map, or nil if the program has not been
// validated.
func (p *Program) Brackets() map[int]int {
	return p.brackets
}

// Bracket returns the partner index of the jump instruction at ip. ok is
// false if ip has no partner, which means the program was not validated.
func (p *Program) Bracket(ip int) (partner int, ok bool) {
	partner, ok = p.brackets[ip]
	return partner, ok
}

// ValidateBrackets checks that every '[' has a matching ']' and vice versa
// and that brackets nest properly. On success the bracket map is populated
// on the program. On failure the map is left untouched and the returned
// error carries the position of the offending bracket: the ']' itself for
// an unmatched close, the innermost still-unclosed '[' for an unmatched
// open.
func (p *Program) ValidateBrackets() error {
	brackets := make(map[int]int)
	var opened []int
	for ip, in := range p.instructions {
		switch in.Instruction {
		case JumpIfZero:
			opened = append(opened, ip)
		case JumpIfNonZero:
			if len(opened) == 0 {
				return &UnmatchedCloseBracketError{Line: in.Line, Column: in.Column}
			}
			open := opened[len(opened)-1]
			opened = opened[:len(opened)-1]
			brackets[open] = ip
			brackets[ip] = open
		}
	}
	if len(opened) > 0 {
		in := p.instructions[opened[len(opened)-1]]
		return &UnmatchedOpenBracketError{Line: in.Line, Column: in.Column}
	}
	p.brackets = brackets
	return nil
}

// Trace writes one line per instruction with its source location. It is a
// diagnostic aid, independent of execution.
func (p *Program) Trace(w io.Writer) error {
	for _, in := range p.instructions {
		if _, err := fmt.Fprintf(w, "[%s:%s\n", p.name, in); err != nil {
			return err
		}
	}
	return nil
}
