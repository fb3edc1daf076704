package program

// Instruction is a single brainfuck instruction. The underlying value is
// the source symbol it was parsed from.
type Instruction rune

const (
	MoveRight     Instruction = '>'
	MoveLeft      Instruction = '<'
	Increment     Instruction = '+'
	Decrement     Instruction = '-'
	Output        Instruction = '.'
	Input         Instruction = ','
	JumpIfZero    Instruction = '['
	JumpIfNonZero Instruction = ']'
	Ignore        Instruction = 0
)

func parse(c rune) Instruction {
	switch c {
	case '>':
		return MoveRight
	case '<':
		return MoveLeft
	case '+':
		return Increment
	case '-':
		return Decrement
	case '.':
		return Output
	case ',':
		return Input
	case '[':
		return JumpIfZero
	case ']':
		return JumpIfNonZero
	default:
		return Ignore
	}
}

// Symbol returns the source character of the instruction.
func (in Instruction) Symbol() rune {
	return rune(in)
}

// String returns the human-readable name of the instruction.
func (in Instruction) String() string {
	switch in {
	case MoveRight:
		return "Increment data pointer"
	case MoveLeft:
		return "Decrement data pointer"
	case Increment:
		return "Increment byte"
	case Decrement:
		return "Decrement byte"
	case Output:
		return "Output byte"
	case Input:
		return "Accept byte"
	case JumpIfZero:
		return "Zero jump"
	case JumpIfNonZero:
		return "Non zero jump"
	default:
		return "Ignore"
	}
}
