package program

import "fmt"

// UnmatchedOpenBracketError reports a '[' with no matching ']'.
type UnmatchedOpenBracketError struct {
	Line   int
	Column int
}

func (e *UnmatchedOpenBracketError) Error() string {
	return fmt.Sprintf("no close bracket found matching bracket at line %d column %d", e.Line, e.Column)
}

// UnmatchedCloseBracketError reports a ']' with no matching '['.
type UnmatchedCloseBracketError struct {
	Line   int
	Column int
}

func (e *UnmatchedCloseBracketError) Error() string {
	return fmt.Sprintf("no open bracket found matching bracket at line %d column %d", e.Line, e.Column)
}
