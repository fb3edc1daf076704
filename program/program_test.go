package program_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rkhudov/btf/program"
	"github.com/rkhudov/btf/utils"
)

func TestParse_PositionsAndComments(t *testing.T) {
	p := program.Parse("sometext\n><+-.,[]\ncomment <", "testfilename")
	utils.AssertEqual(t, p.Name(), "testfilename")
	utils.AssertEqual(t, len(p.Instructions()), 9)

	expectedLines := []int{2, 2, 2, 2, 2, 2, 2, 2, 3}
	expectedColumns := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	var actualLines, actualColumns []int
	for _, in := range p.Instructions() {
		actualLines = append(actualLines, in.Line)
		actualColumns = append(actualColumns, in.Column)
	}
	utils.AssertEqualArrays(t, expectedLines, actualLines)
	utils.AssertEqualArrays(t, expectedColumns, actualColumns)
}

func TestParse_Instructions(t *testing.T) {
	p := program.Parse("+-<>.,[]", "test")
	expected := []program.Instruction{
		program.Increment,
		program.Decrement,
		program.MoveLeft,
		program.MoveRight,
		program.Output,
		program.Input,
		program.JumpIfZero,
		program.JumpIfNonZero,
	}
	var actual []program.Instruction
	for _, in := range p.Instructions() {
		actual = append(actual, in.Instruction)
	}
	utils.AssertEqualArrays(t, expected, actual)
}

func TestParse_CommentsOnly(t *testing.T) {
	p := program.Parse("hello sailor\nno instructions here", "test")
	utils.AssertEqual(t, len(p.Instructions()), 0)
}

func TestValidateBrackets_Balanced(t *testing.T) {
	p := program.Parse("sometext\n><+-.,[]\ncomment <", "test")
	utils.AssertNoError(t, p.ValidateBrackets())
	utils.AssertEqualMaps(t, p.Brackets(), map[int]int{6: 7, 7: 6})
}

func TestValidateBrackets_Nested(t *testing.T) {
	p := program.Parse("[[]]", "test")
	utils.AssertNoError(t, p.ValidateBrackets())
	utils.AssertEqualMaps(t, p.Brackets(), map[int]int{0: 3, 3: 0, 1: 2, 2: 1})
}

func TestValidateBrackets_Sequential(t *testing.T) {
	p := program.Parse("[][]", "test")
	utils.AssertNoError(t, p.ValidateBrackets())
	utils.AssertEqualMaps(t, p.Brackets(), map[int]int{0: 1, 1: 0, 2: 3, 3: 2})
}

func TestValidateBrackets_Involution(t *testing.T) {
	p := program.Parse("+[>[-]<[[]]]", "test")
	utils.AssertNoError(t, p.ValidateBrackets())
	for i, partner := range p.Brackets() {
		utils.AssertEqual(t, p.Brackets()[partner], i)
	}
}

func TestValidateBrackets_NoBrackets(t *testing.T) {
	p := program.Parse("><+-.,", "test")
	utils.AssertNoError(t, p.ValidateBrackets())
	utils.AssertEqual(t, len(p.Brackets()), 0)
}

func TestValidateBrackets_UnmatchedOpen(t *testing.T) {
	p := program.Parse("+[", "test")
	err := p.ValidateBrackets()
	utils.AssertError(t, err)
	var open *program.UnmatchedOpenBracketError
	if utils.AssertErrorAs(t, err, &open) {
		utils.AssertEqual(t, open.Line, 1)
		utils.AssertEqual(t, open.Column, 2)
	}
	utils.AssertEqual(t, len(p.Brackets()), 0)
}

func TestValidateBrackets_UnmatchedOpenInnermost(t *testing.T) {
	// both brackets dangle; the innermost (last opened) one is reported
	p := program.Parse("[[", "test")
	var open *program.UnmatchedOpenBracketError
	if utils.AssertErrorAs(t, p.ValidateBrackets(), &open) {
		utils.AssertEqual(t, open.Column, 2)
	}
}

func TestValidateBrackets_UnmatchedClose(t *testing.T) {
	p := program.Parse("]", "test")
	err := p.ValidateBrackets()
	utils.AssertError(t, err)
	var closed *program.UnmatchedCloseBracketError
	if utils.AssertErrorAs(t, err, &closed) {
		utils.AssertEqual(t, closed.Line, 1)
		utils.AssertEqual(t, closed.Column, 1)
	}
}

func TestValidateBrackets_CloseBeforeOpen(t *testing.T) {
	p := program.Parse("sometext\n><+-.,][\ncomment <", "test")
	err := p.ValidateBrackets()
	utils.AssertError(t, err)
	utils.AssertEqual(t, err.Error(), "no open bracket found matching bracket at line 2 column 7")
}

func TestValidateBrackets_OpenNeverClosed(t *testing.T) {
	p := program.Parse("sometext\n><+-.,[[]\ncomment <", "test")
	err := p.ValidateBrackets()
	utils.AssertError(t, err)
	utils.AssertEqual(t, err.Error(), "no close bracket found matching bracket at line 2 column 7")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.bf")
	utils.AssertNoError(t, os.WriteFile(path, []byte("+[-]"), 0644))

	p, err := program.Load(path)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, p.Name(), path)
	utils.AssertEqual(t, len(p.Instructions()), 4)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := program.Load(filepath.Join(t.TempDir(), "nope.bf"))
	utils.AssertError(t, err)
	utils.AssertErrorIs(t, err, os.ErrNotExist)
}

func TestTrace(t *testing.T) {
	p := program.Parse("+\n-", "prog.bf")
	var buf bytes.Buffer
	utils.AssertNoError(t, p.Trace(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	expected := []string{
		"[prog.bf:1:1] Increment byte",
		"[prog.bf:2:1] Decrement byte",
	}
	utils.AssertEqualArrays(t, expected, lines)
}
