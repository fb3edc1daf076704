package utils

import (
	"testing"
)

func TestTesting_CompareArrays(t *testing.T) {
	a := []int{1, 2, 3, 4, 5}
	b := []int{1, 2, 3, 4, 5}
	Assert(t, CompareArrays(a, b), "Arrays are not equal")
}

func TestTesting_CompareArrays_DifferentLengths(t *testing.T) {
	a := []int{1, 2, 3, 4, 5}
	b := []int{1, 2, 3, 4}
	Assert(t, !CompareArrays(a, b), "Arrays are equal")
}

func TestTesting_CompareMaps(t *testing.T) {
	a := map[int]int{1: 2, 3: 4}
	b := map[int]int{3: 4, 1: 2}
	Assert(t, CompareMaps(a, b), "Maps are not equal")
}

func TestTesting_CompareMaps_DifferentValues(t *testing.T) {
	a := map[int]int{1: 2, 3: 4}
	b := map[int]int{1: 2, 3: 5}
	Assert(t, !CompareMaps(a, b), "Maps are equal")
}
