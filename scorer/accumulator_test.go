package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorAppend(t *testing.T) {
	var acc Accumulator
	acc.Append(3, "r3")
	acc.Append(1, "r1")

	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, []int{3, 1}, acc.IDs())
	assert.Equal(t, []ImageResult{"r3", "r1"}, acc.Results())
}

func TestAccumulatorReplace(t *testing.T) {
	var acc Accumulator
	acc.Append(1, "old")

	acc.Replace([]int{5, 6}, []ImageResult{"a", "b"})
	assert.Equal(t, []int{5, 6}, acc.IDs())
	assert.Equal(t, []ImageResult{"a", "b"}, acc.Results())

	assert.Panics(t, func() {
		acc.Replace([]int{1}, []ImageResult{"a", "b"})
	})
}
