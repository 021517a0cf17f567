package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillUniformRange(t *testing.T) {
	rng := NewRNG(4711)

	v := make([]float32, 64)
	rng.FillUniformRange(v, -2, 3)

	for _, x := range v {
		assert.GreaterOrEqual(t, x, float32(-2))
		assert.Less(t, x, float32(3))
	}
}

func TestRecord(t *testing.T) {
	rng := NewRNG(4711)

	rec := rng.Record(4)

	assert.Len(t, rec, 4)
	for _, x := range rec {
		assert.GreaterOrEqual(t, x, float32(-1))
		assert.Less(t, x, float32(1))
	}
}

func TestScript(t *testing.T) {
	rng := NewRNG(4711)

	ops := rng.Script(500, 3)

	assert.Len(t, ops, 500)
	seen := map[OpKind]int{}
	for _, op := range ops {
		assert.GreaterOrEqual(t, op.Group, 0)
		assert.Less(t, op.Group, 3)
		assert.GreaterOrEqual(t, op.Pick, 0)
		seen[op.Kind]++
	}
	assert.Greater(t, seen[OpCreate], seen[OpDestroy])
	assert.Positive(t, seen[OpMove])
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	a := rng.Script(10, 4)

	rng.Reset()
	b := rng.Script(10, 4)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(4711), rng.Seed())
}
