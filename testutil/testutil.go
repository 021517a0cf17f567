package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // reproducible test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed)) //nolint:gosec // reproducible test data
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*span
	}
}

// Record returns a random record of n components in [-1, 1).
func (r *RNG) Record(n int) []float32 {
	rec := make([]float32, n)
	r.FillUniformRange(rec, -1, 1)
	return rec
}

// OpKind is the kind of a scripted structural operation.
type OpKind int

const (
	// OpCreate creates an object in Group.
	OpCreate OpKind = iota
	// OpMove moves the Pick-th live object to Group.
	OpMove
	// OpDestroy destroys the Pick-th live object.
	OpDestroy
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpMove:
		return "move"
	default:
		return "destroy"
	}
}

// Op is one scripted operation. Pick is an arbitrary non-negative number;
// callers reduce it modulo their live object count.
type Op struct {
	Kind  OpKind
	Group int
	Pick  int
}

// Script returns n operations over groups [0, groups). Creates are weighted
// so the population grows on average.
func (r *RNG) Script(n, groups int) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]Op, n)
	for i := range ops {
		var kind OpKind
		switch x := r.rand.Intn(10); {
		case x < 5:
			kind = OpCreate
		case x < 7:
			kind = OpMove
		default:
			kind = OpDestroy
		}
		ops[i] = Op{
			Kind:  kind,
			Group: r.rand.Intn(groups),
			Pick:  r.rand.Intn(1 << 30),
		}
	}
	return ops
}
