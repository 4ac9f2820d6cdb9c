package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 encapsulates a float64 for non-locking atomic operations.
// Value table cells are written by the training routine while views sample them.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead returns the current value, synchronized with other readers and writers.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet unconditionally stores a new value.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicUpdate applies fn to the current value and stores the result, retrying
// if another writer changed the value in between. fn may run more than once and
// must therefore be free of side effects. Returns the stored value.
func (af *AtomicFloat64) AtomicUpdate(fn func(old float64) float64) float64 {
	for {
		oldBits := af.bits.Load()
		newVal := fn(math.Float64frombits(oldBits))
		if af.bits.CompareAndSwap(oldBits, math.Float64bits(newVal)) {
			return newVal
		}
	}
}
