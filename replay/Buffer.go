// Package replay implements a fixed-capacity experience replay buffer
// with uniform random sampling.
package replay

import (
	"fmt"
	"math/rand"

	ts "github.com/Zyzzyva0381/dynamic-diffuser/timestep"
)

// Buffer is a bounded ring store of past transitions. Once the buffer
// is full the oldest transition is evicted on each insert. Sampling is
// uniform at random without replacement within a batch; the same
// transition may recur across different batches. Actions are stored as
// one-hot vectors, the form consumed by the training graph.
//
// Buffer is not safe for concurrent use; the control loop is
// single-threaded by design.
type Buffer struct {
	stateCache     []float64
	actionCache    []float64 // one-hot
	rewardCache    []float64
	doneCache      []float64 // 1 if the transition ended its episode
	nextStateCache []float64

	pos  int
	full bool

	capacity    int
	batchSize   int
	featureSize int
	numActions  int

	rng *rand.Rand
}

// New returns a Buffer holding at most capacity transitions of
// featureSize state features and numActions one-hot action slots,
// sampled batchSize at a time.
func New(capacity, batchSize, featureSize, numActions int,
	seed int64) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be positive, got %d",
			capacity)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("new: batch size must be positive, got %d",
			batchSize)
	}
	if batchSize > capacity {
		return nil, fmt.Errorf("new: cannot have batch size (%d) > "+
			"capacity (%d)", batchSize, capacity)
	}

	return &Buffer{
		stateCache:     make([]float64, capacity*featureSize),
		actionCache:    make([]float64, capacity*numActions),
		rewardCache:    make([]float64, capacity),
		doneCache:      make([]float64, capacity),
		nextStateCache: make([]float64, capacity*featureSize),

		capacity:    capacity,
		batchSize:   batchSize,
		featureSize: featureSize,
		numActions:  numActions,

		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Len returns the number of transitions currently in the buffer
func (b *Buffer) Len() int {
	if b.full {
		return b.capacity
	}
	return b.pos
}

// Capacity returns the maximum number of transitions the buffer holds
func (b *Buffer) Capacity() int {
	return b.capacity
}

// BatchSize returns the number of transitions returned by Sample
func (b *Buffer) BatchSize() int {
	return b.batchSize
}

// Add appends a transition, evicting the oldest one if the buffer is
// full
func (b *Buffer) Add(t ts.Transition) error {
	if t.State.Len() != b.featureSize || t.NextState.Len() != b.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", b.featureSize, t.State.Len())
	}
	if t.Action < 0 || t.Action >= b.numActions {
		return fmt.Errorf("add: action %d ∉ [0, %d)", t.Action,
			b.numActions)
	}

	index := b.pos

	stateInd := index * b.featureSize
	for i := 0; i < b.featureSize; i++ {
		b.stateCache[stateInd+i] = t.State.AtVec(i)
		b.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * b.numActions
	for i := 0; i < b.numActions; i++ {
		b.actionCache[actionInd+i] = 0
	}
	b.actionCache[actionInd+t.Action] = 1

	b.rewardCache[index] = t.Reward
	if t.Done {
		b.doneCache[index] = 1
	} else {
		b.doneCache[index] = 0
	}

	b.pos++
	if b.pos == b.capacity {
		b.pos = 0
		b.full = true
	}
	return nil
}

// Sample draws a uniformly random batch of transitions without
// replacement and returns the batched states, one-hot actions, rewards,
// done flags, and next states. If the buffer holds fewer transitions
// than the batch size, a typed error is returned for which
// IsInsufficientSamples (or IsEmptyBuffer) reports true.
func (b *Buffer) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, error) {
	size := b.Len()
	if size == 0 {
		return nil, nil, nil, nil, nil, &Error{Op: "sample",
			Err: errEmptyBuffer}
	}
	if size < b.batchSize {
		return nil, nil, nil, nil, nil, &Error{Op: "sample",
			Err: errInsufficientSamples}
	}

	indices := b.rng.Perm(size)[:b.batchSize]

	states := make([]float64, b.batchSize*b.featureSize)
	nextStates := make([]float64, b.batchSize*b.featureSize)
	actions := make([]float64, b.batchSize*b.numActions)
	rewards := make([]float64, b.batchSize)
	dones := make([]float64, b.batchSize)

	for i, index := range indices {
		batchInd := i * b.featureSize
		cacheInd := index * b.featureSize
		copy(states[batchInd:batchInd+b.featureSize],
			b.stateCache[cacheInd:cacheInd+b.featureSize])
		copy(nextStates[batchInd:batchInd+b.featureSize],
			b.nextStateCache[cacheInd:cacheInd+b.featureSize])

		batchInd = i * b.numActions
		cacheInd = index * b.numActions
		copy(actions[batchInd:batchInd+b.numActions],
			b.actionCache[cacheInd:cacheInd+b.numActions])

		rewards[i] = b.rewardCache[index]
		dones[i] = b.doneCache[index]
	}

	return states, actions, rewards, dones, nextStates, nil
}
