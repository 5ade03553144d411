package fabrica

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SequenceRegistry owns one monotonic counter per sequence root: the oldest
// non-abstract ancestor of a factory that carries the model. Every factory
// sharing a root increments the same counter.
//
// Counters are process-wide mutable state. The registry serializes its own
// bookkeeping, but concurrent generate calls racing on one root still
// interleave counter values; callers needing deterministic sequences must
// serialize generation or inject independent registries.
type SequenceRegistry struct {
	mu       sync.Mutex
	counters map[*Factory]*sequenceCounter
	sf       singleflight.Group
}

type sequenceCounter struct {
	mu    sync.Mutex
	ready bool
	next  int64
	init  func() (int64, error)
}

func NewSequenceRegistry() *SequenceRegistry {
	return &SequenceRegistry{
		counters: make(map[*Factory]*sequenceCounter),
	}
}

// defaultSequences backs every factory that does not inject its own registry.
var defaultSequences = NewSequenceRegistry()

func (r *SequenceRegistry) counter(root *Factory) *sequenceCounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[root]
	if !ok {
		c = &sequenceCounter{init: root.meta.initialSequence}
		r.counters[root] = c
	}
	return c
}

// Next returns the current counter value for root and advances it. The
// initial value is computed lazily, exactly once, on first use; concurrent
// first uses collapse into a single computation.
func (r *SequenceRegistry) Next(root *Factory) (int64, error) {
	c := r.counter(root)
	c.mu.Lock()
	for !c.ready {
		init := c.init
		c.mu.Unlock()
		_, err, _ := r.sf.Do(fmt.Sprintf("%p", root), func() (any, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.ready {
				return c.next, nil
			}
			start := int64(0)
			if init != nil {
				var err error
				start, err = init()
				if err != nil {
					return int64(0), err
				}
			}
			c.next = start
			c.ready = true
			return start, nil
		})
		if err != nil {
			return 0, fmt.Errorf("initial sequence for factory %q: %w", root.Name(), err)
		}
		c.mu.Lock()
	}
	v := c.next
	c.next++
	c.mu.Unlock()
	return v, nil
}

// Reset rewinds the counter for root so the next generate call observes
// exactly value.
func (r *SequenceRegistry) Reset(root *Factory, value int64) {
	c := r.counter(root)
	c.mu.Lock()
	c.next = value
	c.ready = true
	c.mu.Unlock()
}
