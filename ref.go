package fabrica

import (
	"fmt"
	"sync"
)

// Referencer yields the factory behind a SubFactory or RelatedFactory
// declaration. *Factory refers to itself; *LazyRef defers the lookup until
// first use so mutually recursive factories can reference each other.
type Referencer interface {
	factoryRef() (*Factory, error)
}

func (f *Factory) factoryRef() (*Factory, error) {
	if f == nil {
		return nil, fmt.Errorf("factory reference is nil")
	}
	return f, nil
}

// LazyRef is a once-cell factory reference resolved on first use.
type LazyRef struct {
	once sync.Once
	fn   func() (*Factory, error)
	f    *Factory
	err  error
}

// Deferred wraps a function evaluated once, on first use of the reference.
func Deferred(fn func() *Factory) *LazyRef {
	return &LazyRef{fn: func() (*Factory, error) {
		f := fn()
		if f == nil {
			return nil, fmt.Errorf("deferred factory reference resolved to nil")
		}
		return f, nil
	}}
}

// Lookup defers a by-name lookup in a Registry until first use.
func Lookup(reg *Registry, name string) *LazyRef {
	return &LazyRef{fn: func() (*Factory, error) {
		f, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("factory %q not registered", name)
		}
		return f, nil
	}}
}

func (r *LazyRef) factoryRef() (*Factory, error) {
	r.once.Do(func() {
		r.f, r.err = r.fn()
	})
	return r.f, r.err
}
