package fabrica

import (
	"fmt"
	"strings"
)

// AbstractFactoryError means a build or create was attempted on a factory
// that is abstract, either explicitly or because no model is reachable.
type AbstractFactoryError struct {
	Factory string
}

func (e AbstractFactoryError) Error() string {
	return fmt.Sprintf("factory %q is abstract and cannot generate objects", e.Factory)
}

// UnknownAttributeError means a lazy reference, dotted override, or self
// path named an attribute that is not declared.
type UnknownAttributeError struct {
	Factory string
	Attr    string
}

func (e UnknownAttributeError) Error() string {
	return fmt.Sprintf("factory %q has no attribute %q", e.Factory, e.Attr)
}

// CyclicAttributeError means attribute resolution re-entered an attribute
// already being resolved in the same call.
type CyclicAttributeError struct {
	Factory string
	Path    []string
}

func (e CyclicAttributeError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("factory %q: cyclic attribute reference", e.Factory)
	}
	return fmt.Sprintf("factory %q: cyclic attribute reference: %s",
		e.Factory, strings.Join(e.Path, " -> "))
}

// InvalidPathError means a SelfAttr path is malformed or ascends above the
// outermost resolver.
type InvalidPathError struct {
	Factory string
	Path    string
	Reason  string
}

func (e InvalidPathError) Error() string {
	return fmt.Sprintf("factory %q: invalid self path %q: %s", e.Factory, e.Path, e.Reason)
}

// SequenceResetError means a sequence reset was attempted on a factory that
// does not own its lineage's counter.
type SequenceResetError struct {
	Factory string
	Root    string
}

func (e SequenceResetError) Error() string {
	return fmt.Sprintf("factory %q does not own its sequence counter (root is %q); use ForceResetSequence to forward",
		e.Factory, e.Root)
}

// IteratorExhaustedError means a non-cycling Iterator ran out of values.
type IteratorExhaustedError struct {
	Attr string
}

func (e IteratorExhaustedError) Error() string {
	if e.Attr == "" {
		return "iterator exhausted"
	}
	return fmt.Sprintf("iterator for attribute %q exhausted", e.Attr)
}

// OverrideError means a call-time override has a shape the declaration
// cannot accept.
type OverrideError struct {
	Factory string
	Attr    string
	Reason  string
}

func (e OverrideError) Error() string {
	return fmt.Sprintf("factory %q: invalid override for %q: %s", e.Factory, e.Attr, e.Reason)
}

// DuplicateAttrError means the same attribute name appears twice in one
// definition.
type DuplicateAttrError struct {
	Factory string
	Attr    string
}

func (e DuplicateAttrError) Error() string {
	return fmt.Sprintf("factory %q declares attribute %q more than once", e.Factory, e.Attr)
}

// TypeMismatchError means BuildAs[T] or CreateAs[T] failed to cast the
// generated object to T.
type TypeMismatchError struct {
	Factory  string
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("factory %q produced wrong type: expected=%s actual=%s",
		e.Factory, e.Expected, e.Actual)
}
