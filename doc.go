// Package fabrica generates fully-populated test fixtures from declarative
// attribute rules.
//
// It offers:
// - ordered attribute declarations (values, sequences, lazy attributes, iterators)
// - nested factories with call-time "outer__inner" overrides
// - build, create (persist), and stub generation strategies
// - factory inheritance with trait-conditional declaration bundles
// - post-generation hooks applied to the built object in declaration order
// - shared sequence counters per factory lineage
package fabrica
