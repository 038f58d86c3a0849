// Package depgraph links normalized package records into a dependency graph
// and produces a deterministic publish order.
//
// The graph is an index table plus edge lists rather than records owning
// references to each other, so cycle detection can traverse freely. Sorting
// uses Kahn's algorithm with a lexicographic tie-break: two runs over an
// unchanged workspace always yield an identical order, which checkpoint
// validation depends on.
package depgraph
