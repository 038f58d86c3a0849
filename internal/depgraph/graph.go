package depgraph

import (
	"fmt"
	"sort"

	"cratewalk/internal/manifest"
)

// Graph is a directed dependency graph over workspace packages. Edges point
// from a dependent to its dependencies.
type Graph struct {
	packages []manifest.Package
	index    map[string]int
	// deps[i] lists the node indexes package i depends on.
	deps [][]int
	// dependents[i] lists the node indexes that depend on package i.
	dependents [][]int
}

// Build constructs the graph from normalized records. Duplicate package
// names and dependency references to names outside the node set are fatal:
// both indicate workspace misconfiguration, since normalization already
// filtered dependencies to workspace-internal ones.
func Build(packages []manifest.Package) (*Graph, error) {
	g := &Graph{
		packages:   make([]manifest.Package, len(packages)),
		index:      make(map[string]int, len(packages)),
		deps:       make([][]int, len(packages)),
		dependents: make([][]int, len(packages)),
	}
	copy(g.packages, packages)

	for i, pkg := range g.packages {
		if prev, ok := g.index[pkg.Name]; ok {
			return nil, fmt.Errorf("duplicate package name %q declared by %s and %s",
				pkg.Name, g.packages[prev].Dir, pkg.Dir)
		}
		g.index[pkg.Name] = i
	}

	for i, pkg := range g.packages {
		for _, dep := range pkg.WorkspaceDeps {
			j, ok := g.index[dep]
			if !ok {
				return nil, fmt.Errorf("package %s depends on %q which is not a workspace member", pkg.Name, dep)
			}
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.packages)
}

// Packages returns the node records in insertion order.
func (g *Graph) Packages() []manifest.Package {
	out := make([]manifest.Package, len(g.packages))
	copy(out, g.packages)
	return out
}

// CycleError reports one concrete dependency cycle.
type CycleError struct {
	// Path lists the cycle members in dependency order; the first name is
	// repeated at the end.
	Path []string
}

func (e *CycleError) Error() string {
	joined := ""
	for i, name := range e.Path {
		if i > 0 {
			joined += " -> "
		}
		joined += name
	}
	return fmt.Sprintf("circular dependency: %s", joined)
}

// Sort returns every package exactly once, dependencies strictly before
// dependents. Among ready packages the lexicographically smallest name is
// always emitted first, so the order is a pure function of the graph.
func (g *Graph) Sort() ([]manifest.Package, error) {
	remaining := make([]int, g.Len())
	var frontier []string
	for i, pkg := range g.packages {
		remaining[i] = len(g.deps[i])
		if remaining[i] == 0 {
			frontier = append(frontier, pkg.Name)
		}
	}
	sort.Strings(frontier)

	order := make([]manifest.Package, 0, g.Len())
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		i := g.index[name]
		order = append(order, g.packages[i])

		for _, j := range g.dependents[i] {
			remaining[j]--
			if remaining[j] == 0 {
				frontier = insertSorted(frontier, g.packages[j].Name)
			}
		}
	}

	if len(order) != g.Len() {
		return nil, &CycleError{Path: g.findCycle(remaining)}
	}
	return order, nil
}

// insertSorted keeps the ready frontier ordered by name.
func insertSorted(frontier []string, name string) []string {
	at := sort.SearchStrings(frontier, name)
	frontier = append(frontier, "")
	copy(frontier[at+1:], frontier[at:])
	frontier[at] = name
	return frontier
}

// findCycle walks unemitted dependency edges from the smallest stuck node
// until a repeat closes a concrete cycle. Every node left with a nonzero
// count has at least one unemitted dependency, so the walk cannot dead-end.
func (g *Graph) findCycle(remaining []int) []string {
	start := -1
	for i := range g.packages {
		if remaining[i] == 0 {
			continue
		}
		if start == -1 || g.packages[i].Name < g.packages[start].Name {
			start = i
		}
	}
	if start == -1 {
		return nil
	}

	seen := make(map[int]int)
	var path []int
	current := start
	for {
		if at, ok := seen[current]; ok {
			cycle := path[at:]
			names := make([]string, 0, len(cycle)+1)
			for _, i := range cycle {
				names = append(names, g.packages[i].Name)
			}
			names = append(names, g.packages[current].Name)
			return names
		}
		seen[current] = len(path)
		path = append(path, current)

		next := -1
		for _, j := range g.deps[current] {
			if remaining[j] == 0 {
				continue
			}
			if next == -1 || g.packages[j].Name < g.packages[next].Name {
				next = j
			}
		}
		current = next
	}
}
