package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fieldnet/internal/ir"
)

// CycleWarning represents a route cycle in a scene.
//
// Cycles are warnings, not errors: field evaluation terminates on a cycle
// because a field already inside its own recomputation does not recompute
// again, and notification stops at fields that are already invalid. The
// values a cyclic scene settles on depend on which field is read first.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A.x", "B.y", "A.x"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a scene's routes.
//
// The algorithm:
//  1. Build the field → field route graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// A DAG (no cycles) returns an empty warning list. Warnings are sorted by
// their first path element so the output is deterministic.
func AnalyzeCycles(spec *ir.SceneSpec) []CycleWarning {
	if spec == nil || len(spec.Routes) == 0 {
		return []CycleWarning{}
	}

	graph := buildRouteGraph(spec.Routes)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})

	return warnings
}

// routeGraph maps a field path to the fields it routes to, in declaration
// order.
type routeGraph struct {
	nodes []string
	edges map[string][]string
}

func buildRouteGraph(routes []ir.RouteSpec) routeGraph {
	g := routeGraph{edges: make(map[string][]string)}
	add := func(n string) {
		if _, ok := g.edges[n]; !ok {
			g.edges[n] = []string{}
			g.nodes = append(g.nodes, n)
		}
	}
	for _, r := range routes {
		from, to := r.From.String(), r.To.String()
		add(from)
		add(to)
		g.edges[from] = append(g.edges[from], to)
	}
	return g
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph routeGraph) bool {
	return slices.Contains(graph.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of field paths. Nodes are
// visited in first-declaration order, and each SCC is rotated to start at
// its earliest-declared member.
func tarjanSCC(graph routeGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.SortFunc(scc, func(a, b string) int {
				return indices[a] - indices[b]
			})
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph routeGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Field routed to itself: %s → %s", id, id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Route cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC by following edges
// inside the SCC from its first member back to itself.
func reconstructCyclePath(scc []string, graph routeGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph.edges[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
