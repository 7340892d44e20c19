package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/svm/internal/app"
)

// CycleWarning represents a feedback loop in the link graph.
//
// Loops are warnings, not errors: a value travelling around a loop is
// delayed by one scan per component whose execution order puts it
// downstream, which is how feedback controllers are built.
type CycleWarning struct {
	Path    []string `json:"path"`    // component paths: ["/a", "/b", "/a"]
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles reports every strongly connected set of components in
// the link graph of a, including components linked to themselves.
// Warnings are ordered by the first component path of each loop.
func AnalyzeCycles(a *app.App) []CycleWarning {
	graph := buildLinkGraph(a)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(x, y CycleWarning) int {
		return strings.Compare(x.Path[0], y.Path[0])
	})
	return warnings
}

// linkGraph maps a component path to the paths its outputs feed.
type linkGraph map[string][]string

func buildLinkGraph(a *app.App) linkGraph {
	graph := make(linkGraph)
	for _, l := range a.Links() {
		from := a.PathString(a.Lookup(l.FromComp))
		to := a.PathString(a.Lookup(l.ToComp))
		if graph[to] == nil {
			graph[to] = []string{}
		}
		if !slices.Contains(graph[from], to) {
			graph[from] = append(graph[from], to)
		}
	}
	return graph
}

func hasSelfLoop(node string, graph linkGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are reproducible.
func tarjanSCC(graph linkGraph) [][]string {
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

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

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
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph linkGraph) CycleWarning {
	if len(scc) == 1 {
		node := scc[0]
		return CycleWarning{
			Path:    []string{node, node},
			Message: fmt.Sprintf("component feeds itself: %s → %s", node, node),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("feedback loop: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath starts at the first SCC member and follows edges to
// other members until it returns to the start.
func reconstructCyclePath(scc []string, graph linkGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool)
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
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
