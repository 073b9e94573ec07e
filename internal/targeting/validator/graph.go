package validator

import "bookswap/pkg/model"

// graph is the active-edge subgraph as an arena: listings are dense indices
// and adj[i] holds the targets of listing i's active edges.
type graph struct {
	index map[string]int
	ids   []string
	adj   [][]int
}

func newGraph(edges []*model.TargetingEdge) *graph {
	g := &graph{index: make(map[string]int, len(edges))}
	for _, e := range edges {
		from := g.node(e.SourceListingID)
		to := g.node(e.TargetListingID)
		g.adj[from] = append(g.adj[from], to)
	}
	return g
}

func (g *graph) node(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.index[id] = i
	g.ids = append(g.ids, id)
	g.adj = append(g.adj, nil)
	return i
}

func (g *graph) size() int {
	return len(g.ids)
}

// walk runs an iterative depth-first search from start. It stops when it
// reaches stop and returns the path start..stop, or nil when stop is not
// reachable. reached lists every listing entered, start first.
func (g *graph) walk(start, stop string) (path []string, reached []string) {
	from, ok := g.index[start]
	if !ok {
		return nil, []string{start}
	}
	to, ok := g.index[stop]
	if !ok {
		to = -1
	}

	parent := make([]int, len(g.ids))
	for i := range parent {
		parent[i] = -1
	}
	seen := make([]bool, len(g.ids))
	seen[from] = true
	reached = []string{start}
	stack := []int{from}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.adj[n] {
			if seen[next] {
				continue
			}
			seen[next] = true
			parent[next] = n
			if next == to {
				return g.path(parent, from, to), reached
			}
			reached = append(reached, g.ids[next])
			stack = append(stack, next)
		}
	}
	return nil, reached
}

func (g *graph) path(parent []int, from, to int) []string {
	var rev []int
	for n := to; n != from; n = parent[n] {
		rev = append(rev, n)
	}
	rev = append(rev, from)

	out := make([]string, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = g.ids[n]
	}
	return out
}
