// Package graph provides the small undirected graph used for food routing
// and for recording which food nodes the colony has connected.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownNode is returned when a query names a node not in the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNoPath is returned when two nodes are not connected.
	ErrNoPath = errors.New("no path")
)

// NodeID identifies a node. Food nodes use their dense food id.
type NodeID int

// Edge is an undirected edge, normalized so that A < B.
type Edge struct {
	A NodeID `json:"a" db:"a"`
	B NodeID `json:"b" db:"b"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%d-%d", e.A, e.B)
}

// Graph is an undirected simple graph (no self loops, no multi-edges).
// The zero value is not usable; call New.
type Graph struct {
	adj   map[NodeID]map[NodeID]struct{}
	edges int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{adj: make(map[NodeID]map[NodeID]struct{})}
}

// Complete creates the complete graph over nodes 0..n-1.
func Complete(n int) *Graph {
	g := New()
	for i := 0; i < n; i++ {
		g.AddNode(NodeID(i))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g.AddEdge(NodeID(i), NodeID(j))
		}
	}
	return g
}

// AddNode adds a node if it is not already present.
func (g *Graph) AddNode(id NodeID) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[NodeID]struct{})
	}
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.adj[id]
	return ok
}

// AddEdge inserts the undirected edge a-b, adding missing endpoints.
// Self loops and existing edges are ignored. Returns true if the edge is new.
func (g *Graph) AddEdge(a, b NodeID) bool {
	if a == b || g.HasEdge(a, b) {
		return false
	}
	g.AddNode(a)
	g.AddNode(b)
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	g.edges++
	return true
}

// HasEdge reports whether a and b are adjacent.
func (g *Graph) HasEdge(a, b NodeID) bool {
	_, ok := g.adj[a][b]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.adj)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Nodes returns all node ids in ascending order.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, 0, len(g.adj))
	for id := range g.adj {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Neighbors returns the ids adjacent to id in ascending order.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	nbrs := make([]NodeID, 0, len(g.adj[id]))
	for n := range g.adj[id] {
		nbrs = append(nbrs, n)
	}
	sort.Slice(nbrs, func(i, j int) bool { return nbrs[i] < nbrs[j] })
	return nbrs
}

// Edges returns every edge once, sorted by (A, B).
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.edges)
	for a, nbrs := range g.adj {
		for b := range nbrs {
			if a < b {
				edges = append(edges, Edge{A: a, B: b})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A < edges[j].A
		}
		return edges[i].B < edges[j].B
	})
	return edges
}

// ShortestPath returns a minimum-hop path from -> to, both ends included.
// Ties are broken toward lower node ids.
func (g *Graph) ShortestPath(from, to NodeID) ([]NodeID, error) {
	if !g.HasNode(from) {
		return nil, fmt.Errorf("shortest path from %d: %w", from, ErrUnknownNode)
	}
	if !g.HasNode(to) {
		return nil, fmt.Errorf("shortest path to %d: %w", to, ErrUnknownNode)
	}
	if from == to {
		return []NodeID{from}, nil
	}

	// The food graph is complete, so the direct edge settles most queries
	// without a full search.
	if g.HasEdge(from, to) {
		return []NodeID{from, to}, nil
	}

	prev := map[NodeID]NodeID{from: from}
	queue := []NodeID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbors(cur) {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == to {
				return walkBack(prev, from, to), nil
			}
			queue = append(queue, n)
		}
	}
	return nil, fmt.Errorf("shortest path %d -> %d: %w", from, to, ErrNoPath)
}

func walkBack(prev map[NodeID]NodeID, from, to NodeID) []NodeID {
	var path []NodeID
	for n := to; n != from; n = prev[n] {
		path = append(path, n)
	}
	path = append(path, from)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// IsSubgraphOf reports whether every edge of g is also an edge of other.
func (g *Graph) IsSubgraphOf(other *Graph) bool {
	for a, nbrs := range g.adj {
		for b := range nbrs {
			if !other.HasEdge(a, b) {
				return false
			}
		}
	}
	return true
}
