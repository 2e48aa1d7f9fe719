package graph

import (
	"fmt"
	"strings"
)

// Point is a node coordinate used when rendering.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RenderNode is one node of a rendered graph.
type RenderNode struct {
	ID      NodeID `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Reached bool   `json:"reached"`
}

// Rendered is the JSON form of a graph with node positions.
type Rendered struct {
	Nodes []RenderNode `json:"nodes"`
	Edges []Edge       `json:"edges"`
}

// Render builds the JSON form. positions maps node ids to grid cells;
// reached marks nodes that have been touched.
func Render(g *Graph, positions map[NodeID]Point, reached map[NodeID]bool) Rendered {
	out := Rendered{
		Nodes: make([]RenderNode, 0, g.NodeCount()),
		Edges: g.Edges(),
	}
	for _, id := range g.Nodes() {
		p := positions[id]
		out.Nodes = append(out.Nodes, RenderNode{ID: id, X: p.X, Y: p.Y, Reached: reached[id]})
	}
	return out
}

// RenderDOT produces a Graphviz DOT representation. Node positions are
// emitted as pinned neato coordinates with y flipped so north is up.
func RenderDOT(name string, r Rendered) string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph %q {\n", name)
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [shape=circle, style=filled, width=0.15, label=\"\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [color=darkorange, penwidth=2];\n\n")

	for _, n := range r.Nodes {
		color := "lightgray"
		if n.Reached {
			color = "seagreen"
		}
		fmt.Fprintf(&b, "  n%d [pos=\"%d,%d!\", fillcolor=%q, tooltip=\"food %d\"];\n",
			n.ID, n.X, -n.Y, color, n.ID)
	}
	b.WriteString("\n")

	for _, e := range r.Edges {
		fmt.Fprintf(&b, "  n%d -- n%d;\n", e.A, e.B)
	}

	b.WriteString("}\n")
	return b.String()
}
