package fabrica

import (
	"fmt"
	"strings"
)

// GraphNode is one attribute of a factory's merged declaration set, or a
// referenced factory.
type GraphNode struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// GraphEdge means "From depends on To". Only statically-known dependencies
// appear: self paths between siblings and sub/related factory references.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a static dependency snapshot of one factory, for fixture-suite
// diagnosis. Lazy attribute closures are opaque and contribute no edges.
type Graph struct {
	Factory string      `json:"factory"`
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
}

// Graph exports the declaration graph of this factory.
func (f *Factory) Graph() Graph {
	g := Graph{Factory: f.Name()}
	seen := make(map[string]struct{}, len(f.meta.entries))

	addFactoryNode := func(ref Referencer) (string, bool) {
		target, err := ref.factoryRef()
		if err != nil {
			return "", false
		}
		name := target.Name()
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			g.Nodes = append(g.Nodes, GraphNode{Name: name, Kind: "factory"})
		}
		return name, true
	}

	for _, e := range f.meta.entries {
		seen[e.name] = struct{}{}
		g.Nodes = append(g.Nodes, GraphNode{Name: e.name, Kind: e.decl.Kind().String()})
	}
	for _, e := range f.meta.entries {
		switch d := e.decl.(type) {
		case selfAttrDecl:
			if d.ascents == 0 && len(d.segments) > 0 {
				if _, sibling := seen[d.segments[0]]; sibling {
					g.Edges = append(g.Edges, GraphEdge{From: e.name, To: d.segments[0]})
				}
			}
		case maybeDecl:
			if _, sibling := seen[d.decider]; sibling {
				g.Edges = append(g.Edges, GraphEdge{From: e.name, To: d.decider})
			}
		case subFactoryDecl:
			if to, ok := addFactoryNode(d.ref); ok {
				g.Edges = append(g.Edges, GraphEdge{From: e.name, To: to})
			}
		case relatedFactoryDecl:
			if to, ok := addFactoryNode(d.ref); ok {
				g.Edges = append(g.Edges, GraphEdge{From: e.name, To: to})
			}
		}
	}
	return g
}

// DOT exports Graphviz DOT text.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph fabrica {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeDOT(n.Name)
		if n.Kind != "" {
			label = label + "\\n(" + escapeDOT(n.Kind) + ")"
		}
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\"];\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", from, to))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeMermaid(n.Name)
		if n.Kind != "" {
			label = label + "<br/>(" + escapeMermaid(n.Kind) + ")"
		}
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
	}
	return b.String()
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
