package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/xamarin/mirepoix/internal/depgraph"
)

//go:embed templates/graph.html
var templates embed.FS

var graphTemplate = template.Must(template.ParseFS(templates, "templates/graph.html"))

type visNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

type visEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GenerateHTML renders g as a standalone vis.js page. Edges point from a
// dependency to its dependent; projects that failed to load are red.
func GenerateHTML(g *depgraph.Graph) (string, error) {
	data := struct {
		Title string
		Nodes []visNode
		Edges []visEdge
	}{
		Title: "Project Graph",
		Nodes: []visNode{},
		Edges: []visEdge{},
	}
	if roots := g.Roots(); len(roots) > 0 {
		data.Title = roots[0].Label + " Project Graph"
	}
	for _, n := range g.TopologicallySortedNodes() {
		vn := visNode{ID: n.ID, Label: n.Label, Title: n.ProjectPath}
		if n.LoadErr != nil {
			vn.Color = "#f4a6a6"
		}
		data.Nodes = append(data.Nodes, vn)
	}
	for _, r := range g.Relationships() {
		data.Edges = append(data.Edges, visEdge{From: r.Dependency.ID, To: r.Dependent.ID})
	}

	var buf bytes.Buffer
	if err := graphTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render graph html: %w", err)
	}
	return buf.String(), nil
}
