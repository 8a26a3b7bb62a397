package export

// export.go renders a loaded dependency graph as a small report.
//
// Report layout:
//   index.md                 roots and the build order
//   risk.md                  most referenced projects, cycles, load errors
//   graphs/dependencies.md   Mermaid LR reference graph
//   graph.html               interactive vis.js page
//
// Generation is pure; WriteReport does the I/O. Output is byte-identical
// for the same graph.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xamarin/mirepoix/internal/depgraph"
)

// Report holds pre-generated page content (path → content).
// Paths are relative to the output directory, using forward slashes.
type Report struct {
	pages map[string]string
}

// Pages returns the page paths in sorted order.
func (r *Report) Pages() []string {
	paths := make([]string, 0, len(r.pages))
	for p := range r.pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Page returns the content of one page.
func (r *Report) Page(path string) (string, bool) {
	s, ok := r.pages[path]
	return s, ok
}

// GenerateReport builds all report pages from g. No files are written.
func GenerateReport(g *depgraph.Graph) (*Report, error) {
	html, err := GenerateHTML(g)
	if err != nil {
		return nil, err
	}
	pages := map[string]string{
		"index.md":               buildOverviewPage(g),
		"risk.md":                buildRiskReport(g),
		"graphs/dependencies.md": buildDependencyGraph(g),
		"graph.html":             html,
	}
	return &Report{pages: pages}, nil
}

// WriteReport writes all pages in report to outputDir in sorted path order.
func WriteReport(report *Report, outputDir string) error {
	if err := os.MkdirAll(filepath.Join(outputDir, "graphs"), 0o755); err != nil {
		return fmt.Errorf("mkdir graphs: %w", err)
	}
	for _, p := range report.Pages() {
		abs := filepath.Join(outputDir, filepath.FromSlash(p))
		if err := writePage(abs, report.pages[p]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Page builders
// ---------------------------------------------------------------------------

// buildOverviewPage builds index.md: roots and build order.
func buildOverviewPage(g *depgraph.Graph) string {
	var b strings.Builder
	b.WriteString(frontmatter(pageMeta{Tags: []string{"mirepoix/index"}, Projects: g.Len()}))
	b.WriteString("# Project Graph\n\n")

	if props := sortedKeys(g.Spec.GlobalProperties); len(props) > 0 {
		b.WriteString("## Global Properties\n\n")
		for _, k := range props {
			b.WriteString(fmt.Sprintf("- `%s` = `%s`\n", k, g.Spec.GlobalProperties[k]))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Roots\n\n")
	for _, n := range g.Roots() {
		b.WriteString(fmt.Sprintf("- %s (`%s`)\n", n.Label, n.ProjectPath))
	}

	b.WriteString("\n## Build Order\n\n")
	for i, n := range g.TopologicallySortedNodes() {
		status := ""
		if n.LoadErr != nil {
			status = " (failed to load)"
		}
		b.WriteString(fmt.Sprintf("%d. %s%s\n", i+1, n.Label, status))
	}
	return b.String()
}

// buildRiskReport builds risk.md: in-degree, reference cycles, load errors.
func buildRiskReport(g *depgraph.Graph) string {
	var b strings.Builder
	b.WriteString(frontmatter(pageMeta{Tags: []string{"mirepoix/risk"}}))
	b.WriteString("# Risk Report\n\n")

	// --- Top projects by in-degree ---
	type projectCount struct {
		name  string
		count int
	}
	counts := make([]projectCount, 0, g.Len())
	for _, n := range g.TopologicallySortedNodes() {
		if c := len(n.Parents()); c > 0 {
			counts = append(counts, projectCount{n.Label, c})
		}
	}
	// Sort descending by count, then ascending by name for determinism.
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})
	if len(counts) > 10 {
		counts = counts[:10]
	}

	b.WriteString("## Most Referenced Projects\n\n")
	if len(counts) > 0 {
		b.WriteString("| Project | Dependents |\n")
		b.WriteString("|---------|------------|\n")
		for _, pc := range counts {
			b.WriteString(fmt.Sprintf("| %s | %d |\n", pc.name, pc.count))
		}
	}
	b.WriteString("\n")

	// --- Reference cycles ---
	b.WriteString("## Reference Cycles\n\n")
	cycles := findCycles(g)
	if len(cycles) == 0 {
		b.WriteString("_None found._\n")
	} else {
		for _, cycle := range cycles {
			b.WriteString("- " + cycle + "\n")
		}
	}

	// --- Load errors ---
	b.WriteString("\n## Load Errors\n\n")
	failed := false
	for _, n := range g.TopologicallySortedNodes() {
		if n.LoadErr == nil {
			continue
		}
		failed = true
		for _, line := range strings.Split(n.LoadErr.Error(), "\n") {
			b.WriteString(fmt.Sprintf("- **%s**: %s\n", n.Label, line))
		}
	}
	if !failed {
		b.WriteString("_None._\n")
	}
	return b.String()
}

// buildDependencyGraph builds graphs/dependencies.md, a Mermaid LR graph with
// edges pointing from a project to the projects it references.
func buildDependencyGraph(g *depgraph.Graph) string {
	var b strings.Builder
	b.WriteString(frontmatter(pageMeta{Tags: []string{"mirepoix/graph"}}))
	b.WriteString("# Dependency Graph\n\n")

	if g.Len() == 0 {
		b.WriteString("_No projects._\n")
		return b.String()
	}

	b.WriteString("```mermaid\ngraph LR\n")
	for _, n := range g.TopologicallySortedNodes() {
		b.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", mermaidID(n), strings.ReplaceAll(n.Label, `"`, "'")))
	}
	for _, r := range g.Relationships() {
		b.WriteString(fmt.Sprintf("  %s --> %s\n", mermaidID(r.Dependent), mermaidID(r.Dependency)))
	}
	b.WriteString("```\n")
	return b.String()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// pageMeta is the YAML frontmatter of every markdown page.
type pageMeta struct {
	Tags     []string `yaml:"tags"`
	Projects int      `yaml:"projects,omitempty"`
}

// frontmatter returns a YAML frontmatter block. Tags are sorted alphabetically.
func frontmatter(meta pageMeta) string {
	meta.Tags = append([]string(nil), meta.Tags...)
	sort.Strings(meta.Tags)
	data, err := yaml.Marshal(meta)
	if err != nil {
		// pageMeta always marshals.
		panic(err)
	}
	return "---\n" + string(data) + "---\n\n"
}

// mermaidID turns a node ID into a Mermaid identifier.
func mermaidID(n *depgraph.Node) string {
	var b strings.Builder
	b.WriteString("p")
	for _, r := range n.ID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writePage writes content to path, creating parent directories as needed.
func writePage(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// findCycles performs DFS cycle detection over project references.
// Returns one string per cycle in "A → B → A" format. Results are
// deterministic because nodes and neighbours are visited in path order.
func findCycles(g *depgraph.Graph) []string {
	refs := make(map[*depgraph.Node][]*depgraph.Node)
	for _, r := range g.Relationships() {
		refs[r.Dependent] = append(refs[r.Dependent], r.Dependency)
	}
	byPath := func(nodes []*depgraph.Node) []*depgraph.Node {
		sorted := append([]*depgraph.Node(nil), nodes...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProjectPath < sorted[j].ProjectPath })
		return sorted
	}

	// DFS coloring: 0=white (unvisited), 1=gray (in stack), 2=black (done).
	color := make(map[*depgraph.Node]int)
	var cycles []string
	var path []*depgraph.Node

	var dfs func(n *depgraph.Node)
	dfs = func(n *depgraph.Node) {
		if color[n] == 2 {
			return
		}
		if color[n] == 1 {
			for i, p := range path {
				if p == n {
					labels := make([]string, 0, len(path)-i+1)
					for _, c := range path[i:] {
						labels = append(labels, c.Label)
					}
					labels = append(labels, n.Label)
					cycles = append(cycles, strings.Join(labels, " → "))
					return
				}
			}
			return
		}
		color[n] = 1
		path = append(path, n)
		for _, dep := range byPath(refs[n]) {
			dfs(dep)
		}
		path = path[:len(path)-1]
		color[n] = 2
	}

	for _, n := range byPath(g.TopologicallySortedNodes()) {
		if color[n] == 0 {
			dfs(n)
		}
	}
	return cycles
}
