package bulk

import (
	"fmt"
	"strings"
	"time"
)

// Node is one connection or object of a bulk query. Connections are
// rendered as edges { node { ... } } and every node selects __typename and
// id so Compose can rebuild the hierarchy.
type Node struct {
	Field string
	// Args is the argument list without parentheses.
	Args string
	// Connection marks paginated fields; plain objects are inlined.
	Connection bool
	// WithoutID skips the id selection for types that have none.
	WithoutID bool
	Fields    []string
	Children  []Node
}

// Render returns the selection of n.
func (n Node) Render() string {
	var b strings.Builder
	n.render(&b, 0)
	return b.String()
}

func (n Node) render(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	b.WriteString(n.Field)
	if n.Args != "" {
		fmt.Fprintf(b, "(%s)", n.Args)
	}
	b.WriteString(" {\n")

	inner := depth + 1
	if n.Connection {
		b.WriteString(strings.Repeat("  ", inner) + "edges {\n")
		b.WriteString(strings.Repeat("  ", inner+1) + "node {\n")
		inner += 2
		pad := strings.Repeat("  ", inner)
		b.WriteString(pad + TypeNameKey + "\n")
		if !n.WithoutID {
			b.WriteString(pad + "id\n")
		}
	}

	pad := strings.Repeat("  ", inner)
	for _, f := range n.Fields {
		b.WriteString(pad + f + "\n")
	}
	for _, c := range n.Children {
		c.render(b, inner)
	}

	if n.Connection {
		b.WriteString(strings.Repeat("  ", depth+2) + "}\n")
		b.WriteString(strings.Repeat("  ", depth+1) + "}\n")
	}
	b.WriteString(indent + "}\n")
}

// Query wraps root in a query document.
func Query(root Node) string {
	return "{\n" + root.Render() + "}"
}

// SearchFilter renders the search syntax selecting field within w, e.g.
// updated_at:>='2024-01-01T00:00:00+00:00' AND updated_at:<='...'. The zero
// window yields an empty filter.
func SearchFilter(field string, w Window) string {
	if w.IsZero() {
		return ""
	}
	var parts []string
	if !w.Start.IsZero() {
		parts = append(parts, fmt.Sprintf("%s:>='%s'", field, w.Start.UTC().Format(time.RFC3339)))
	}
	if !w.End.IsZero() {
		parts = append(parts, fmt.Sprintf("%s:<='%s'", field, w.End.UTC().Format(time.RFC3339)))
	}
	return strings.Join(parts, " AND ")
}

// ConnectionArgs renders the arguments of a filtered root connection.
// Double quotes in filter are escaped for the GraphQL string literal.
func ConnectionArgs(filter, sortKey string) string {
	var args []string
	if filter != "" {
		args = append(args, fmt.Sprintf(`query: "%s"`, strings.ReplaceAll(filter, `"`, `\"`)))
	}
	if sortKey != "" {
		args = append(args, "sortKey: "+sortKey)
	}
	return strings.Join(args, ", ")
}
