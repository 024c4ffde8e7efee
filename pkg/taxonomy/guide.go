package taxonomy

import (
	"fmt"
	"strings"
)

/*
RenderRoutingGuide turns a snapshot into the text that tells an assistant
which category a new memory belongs in. It is a pure function of the
snapshot so it can be rebuilt whenever the taxonomy changes.
*/
func RenderRoutingGuide(t *Taxonomy) string {
	if t == nil || len(t.Categories) == 0 {
		return "No categories exist yet. Create one with category_create before storing memories."
	}

	var b strings.Builder

	b.WriteString("Store each memory under the most specific category that fits.\n")
	b.WriteString("Categories marked (group) organise others; prefer one of their children.\n\n")

	var walk func(nodes []Node, depth int)

	walk = func(nodes []Node, depth int) {
		for _, node := range nodes {
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString("- ")
			b.WriteString(node.Name)

			if node.IsParent {
				b.WriteString(" (group)")
			}

			if node.Description != "" {
				fmt.Fprintf(&b, ": %s", node.Description)
			}

			b.WriteString("\n")
			walk(node.Children, depth+1)
		}
	}

	walk(Tree(t), 0)

	return strings.TrimRight(b.String(), "\n")
}
