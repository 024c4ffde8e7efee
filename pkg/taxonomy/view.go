package taxonomy

import (
	"github.com/theapemachine/memoria/pkg/errors"
)

type Format string

const (
	FormatFlat    Format = "flat"
	FormatTree    Format = "tree"
	FormatParents Format = "parents"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatFlat:
		return FormatFlat, nil
	case FormatTree, FormatParents:
		return Format(value), nil
	}

	return "", errors.Invalid("format", "%q is not one of flat, tree, parents", value)
}

type Node struct {
	Category
	Children []Node `json:"children,omitempty"`
}

type ParentSummary struct {
	Category
	ChildCount int `json:"child_count"`
}

// View is one projection of a snapshot; only the field for Format is set.
type View struct {
	Format  Format          `json:"format"`
	Flat    []Category      `json:"flat,omitempty"`
	Tree    []Node          `json:"tree,omitempty"`
	Parents []ParentSummary `json:"parents,omitempty"`
}

func Project(t *Taxonomy, format Format) (View, error) {
	view := View{Format: format}

	switch format {
	case FormatFlat:
		view.Flat = append([]Category{}, t.Categories...)
		sortByName(view.Flat)
	case FormatTree:
		view.Tree = Tree(t)
	case FormatParents:
		view.Parents = Parents(t)
	default:
		return View{}, errors.Invalid("format", "%q is not one of flat, tree, parents", format)
	}

	return view, nil
}

/*
Tree nests categories under their parents. Categories whose parent is
missing from the file are shown at the top level.
*/
func Tree(t *Taxonomy) []Node {
	seen := map[string]bool{}

	var build func(c Category) Node

	build = func(c Category) Node {
		seen[c.Name] = true
		node := Node{Category: c}

		for _, child := range t.Children(c.Name) {
			if !seen[child.Name] {
				node.Children = append(node.Children, build(child))
			}
		}

		return node
	}

	var roots []Node

	for _, name := range t.Names() {
		c, _ := t.Get(name)

		if c.Parent == "" || !t.Exists(c.Parent) {
			roots = append(roots, build(c))
		}
	}

	return roots
}

// Parents lists the grouping categories: flagged ones and any with children.
func Parents(t *Taxonomy) []ParentSummary {
	var out []ParentSummary

	for _, name := range t.Names() {
		c, _ := t.Get(name)
		count := len(t.Children(name))

		if c.IsParent || count > 0 {
			out = append(out, ParentSummary{Category: c, ChildCount: count})
		}
	}

	return out
}
