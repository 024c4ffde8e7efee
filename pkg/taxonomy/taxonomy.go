/*
Package taxonomy owns the category hierarchy: the file-backed snapshot
store, the lifecycle operations that keep the category label on stored
records consistent, and the projections built from it.
*/
package taxonomy

import (
	"sort"
	"time"
)

// Version is the only file format this package reads or writes.
const Version = 1

type Category struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Parent      string    `json:"parent,omitempty"`
	Color       string    `json:"color,omitempty"`
	IsParent    bool      `json:"is_parent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

/*
Taxonomy is an immutable snapshot of the category file. Mutations happen
on a copy inside Store.Update and replace the snapshot as a whole.
*/
type Taxonomy struct {
	Version    int        `json:"version"`
	Categories []Category `json:"categories"`
}

func Empty() *Taxonomy {
	return &Taxonomy{Version: Version, Categories: []Category{}}
}

func (t *Taxonomy) clone() *Taxonomy {
	return &Taxonomy{
		Version:    Version,
		Categories: append([]Category{}, t.Categories...),
	}
}

func (t *Taxonomy) index(name string) int {
	for i, c := range t.Categories {
		if c.Name == name {
			return i
		}
	}

	return -1
}

func (t *Taxonomy) Get(name string) (Category, bool) {
	if i := t.index(name); i >= 0 {
		return t.Categories[i], true
	}

	return Category{}, false
}

func (t *Taxonomy) Exists(name string) bool {
	return t.index(name) >= 0
}

// Children returns the direct children of name, sorted by name.
func (t *Taxonomy) Children(name string) []Category {
	var children []Category

	for _, c := range t.Categories {
		if c.Parent == name {
			children = append(children, c)
		}
	}

	sortByName(children)

	return children
}

func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.Categories))

	for i, c := range t.Categories {
		names[i] = c.Name
	}

	sort.Strings(names)

	return names
}

/*
Ancestors walks the parent chain upward from name, nearest first. A chain
that loops back on itself stops at the repeat.
*/
func (t *Taxonomy) Ancestors(name string) []string {
	var (
		chain []string
		seen  = map[string]bool{name: true}
	)

	current, ok := t.Get(name)

	for ok && current.Parent != "" && !seen[current.Parent] {
		chain = append(chain, current.Parent)
		seen[current.Parent] = true
		current, ok = t.Get(current.Parent)
	}

	return chain
}

// Descendants returns every category below name.
func (t *Taxonomy) Descendants(name string) []string {
	var (
		out   []string
		seen  = map[string]bool{name: true}
		queue = []string{name}
	)

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		for _, child := range t.Children(head) {
			if seen[child.Name] {
				continue
			}

			seen[child.Name] = true
			out = append(out, child.Name)
			queue = append(queue, child.Name)
		}
	}

	return out
}

func sortByName(categories []Category) {
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
}
