/*
Package ui renders taxonomy views, recall results and staleness reports
for the terminal.
*/
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/theapemachine/memoria/pkg/ranker"
	"github.com/theapemachine/memoria/pkg/staleness"
	"github.com/theapemachine/memoria/pkg/taxonomy"
)

func categoryLabel(category taxonomy.Category) string {
	style := nameStyle

	if category.Color != "" {
		style = style.Foreground(lipgloss.Color(category.Color))
	}

	label := style.Render(category.Name)

	if category.Description != "" {
		label += " " + mutedStyle.Render(category.Description)
	}

	return label
}

func branch(node taxonomy.Node) any {
	if len(node.Children) == 0 {
		return categoryLabel(node.Category)
	}

	t := tree.Root(categoryLabel(node.Category))

	for _, child := range node.Children {
		t.Child(branch(child))
	}

	return t
}

// CategoryTree draws the nested category view.
func CategoryTree(nodes []taxonomy.Node) string {
	if len(nodes) == 0 {
		return mutedStyle.Render("no categories yet")
	}

	t := tree.Root(titleStyle.Render("categories")).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle)

	for _, node := range nodes {
		t.Child(branch(node))
	}

	return t.String()
}

// CategoryView renders any projection of the taxonomy.
func CategoryView(view taxonomy.View) string {
	switch view.Format {
	case taxonomy.FormatTree:
		return CategoryTree(view.Tree)
	case taxonomy.FormatParents:
		lines := make([]string, 0, len(view.Parents))

		for _, parent := range view.Parents {
			lines = append(lines, fmt.Sprintf("%s %s", categoryLabel(parent.Category), mutedStyle.Render(fmt.Sprintf("(%d)", parent.ChildCount))))
		}

		return strings.Join(lines, "\n")
	}

	lines := make([]string, 0, len(view.Flat))

	for _, category := range view.Flat {
		line := categoryLabel(category)

		if category.Parent != "" {
			line += mutedStyle.Render(" in " + category.Parent)
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// Recall lists ranked results, optionally with their score breakdown.
func Recall(results []ranker.Result, explain bool) string {
	if len(results) == 0 {
		return mutedStyle.Render("nothing relevant found")
	}

	var sb strings.Builder

	for i, result := range results {
		record := result.Record

		sb.WriteString(fmt.Sprintf(
			"%s %s %s\n",
			scoreStyle.Render(fmt.Sprintf("%.3f", result.Explain.Final)),
			nameStyle.Render(record.Category),
			mutedStyle.Render(record.ID),
		))
		sb.WriteString("  " + staleness.Preview(record.Content) + "\n")

		if explain {
			e := result.Explain
			sb.WriteString(mutedStyle.Render(fmt.Sprintf(
				"  similarity %.3f  decay %.3f  access %.3f  x%.1f",
				e.Similarity, e.Decay, e.AccessBoost, e.Multiplier,
			)) + "\n")
		}

		if i < len(results)-1 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Stale lists records whose related files changed or disappeared.
func Stale(report staleness.Report) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%d checked, %d stale", report.Checked, len(report.Stale))) + "\n")

	for _, entry := range report.Stale {
		sb.WriteString(fmt.Sprintf("%s %s [%d]\n", warnStyle.Render(entry.ID), nameStyle.Render(entry.Category), entry.Importance))
		sb.WriteString("  " + entry.Preview + "\n")

		for _, path := range entry.Changed {
			sb.WriteString("  " + warnStyle.Render("changed") + " " + path + "\n")
		}

		for _, path := range entry.Missing {
			sb.WriteString("  " + errorStyle.Render("missing") + " " + path + "\n")
		}
	}

	for _, entry := range report.Missing {
		sb.WriteString(fmt.Sprintf("%s %s\n", mutedStyle.Render(entry.ID), nameStyle.Render(entry.Category)))

		for _, path := range entry.Missing {
			sb.WriteString("  " + errorStyle.Render("missing") + " " + path + "\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// Failure formats an error for the terminal.
func Failure(err error) string {
	return errorStyle.Render("error: ") + err.Error()
}
