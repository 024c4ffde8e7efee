package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theapemachine/memoria/pkg/errors"
	"github.com/theapemachine/memoria/pkg/taxonomy"
	"github.com/theapemachine/memoria/pkg/ui"
)

var (
	formatFlag      string
	jsonFlag        bool
	descriptionFlag string
	parentFlag      string
	colorFlag       string
	isParentFlag    bool
	recordsToFlag   string
	childrenToFlag  string
	detachFlag      bool
	interactiveFlag bool

	categoryCmd = &cobra.Command{
		Use:   "category",
		Short: "Inspect and edit the category taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	categoryListCmd = &cobra.Command{
		Use:   "list",
		Short: "List categories as a flat list, a tree or the parent groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := taxonomy.ParseFormat(formatFlag)

			if err != nil {
				return err
			}

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			view, err := a.manager.List(format)

			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(cmd, view)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.CategoryView(view))

			return nil
		},
	}

	categoryCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			category, err := a.manager.Create(ctx, taxonomy.CreateParams{
				Name:        args[0],
				Description: descriptionFlag,
				Parent:      parentFlag,
				Color:       colorFlag,
				IsParent:    isParentFlag,
			})

			if err != nil {
				return err
			}

			return printJSON(cmd, category)
		},
	}

	categoryRenameCmd = &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a category and relabel its memories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			result, err := a.manager.Rename(ctx, args[0], args[1])

			if err != nil {
				return err
			}

			if result.Warning != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.Failure(result.Warning))
				fmt.Fprintf(cmd.ErrOrStderr(), "run the same rename again to finish relabelling\n")
			}

			return printJSON(cmd, result)
		},
	}

	categoryMoveCmd = &cobra.Command{
		Use:   "move <name> [parent]",
		Short: "Move a category under a parent, or to the top level without one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			parent := ""

			if len(args) == 2 {
				parent = args[1]
			}

			category, err := a.manager.Reparent(ctx, args[0], parent)

			if err != nil {
				return err
			}

			return printJSON(cmd, category)
		},
	}

	categoryDeleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a category once its children and memories have somewhere to go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			params := taxonomy.DeleteParams{
				ReassignRecordsTo:  recordsToFlag,
				ReassignChildrenTo: childrenToFlag,
				DetachChildren:     detachFlag,
			}

			result, err := a.manager.Delete(ctx, args[0], params)

			var conflict *errors.ConflictError

			if errors.As(err, &conflict) && interactiveFlag {
				if params, err = promptDelete(a.manager.Store().Snapshot(), args[0], params, conflict); err != nil {
					return err
				}

				result, err = a.manager.Delete(ctx, args[0], params)
			}

			if errors.As(err, &conflict) {
				if len(conflict.Children) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "children: %v (use --children-to or --detach)\n", conflict.Children)
				}

				if conflict.Records > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "memories: %d (use --records-to)\n", conflict.Records)
				}
			}

			if err != nil {
				return err
			}

			return printJSON(cmd, result)
		},
	}
)

/*
promptDelete asks where the children and memories blocking a delete should
go. Children can also be sent to the top level. When there is nothing to
choose from the params come back unchanged and the delete fails as before.
*/
func promptDelete(t *taxonomy.Taxonomy, name string, params taxonomy.DeleteParams, conflict *errors.ConflictError) (taxonomy.DeleteParams, error) {
	var fields []huh.Field

	if conflict.Records > 0 && params.ReassignRecordsTo == "" {
		options := categoryOptions(t, map[string]bool{name: true})

		if len(options) == 0 {
			return params, nil
		}

		fields = append(fields, huh.NewSelect[string]().
			Title(fmt.Sprintf("Move %d memories to", conflict.Records)).
			Options(options...).
			Value(&params.ReassignRecordsTo))
	}

	children := len(conflict.Children) > 0 && params.ReassignChildrenTo == "" && !params.DetachChildren

	if children {
		excluded := map[string]bool{name: true}

		for _, descendant := range t.Descendants(name) {
			excluded[descendant] = true
		}

		options := append([]huh.Option[string]{huh.NewOption("(top level)", "")}, categoryOptions(t, excluded)...)

		fields = append(fields, huh.NewSelect[string]().
			Title(fmt.Sprintf("Move children %v under", conflict.Children)).
			Options(options...).
			Value(&params.ReassignChildrenTo))
	}

	if len(fields) == 0 {
		return params, nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return params, err
	}

	if children && params.ReassignChildrenTo == "" {
		params.DetachChildren = true
	}

	return params, nil
}

func categoryOptions(t *taxonomy.Taxonomy, excluded map[string]bool) []huh.Option[string] {
	var options []huh.Option[string]

	for _, name := range t.Names() {
		if !excluded[name] {
			options = append(options, huh.NewOption(name, name))
		}
	}

	return options
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")

	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryListCmd, categoryCreateCmd, categoryRenameCmd, categoryMoveCmd, categoryDeleteCmd)

	categoryListCmd.Flags().StringVarP(&formatFlag, "format", "f", "tree", "flat, tree or parents")
	categoryListCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a tree")

	categoryCreateCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "", "What belongs in the category")
	categoryCreateCmd.Flags().StringVarP(&parentFlag, "parent", "p", "", "Parent category")
	categoryCreateCmd.Flags().StringVar(&colorFlag, "color", "", "Display color")
	categoryCreateCmd.Flags().BoolVar(&isParentFlag, "group", false, "Mark as a grouping category")

	categoryDeleteCmd.Flags().StringVar(&recordsToFlag, "records-to", "", "Category that receives the memories")
	categoryDeleteCmd.Flags().StringVar(&childrenToFlag, "children-to", "", "New parent for the children")
	categoryDeleteCmd.Flags().BoolVar(&detachFlag, "detach", false, "Move the children to the top level")
	categoryDeleteCmd.Flags().BoolVarP(&interactiveFlag, "interactive", "i", false, "Ask where blocked children and memories should go")
}
