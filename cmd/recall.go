package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theapemachine/memoria/pkg/ranker"
	"github.com/theapemachine/memoria/pkg/ui"
)

var (
	kFlag          int
	thresholdFlag  float64
	categoryFlag   string
	projectFlag    string
	tagsFlag       []string
	importanceFlag int
	sharedFlag     bool
	explainFlag    bool
	recallJSONFlag bool

	recallCmd = &cobra.Command{
		Use:   "recall <query>",
		Short: "Recall the memories most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			vector, err := a.embedder.Embed(ctx, strings.Join(args, " "))

			if err != nil {
				return err
			}

			results, err := a.ranker.Recall(ctx, ranker.Query{
				Vector: vector,
				Filter: ranker.Filter{
					Category:      categoryFlag,
					Project:       projectFlag,
					Tags:          tagsFlag,
					MinImportance: importanceFlag,
					IncludeShared: sharedFlag,
				},
				K:              kFlag,
				Threshold:      thresholdFlag,
				CurrentProject: a.resolver.CurrentProject(),
			})

			if err != nil {
				return err
			}

			if recallJSONFlag {
				return printJSON(cmd, results)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.Recall(results, explainFlag))

			return nil
		},
	}

	staleCmd = &cobra.Command{
		Use:   "stale",
		Short: "List memories whose related files changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp()

			if err != nil {
				return err
			}

			defer a.close()

			report, err := a.detector.Detect(ctx)

			if err != nil && report.Checked == 0 {
				return err
			}

			if recallJSONFlag {
				return printJSON(cmd, report)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.Stale(report))

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(recallCmd, staleCmd)

	recallCmd.Flags().IntVarP(&kFlag, "limit", "k", ranker.DefaultK, "Number of results")
	recallCmd.Flags().Float64Var(&thresholdFlag, "threshold", ranker.DefaultThreshold, "Minimum similarity")
	recallCmd.Flags().StringVarP(&categoryFlag, "category", "c", "", "Only this category")
	recallCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Only this project")
	recallCmd.Flags().BoolVar(&sharedFlag, "include-shared", false, "With --project, also recall global and shared memories")
	recallCmd.Flags().StringSliceVarP(&tagsFlag, "tags", "t", nil, "Any of these tags")
	recallCmd.Flags().IntVar(&importanceFlag, "min-importance", 0, "Minimum importance")
	recallCmd.Flags().BoolVar(&explainFlag, "explain", false, "Show the score breakdown")
	recallCmd.Flags().BoolVar(&recallJSONFlag, "json", false, "Print JSON")

	staleCmd.Flags().BoolVar(&recallJSONFlag, "json", false, "Print JSON")
}
