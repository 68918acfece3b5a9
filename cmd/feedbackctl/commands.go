package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"feedback-go/internal/models"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	flagColumn    string
	flagThreshold float64
	flagFilters   []string
	flagNames     []string
)

var groupsCmd = &cobra.Command{
	Use:   "groups <source>",
	Short: "Print canonical name groups of the faculty column (or --column)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		column := flagColumn
		var groups []models.NameGroup
		if column == "" {
			names, err := a.Feedback.GetNameMappings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			column, groups = names.FacultyColumn, names.Groups
		}
		if column == "" {
			color.Yellow("No faculty column detected; pass --column")
			return nil
		}
		if flagColumn != "" || flagThreshold > 0 {
			groups, err = a.Feedback.GroupColumn(cmd.Context(), args[0], column, flagThreshold)
			if err != nil {
				return err
			}
		}

		color.Cyan("\nName groups for %q", column)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Canonical", "Variants", "Feedbacks"})
		for _, g := range groups {
			table.Append([]string{
				g.Canonical,
				strings.Join(g.Variants, ", "),
				strconv.Itoa(g.TotalFeedbacks),
			})
		}
		table.Render()
		color.Green("%d groups", len(groups))
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <source>",
	Short: "Print question columns and filter columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cls, err := a.Feedback.GetClassification(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		color.Yellow("\nQuestion columns")
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "Question"})
		for i, q := range cls.QuestionColumns {
			table.Append([]string{strconv.Itoa(i + 1), q})
		}
		table.Render()

		color.Yellow("\nFilter columns")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Column", "Values", "Sample"})
		for _, col := range sortedKeys(cls.FilterColumns) {
			values := cls.FilterColumns[col]
			table.Append([]string{col, strconv.Itoa(len(values)), sample(values, 5)})
		}
		table.Render()
		return nil
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics <source>",
	Short: "Print overall, per-question and per-faculty scores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := parseFilters(flagFilters)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Feedback.GetAnalytics(cmd.Context(), owner, args[0], filters)
		if err != nil {
			return err
		}

		color.Cyan("\n=== Feedback Analytics ===")
		fmt.Printf("Responses: %d\n", res.TotalResponses)
		fmt.Printf("Overall average: %.2f\n", res.OverallAverage)

		color.Yellow("\nQuestions")
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Question", "Score", "Responses"})
		for _, q := range res.QuestionScores {
			table.Append([]string{q.Question, formatScore(q.Score), strconv.Itoa(q.Responses)})
		}
		table.Render()

		color.Yellow("\nFaculty")
		table = tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Rank", "Faculty", "Score", "Feedbacks", "Courses"})
		for _, f := range res.FacultyScores {
			table.Append([]string{
				strconv.Itoa(f.Rank),
				f.Name,
				formatScore(f.Score),
				strconv.Itoa(f.FeedbackCount),
				strings.Join(f.Courses, ", "),
			})
		}
		table.Render()
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <source>",
	Short: "Suggest faculty names that look like the given --name values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(flagNames) == 0 {
			return fmt.Errorf("at least one --name is required")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		column := flagColumn
		if column == "" {
			names, err := a.Feedback.GetNameMappings(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			column = names.FacultyColumn
		}
		meta, err := a.Feedback.GetSheetMetadata(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		all, ok := meta.Filters[column]
		if !ok {
			return fmt.Errorf("column %q is not a filter column", column)
		}

		got := a.Feedback.SuggestSimilar(models.SuggestRequest{
			Selected:  flagNames,
			All:       all,
			Threshold: flagThreshold,
		})
		if len(got) == 0 {
			color.Yellow("No similar names found")
			return nil
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Suggestion"})
		for _, s := range got {
			table.Append([]string{s})
		}
		table.Render()
		return nil
	},
}

func init() {
	groupsCmd.Flags().StringVar(&flagColumn, "column", "", "column to group (default: detected faculty column)")
	groupsCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "similarity threshold (default from config)")

	analyticsCmd.Flags().StringArrayVar(&flagFilters, "filter", nil, "filter as Category=Value (repeatable)")

	suggestCmd.Flags().StringArrayVar(&flagNames, "name", nil, "selected name (repeatable)")
	suggestCmd.Flags().StringVar(&flagColumn, "column", "", "column to search (default: detected faculty column)")
	suggestCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "similarity threshold (default from config)")

	rootCmd.AddCommand(groupsCmd, classifyCmd, analyticsCmd, suggestCmd)
}

// parseFilters turns repeated Category=Value flags into a filter state.
func parseFilters(raw []string) (models.FilterState, error) {
	filters := models.FilterState{}
	for _, f := range raw {
		category, value, ok := strings.Cut(f, "=")
		category, value = strings.TrimSpace(category), strings.TrimSpace(value)
		if !ok || category == "" || value == "" {
			return nil, fmt.Errorf("invalid --filter %q, want Category=Value", f)
		}
		filters[category] = append(filters[category], value)
	}
	return filters, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sample(values []string, n int) string {
	if len(values) > n {
		return strings.Join(values[:n], ", ") + ", ..."
	}
	return strings.Join(values, ", ")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
