package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ponpaku/ai-kakeibo-2/internal/cli"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long:  `Rules assign a category to matching items before the AI engine is consulted.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(addRuleCmd())
	cmd.AddCommand(deleteRuleCmd())
	cmd.AddCommand(testRuleCmd())

	return cmd
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in match order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			ruleList, err := store.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(ruleList) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No rules found. Use 'kakeibo rules add' to create one."))
				return nil
			}

			categories, err := store.ListCategories(ctx, true)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			names := make(map[int64]string, len(categories))
			for _, cat := range categories {
				names[cat.ID] = cat.Name
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("ID"),
				cli.TableHeaderStyle.Render("Priority"),
				cli.TableHeaderStyle.Render("Pattern"),
				cli.TableHeaderStyle.Render("Kind"),
				cli.TableHeaderStyle.Render("Category"),
				cli.TableHeaderStyle.Render("Active"))

			for _, rule := range ruleList {
				active := cli.SuccessIcon
				if !rule.IsActive {
					active = cli.SubtleStyle.Render("-")
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
					rule.ID, rule.Priority, rule.Pattern, rule.MatchKind, names[rule.CategoryID], active)
			}

			return nil
		},
	}
}

func addRuleCmd() *cobra.Command {
	var (
		kind       string
		name       string
		priority   int
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "add <pattern> <category-id>",
		Short: "Add a new rule",
		Long: `Create a categorization rule. A "contains" pattern matches when any
"|"-separated token is a substring of the item; a "regex" pattern is a
regular expression.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			categoryID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid category ID: %w", err)
			}

			matchKind := model.MatchKind(kind)
			if err := rules.ValidatePattern(args[0], matchKind); err != nil {
				return err
			}

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rule := &model.CategoryRule{
				Name:       name,
				Pattern:    args[0],
				MatchKind:  matchKind,
				CategoryID: categoryID,
				Priority:   priority,
				Confidence: confidence,
				IsActive:   true,
			}
			if err := store.CreateRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created rule %d matching %q", rule.ID, rule.Pattern)))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(model.MatchContains), "Match kind (contains, regex)")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the rule")
	cmd.Flags().IntVar(&priority, "priority", 100, "Match order, lower wins")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.9, "Confidence recorded on matched items")

	return cmd
}

func deleteRuleCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule ID: %w", err)
			}

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if !force {
				fmt.Printf("Are you sure you want to delete rule %d? (y/N): ", id)
				var response string
				fmt.Scanln(&response)
				if strings.ToLower(response) != "y" {
					fmt.Println("Deletion cancelled.")
					return nil
				}
			}

			if err := store.DeleteRule(ctx, id); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Deleted rule %d", id)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}

func testRuleCmd() *cobra.Command {
	var storeName string

	cmd := &cobra.Command{
		Use:   "test <product-name>",
		Short: "Dry-run the rules against a sample item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, _, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			matcher := rules.NewMatcher(store)
			rule, err := matcher.FindMatch(ctx, []string{args[0], storeName})
			if err != nil {
				return fmt.Errorf("failed to match rules: %w", err)
			}

			if rule == nil {
				fmt.Println(cli.FormatWarning("No rule matched"))
				return nil
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %d matched: pattern %q (category %d, confidence %.2f)",
				rule.ID, rule.Pattern, rule.CategoryID, rule.Confidence)))
			return nil
		},
	}

	cmd.Flags().StringVar(&storeName, "store", "", "Store name to include in the match")

	return cmd
}
