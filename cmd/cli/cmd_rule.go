package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var ruleStatus string

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage status rules",
	Long: `Status rules are expressions over the latest measurements of a
station, for example "${dht22.temperature} > 60". A station breaking a rule
is given the rule's status.`,
}

var ruleAddCmd = &cobra.Command{
	Use:   "add <expression> <message>",
	Short: "Add a status rule",
	Args:  cobra.ExactArgs(2),
	RunE:  runRuleAdd,
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List status rules",
	Args:  cobra.NoArgs,
	RunE:  runRuleList,
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a status rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleDelete,
}

func init() {
	rootCmd.AddCommand(ruleCmd)
	ruleCmd.AddCommand(ruleAddCmd)
	ruleCmd.AddCommand(ruleListCmd)
	ruleCmd.AddCommand(ruleDeleteCmd)

	ruleAddCmd.Flags().StringVar(&ruleStatus, "status", "", `status assigned while the rule is broken (default "Rule(s) broken")`)
}

func runRuleAdd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *App) error {
		rule, err := app.rules.Add(cmd.Context(), args[0], args[1], ruleStatus)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule created with ID: %s\n", rule.ID)
		return nil
	})
}

func runRuleList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *App) error {
		list, err := app.rules.List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No rules defined.")
			return nil
		}
		for _, rule := range list {
			st, _ := app.table.ByID(rule.StatusID)
			fmt.Fprintf(out, "%s  [%s]  %s  -> %s\n", rule.ID, st.Name, rule.Expression, rule.Message)
		}
		return nil
	})
}

func runRuleDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid rule id: %w", err)
	}
	return withApp(cmd.Context(), func(app *App) error {
		if err := app.rules.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule %s deleted.\n", id)
		return nil
	})
}
