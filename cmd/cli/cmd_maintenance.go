package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [network_id]",
	Short: "Classify stations now",
	Long: `Run one status scan outside the schedule: classify the given station,
or every approved station when no network id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired measurements now",
	Long:  `Run one retention pass outside the schedule.`,
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(pruneCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return withApp(cmd.Context(), func(app *App) error {
		if len(args) == 1 {
			d, err := app.status.ClassifyStation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s -> %s\n", d.Station.NetworkID, d.Previous.Name, d.Status.Name)
			for _, rule := range d.Broken {
				fmt.Fprintf(out, "\t- %s\n", rule.Message)
			}
			if d.Notified {
				fmt.Fprintln(out, "Maintainers notified.")
			}
			return nil
		}

		classified, failed, err := app.status.ClassifyAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Classified %d stations, %d failed.\n", classified, failed)
		return nil
	})
}

func runPrune(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *App) error {
		n, err := app.pruner.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d measurement batches.\n", n)
		return nil
	})
}
