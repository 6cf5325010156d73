package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
)

var (
	listPending bool
	skipConfirm bool
)

var stationCmd = &cobra.Command{
	Use:   "station",
	Short: "Manage stations",
	Long:  `List stations, resolve pending registrations and delete stations.`,
}

var stationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stations",
	Long:  `Display approved stations, or pending registrations with --pending.`,
	Args:  cobra.NoArgs,
	RunE:  runStationList,
}

var stationApproveCmd = &cobra.Command{
	Use:   "approve <network_id>",
	Short: "Approve a pending registration",
	Args:  cobra.ExactArgs(1),
	RunE:  runStationApprove,
}

var stationRejectCmd = &cobra.Command{
	Use:   "reject <network_id>",
	Short: "Reject and delete a pending registration",
	Args:  cobra.ExactArgs(1),
	RunE:  runStationReject,
}

var stationDeleteCmd = &cobra.Command{
	Use:   "delete <network_id>",
	Short: "Delete a station",
	Long:  `Delete a station with its components, measurements and errors.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStationDelete,
}

func init() {
	rootCmd.AddCommand(stationCmd)
	stationCmd.AddCommand(stationListCmd)
	stationCmd.AddCommand(stationApproveCmd)
	stationCmd.AddCommand(stationRejectCmd)
	stationCmd.AddCommand(stationDeleteCmd)

	stationListCmd.Flags().BoolVar(&listPending, "pending", false, "list pending registrations")
	stationDeleteCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "do not ask for confirmation")
}

func runStationList(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *App) error {
		stations, err := app.db.ListStations(cmd.Context(), !listPending)
		if err != nil {
			return fmt.Errorf("failed to fetch stations: %w", err)
		}

		title := "Approved Stations"
		if listPending {
			title = "Pending Registrations"
		}
		printStations(cmd.OutOrStdout(), title, stations, app.table)
		return nil
	})
}

func printStations(w io.Writer, title string, stations []models.Station, table models.StatusTable) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	for i, station := range stations {
		st, _ := table.ByID(station.StatusID)
		fmt.Fprintf(w, "\n[%d] %s\n", i+1, station.Name)
		fmt.Fprintf(w, "    Network ID: %s\n", station.NetworkID)
		fmt.Fprintf(w, "    Location: %.5f, %.5f (%.0f m)\n", station.Latitude, station.Longitude, station.Elevation)
		fmt.Fprintf(w, "    Status: %s\n", st.Name)
		fmt.Fprintf(w, "    Last Updated: %s\n", station.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	if len(stations) == 0 {
		fmt.Fprintln(w, "No stations found.")
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80)+"\n")
}

func runStationApprove(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *App) error {
		if err := app.engine.Approve(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Station '%s' approved.\n", args[0])
		return nil
	})
}

func runStationReject(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(app *App) error {
		if err := app.engine.Reject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registration '%s' rejected.\n", args[0])
		return nil
	})
}

func runStationDelete(cmd *cobra.Command, args []string) error {
	networkID := args[0]

	if !skipConfirm && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
		fmt.Sprintf("Are you sure you want to delete station '%s'? (yes/no): ", networkID)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	return withApp(cmd.Context(), func(app *App) error {
		if err := app.engine.DeleteStation(cmd.Context(), networkID); err != nil {
			return fmt.Errorf("failed to delete station: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Station '%s' deleted.\n", networkID)
		return nil
	})
}

// confirm asks a yes/no question on w and reads the answer from r
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprint(w, question)
	answer, _ := bufio.NewReader(r).ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "yes" || answer == "y"
}
