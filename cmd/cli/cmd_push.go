package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/petnica-meteor-group/meteornet-server/pkg/api"
)

var (
	pushServer  string
	pushTimeout time.Duration
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send station payloads to a server",
	Long: `Act as a station: send a registration or data payload read from a
JSON file (or "-" for stdin) to a MeteorNet server.`,
}

var pushRegisterCmd = &cobra.Command{
	Use:   "register <file>",
	Short: "Register a station and print its network id",
	Args:  cobra.ExactArgs(1),
	RunE:  runPushRegister,
}

var pushDataCmd = &cobra.Command{
	Use:   "data <file>",
	Short: "Send a data or error report",
	Args:  cobra.ExactArgs(1),
	RunE:  runPushData,
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.AddCommand(pushRegisterCmd)
	pushCmd.AddCommand(pushDataCmd)

	pushCmd.PersistentFlags().StringVar(&pushServer, "server", "", "server base URL (default http://localhost:<server port>)")
	pushCmd.PersistentFlags().DurationVar(&pushTimeout, "timeout", 30*time.Second, "request timeout")
}

func pushClient() *api.Client {
	server := pushServer
	if server == "" {
		server = "http://localhost:" + cfg.Server.Port
	}
	return api.NewClient(server, api.WithTimeout(pushTimeout))
}

func readPayloadFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

func runPushRegister(cmd *cobra.Command, args []string) error {
	payload, err := readPayloadFile(cmd, args[0])
	if err != nil {
		return err
	}

	networkID, err := pushClient().Register(cmd.Context(), payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), networkID)
	return nil
}

func runPushData(cmd *cobra.Command, args []string) error {
	payload, err := readPayloadFile(cmd, args[0])
	if err != nil {
		return err
	}

	ok, err := pushClient().SendData(cmd.Context(), payload)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server rejected the payload")
	}
	fmt.Fprintln(cmd.OutOrStdout(), api.ResponseSuccess)
	return nil
}
