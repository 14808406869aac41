package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runAppCmd = &cobra.Command{
	Use:   "run-app",
	Short: "Command the target to run the uploaded application",
	Long: `run-app sends the RunApp command in isolation, for scripted diagnostics
after a manual upload sequence.

Exit codes:
  0 - Target acknowledged the request
  1 - Target rejected the request or did not respond
  2 - Connection error`,
	RunE: runRunApp,
}

func init() {
	rootCmd.AddCommand(runAppCmd)
}

func runRunApp(cmd *cobra.Command, args []string) error {
	orch := newOrchestrator("")
	cleanup, err := connectAndRender(orch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	result, err := orch.RunApp()
	if err != nil || !result.Success {
		fmt.Fprintf(os.Stderr, "run app failed: %v %s\n", err, result.ErrorMessage)
		os.Exit(1)
	}
	return nil
}
