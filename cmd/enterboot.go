package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var enterBootCmd = &cobra.Command{
	Use:   "enter-boot",
	Short: "Request the target enter its bootloader",
	Long: `enter-boot sends the EnterBoot command in isolation and prints the
target's reported device information. Useful for scripted diagnostics.

Exit codes:
  0 - Target entered boot mode
  1 - Target rejected the request or did not respond
  2 - Connection error`,
	RunE: runEnterBoot,
}

func init() {
	rootCmd.AddCommand(enterBootCmd)
}

func runEnterBoot(cmd *cobra.Command, args []string) error {
	orch := newOrchestrator("")
	cleanup, err := connectAndRender(orch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	result, err := orch.EnterBoot()
	if err != nil || !result.Success {
		fmt.Fprintf(os.Stderr, "enter boot failed: %v %s\n", err, result.ErrorMessage)
		os.Exit(1)
	}
	return nil
}
