package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flashImagePath     string
	flashFragmentSize  int
	flashLoadAddr      uint32
	flashCheckpointDir string
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Enter boot mode, upload a firmware image, and run it",
	Long: `flash runs the complete update sequence against a target: enter boot
mode, upload every fragment of the given image, then command the target
to run the new application.

Exit codes:
  0 - Update completed successfully
  1 - Update failed, or the image could not be loaded
  2 - Connection error, or neither --port nor --url was given`,
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().StringVarP(&flashImagePath, "image", "i", "", "Path to the firmware image (required)")
	flashCmd.Flags().IntVar(&flashFragmentSize, "fragment-size", 1024, "Fragment size in bytes")
	flashCmd.Flags().Uint32Var(&flashLoadAddr, "load-addr", 0, "Target load address")
	flashCmd.Flags().StringVar(&flashCheckpointDir, "checkpoint-dir", "", "Directory for resumable-upload checkpoints (disabled if empty)")
	flashCmd.MarkFlagRequired("image")
}

func runFlash(cmd *cobra.Command, args []string) error {
	orch := newOrchestrator(flashCheckpointDir)
	cleanup, err := connectAndRender(orch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	if err := orch.LoadImage(flashImagePath, flashFragmentSize, flashLoadAddr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if result, err := orch.EnterBoot(); err != nil || !result.Success {
		fmt.Fprintf(os.Stderr, "enter boot failed: %v %s\n", err, result.ErrorMessage)
		os.Exit(1)
	}

	if result, err := orch.UploadAll(); err != nil || !result.Success {
		fmt.Fprintf(os.Stderr, "upload failed: %v %s\n", err, result.ErrorMessage)
		os.Exit(1)
	}

	if result, err := orch.RunApp(); err != nil || !result.Success {
		fmt.Fprintf(os.Stderr, "run app failed: %v %s\n", err, result.ErrorMessage)
		os.Exit(1)
	}

	fmt.Println("flash complete")
	return nil
}
