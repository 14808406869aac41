package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	uploadImagePath     string
	uploadFragmentSize  int
	uploadLoadAddr      uint32
	uploadCheckpointDir string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a firmware image to a target already in boot mode",
	Long: `upload sends every fragment of the given image via the Upload command.
It does not enter boot mode or run the application afterward; use flash
for the full sequence, or enter-boot/run-app to bracket this manually.

Exit codes:
  0 - Upload completed successfully
  1 - Upload failed, or the image could not be loaded
  2 - Connection error, or neither --port nor --url was given`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVarP(&uploadImagePath, "image", "i", "", "Path to the firmware image (required)")
	uploadCmd.Flags().IntVar(&uploadFragmentSize, "fragment-size", 1024, "Fragment size in bytes")
	uploadCmd.Flags().Uint32Var(&uploadLoadAddr, "load-addr", 0, "Target load address")
	uploadCmd.Flags().StringVar(&uploadCheckpointDir, "checkpoint-dir", "", "Directory for resumable-upload checkpoints (disabled if empty)")
	uploadCmd.MarkFlagRequired("image")
}

func runUpload(cmd *cobra.Command, args []string) error {
	orch := newOrchestrator(uploadCheckpointDir)
	cleanup, err := connectAndRender(orch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	if err := orch.LoadImage(uploadImagePath, uploadFragmentSize, uploadLoadAddr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	result, err := orch.UploadAll()
	if err != nil || !result.Success {
		fmt.Fprintf(os.Stderr, "upload failed: %v %s\n", err, result.ErrorMessage)
		os.Exit(1)
	}
	return nil
}
