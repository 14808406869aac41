// Command boothost is the CLI entry point for the firmware updater.
package main

import (
	"fmt"
	"os"

	"github.com/RZJZWD/MCU-boot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
