package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RZJZWD/MCU-boot/internal/link"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Protocol flags shared by every subcommand
	timeoutSeconds int
	retryCount     int
	debugLogging   bool
)

var rootCmd = &cobra.Command{
	Use:   "boothost",
	Short: "Firmware updater for the resident bootloader",
	Long: `boothost drives a target microcontroller's resident bootloader over a
byte-stream link: entering boot mode, streaming a firmware image fragment
by fragment with a CRC-32 per fragment, and commanding the target to run
the new application.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
BOOTHOST_PASSWORD environment variable, or prompted interactively if not
set. There is intentionally no --password flag, to avoid leaking
credentials in shell history.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().IntVar(&timeoutSeconds, "timeout", 3, "Per-command timeout in seconds")
	rootCmd.PersistentFlags().IntVar(&retryCount, "retries", 3, "Transport-level retry count per command")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func connectOptions() link.Options {
	return link.Options{
		Port:        portName,
		Baud:        baudRate,
		URL:         wsURL,
		Username:    wsUsername,
		NoSSLVerify: wsNoSSLVerify,
		PasswordEnv: "BOOTHOST_PASSWORD",
	}
}

func timeout() time.Duration {
	return time.Duration(timeoutSeconds) * time.Second
}

func validateConnectionFlags() error {
	if portName == "" && wsURL == "" {
		return fmt.Errorf("either --port or --url must be specified")
	}
	return nil
}
