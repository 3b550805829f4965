// Command chaosd runs the Fault Injection & Lifecycle Engine: the
// control plane that creates, observes, and rolls back chaos attacks
// against a target stack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	serviceName    = "chaosd"
	serviceVersion = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Fault Injection & Lifecycle Engine control plane",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; env vars and defaults still apply)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
