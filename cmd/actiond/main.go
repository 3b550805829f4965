// Command actiond runs the Remediation Workflow Engine: atomic recovery
// actions and the composed db-pool-exhaustion workflow against a target
// stack, invoked independently of the chaos service that may have
// induced the failure.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	serviceName    = "actiond"
	serviceVersion = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Remediation Workflow Engine control plane",
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
