package cmd

import (
	"fmt"
	"os"

	"github.com/deploykit/config"
	"github.com/spf13/cobra"
)

var envFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deploykit",
	Short: "Build git repositories into images and roll them out to Kubernetes.",
	Long: `deploykit builds a project's repository on a remote build host over SSH,
pushes the image to a private registry and applies the generated Kubernetes
manifests, streaming the build output live to API clients.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv(envFile)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}
