package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitCode is the process exit status. Review runs encode their result in it:
// 0 full success, 1-100 the number of failed files, 101 an authorization or
// configuration failure.
var exitCode int

var configPath string

var rootCmd = &cobra.Command{
	Use:   "crb-cli",
	Short: "crb-cli is the command-line interface for CodeReviewBot.",
	Long:  `A CLI for running CodeReviewBot reviews from CI and inspecting a running service.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file (default <workspace>/config.yml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("CRB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
