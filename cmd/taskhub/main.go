package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskhub",
	Short: "Taskhub: personal and team task lists",
	Long:  "Taskhub is a multi-tenant task backend with one-time code sign-in by phone or email, personal todos, and team task lists with role-based access and shared completion tracking.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/taskhub.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
