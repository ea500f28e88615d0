package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the agentsim CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agentsim version %s\n", version)
		fmt.Println("A multi-agent trading strategy backtester")
		fmt.Println("https://github.com/rustyeddy/agentsim")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
