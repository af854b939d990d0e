package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "larkclaw",
	Short: "Lark/Feishu channel gateway",
	Long:  "LarkClaw bridges Lark/Feishu chat messages into a reply dispatcher and back.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
