package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	larkchannel "larkclaw/pkg/channel/lark"
	"larkclaw/pkg/config"

	"github.com/spf13/cobra"
)

var (
	sendAccountID string
	sendChatID    string
	sendText      string
)

const sendTimeout = 30 * time.Second

// sendCmd sends one message directly, without running the gateway.
var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Send one message to a Lark chat",
	Long:  "Loads LarkClaw configuration, resolves the account, and sends one text message to the given chat.",
	Run: func(cmd *cobra.Command, args []string) {
		text := resolveSendText(args)
		if text == "" {
			fmt.Println("nothing to send: pass text as arguments or with --text")
			return
		}
		if strings.TrimSpace(sendChatID) == "" {
			fmt.Println("a chat id is required: pass --chat")
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		settings := config.ResolveAccount(cfg.Channels.Lark, sendAccountID)

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		result := larkchannel.DirectSend(ctx, settings, strings.TrimSpace(sendChatID), text)
		if !result.OK {
			fmt.Printf("send failed: %s\n", result.Error)
			return
		}

		fmt.Printf("sent message %s\n", result.MessageID)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendAccountID, "account", "a", "", "account id (defaults to the first configured account)")
	sendCmd.Flags().StringVarP(&sendChatID, "chat", "c", "", "target chat id")
	sendCmd.Flags().StringVarP(&sendText, "text", "t", "", "message text")
}

func resolveSendText(args []string) string {
	if value := strings.TrimSpace(sendText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}
