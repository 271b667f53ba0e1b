package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pamudu-ranasinghe/virtualme/config"
	core "github.com/pamudu-ranasinghe/virtualme/internal/agent/core"
	srv "github.com/pamudu-ranasinghe/virtualme/internal/server"
	"github.com/pamudu-ranasinghe/virtualme/provider"
)

// printSink writes pipeline status lines to stdout as they happen.
type printSink struct{}

func (printSink) Emit(ev core.Event) {
	if ev.Type == core.EventStatus {
		fmt.Printf("  [%s] %s\n", ev.Node, ev.Message)
	}
}

// chatCMD is a local REPL against the pipeline with in-memory history. No
// server, database, or redis needed.
func chatCMD() *cobra.Command {
	var cfgPath string
	var chat = &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			registry, err := srv.BuildRegistry(cfg)
			if err != nil {
				return err
			}
			coord := core.NewCoordinator(llm, registry, nil)

			var history []core.ConversationTurn
			window := cfg.General.HistoryWindow
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("type a question, or /quit to exit")
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}
				out := coord.Turn(context.Background(), line, history, printSink{})
				fmt.Println(out.Answer)
				for _, cit := range out.Citations {
					fmt.Printf("  - %s: %s\n", cit.SourceType, cit.SourceName)
				}
				history = append(history, out.UserTurn, out.AssistantTurn)
				if window > 0 && len(history) > window {
					history = history[len(history)-window:]
				}
			}
		},
	}
	chat.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return chat
}
