package main

import (
	"encoding/json"
	"fmt"

	"agyntsynq/internal/embed"
	"agyntsynq/internal/widget"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var chatbotID string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print a chatbot's widget config and derived theme",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !embed.ValidChatbotID(chatbotID) {
				return fmt.Errorf("invalid --id %q", chatbotID)
			}
			cfg, err := widget.NewClient(opts.apiBase, opts.timeout).FetchConfig(cmd.Context(), chatbotID)
			if err != nil {
				return err
			}
			out := struct {
				Chatbot any          `json:"chatbot"`
				Theme   widget.Theme `json:"theme"`
			}{Chatbot: cfg, Theme: widget.DeriveTheme(cfg.ThemeColor)}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&chatbotID, "id", "", "Chatbot id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSnippetCmd(opts *rootOptions) *cobra.Command {
	var chatbotID string
	cmd := &cobra.Command{
		Use:   "snippet",
		Short: "Print the script tag a site owner pastes into their page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !embed.ValidChatbotID(chatbotID) {
				return fmt.Errorf("invalid --id %q", chatbotID)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), embed.Snippet(opts.apiBase, chatbotID))
			return err
		},
	}
	cmd.Flags().StringVar(&chatbotID, "id", "", "Chatbot id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
