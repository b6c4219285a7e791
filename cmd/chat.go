package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/tags"
	"github.com/harshul/octo-studio/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat <chat-id>",
	Short: "Show a chat's messages and how each response was applied",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().Bool("full", false, "Print the complete message content")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q", args[0])
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	chat, err := st.GetChat(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load chat %d: %w", id, err)
	}
	msgs, err := st.ListMessages(ctx, chat.ID)
	if err != nil {
		return err
	}
	full, _ := cmd.Flags().GetBool("full")

	ui.Highlight("Chat", fmt.Sprintf("%d %s (app %d)", chat.ID, chat.Title, chat.AppID))
	for _, m := range msgs {
		ui.Divider()
		header := fmt.Sprintf("#%d %s %s", m.ID, m.Role, time.Unix(m.CreatedAt, 0).Format("2006-01-02 15:04"))
		if m.Role == store.RoleAssistant {
			header += " [" + m.ApprovalState + "]"
			if m.CommitHash != "" {
				header += " " + m.CommitHash[:min(8, len(m.CommitHash))]
			}
		}
		ui.Info(header)
		if full {
			fmt.Fprintln(ui.Output, m.Content)
			continue
		}
		if m.Role == store.RoleAssistant {
			fmt.Fprintln(ui.Output, summarizeActions(m.Content))
		} else {
			fmt.Fprintln(ui.Output, firstLine(m.Content))
		}
	}
	return nil
}

// summarizeActions counts the tags of a response by kind.
func summarizeActions(content string) string {
	parsed := tags.Parse(content)
	if parsed.Empty() {
		return firstLine(content)
	}
	counts := []struct {
		label string
		n     int
	}{
		{"write", len(parsed.Writes)},
		{"edit", len(parsed.SearchReplaces)},
		{"rename", len(parsed.Renames)},
		{"delete", len(parsed.Deletes)},
		{"dependency", len(parsed.Packages)},
		{"sql", len(parsed.SQL)},
		{"command", len(parsed.BackendCommands) + len(parsed.FrontendCommands) + len(parsed.GeneralCommands)},
	}
	var parts []string
	for _, c := range counts {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.label))
		}
	}
	if len(parts) == 0 {
		return firstLine(content)
	}
	return "   " + strings.Join(parts, ", ")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return "   " + line
}
