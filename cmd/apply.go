package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/octo-studio/internal/cmdroute"
	"github.com/harshul/octo-studio/internal/processor"
	"github.com/harshul/octo-studio/internal/provisioner"
	"github.com/harshul/octo-studio/internal/shell"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/supabase"
	"github.com/harshul/octo-studio/internal/terminal"
	"github.com/harshul/octo-studio/internal/ui"
	"github.com/harshul/octo-studio/internal/vcs"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an AI response to an app",
	Long: `The apply command executes the actions of a response:
- SQL queries against the app's Supabase project
- Terminal commands, routed to the frontend or backend terminal
- Dependency installs
- File writes, edits, renames and deletes, each committed to git

The response is read from --file (or stdin) and stored as a new message,
or taken from an existing message with --message.`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().Int64("app", 0, "App id; a new chat is created for the response")
	applyCmd.Flags().Int64("chat", 0, "Chat id the response belongs to")
	applyCmd.Flags().Int64("message", 0, "Apply a stored assistant message")
	applyCmd.Flags().StringP("file", "f", "", "Read the response from a file (- for stdin)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	appID, _ := flags.GetInt64("app")
	chatID, _ := flags.GetInt64("chat")
	messageID, _ := flags.GetInt64("message")
	file, _ := flags.GetString("file")

	if appID == 0 && chatID == 0 {
		return errors.New("one of --app or --chat is required")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var chat store.Chat
	if chatID != 0 {
		if chat, err = st.GetChat(ctx, chatID); err != nil {
			return fmt.Errorf("failed to load chat %d: %w", chatID, err)
		}
	} else {
		if _, err := st.GetApp(ctx, appID); err != nil {
			return fmt.Errorf("failed to load app %d: %w", appID, err)
		}
		if chat, err = st.CreateChat(ctx, appID, "octo apply"); err != nil {
			return fmt.Errorf("failed to create chat: %w", err)
		}
	}

	var response string
	if messageID == 0 || file != "" {
		if response, err = readResponse(cmd.InOrStdin(), file); err != nil {
			return err
		}
		if strings.TrimSpace(response) == "" {
			return errors.New("response is empty")
		}
	}
	if messageID == 0 {
		msg := store.Message{ChatID: chat.ID, Role: store.RoleAssistant, Content: response}
		if err := st.AddMessage(ctx, &msg); err != nil {
			return fmt.Errorf("failed to store response: %w", err)
		}
		messageID = msg.ID
	}

	router := terminal.NewRouter(terminal.NewHub(0))
	proc, err := newProcessor(st, router)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner("Applying response...")
	spinner.Start()
	out := proc.Apply(ctx, processor.Request{ChatID: chat.ID, MessageID: messageID, Response: response})
	spinner.Stop()

	for _, l := range router.Hub().Store(chat.AppID).Lines(terminal.ScopeMain) {
		fmt.Fprintln(ui.Output, l.Message)
	}
	return reportOutcome(chat, messageID, out)
}

func newProcessor(st *store.Store, router *terminal.Router) (*processor.Processor, error) {
	runner := shell.NewRunner(logger)
	deps := processor.Deps{
		Repo:      st,
		Snapshots: st,
		OpenRepo: func(dir string) (processor.VersionControl, error) {
			return vcs.Open(dir, vcs.Options{Init: true})
		},
		Installer: provisioner.NewInstaller(runner, logger),
		Runner:    runner,
		Terminal:  router,
		Logger:    logger,
	}
	if cfg.Supabase.AccessToken != "" {
		client := supabase.NewClient(supabase.Options{
			BaseURL:     cfg.Supabase.APIURL,
			AccessToken: cfg.Supabase.AccessToken,
			Logger:      logger,
		})
		deps.SQL, deps.Functions = client, client
	}
	return processor.New(deps, processor.Options{
		AppsDir:            cfg.AppsDir,
		WriteSQLMigrations: cfg.WriteSQLMigrations,
		DefaultChatMode:    cmdroute.ChatMode(cfg.ChatMode),
	})
}

func readResponse(stdin io.Reader, file string) (string, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read response from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), nil
}

func reportOutcome(chat store.Chat, messageID int64, out processor.Outcome) error {
	if out.Error != nil {
		ui.Error(out.Error.Error())
		return fmt.Errorf("response was not applied: %w", out.Error)
	}

	ui.Divider()
	ui.Highlight("Chat", fmt.Sprint(chat.ID))
	ui.Highlight("Message", fmt.Sprint(messageID))
	if out.CommitHash != "" {
		ui.Highlight("Commit", out.CommitHash)
	}
	if out.UpdatedFiles {
		ui.Success("Files updated")
	} else {
		ui.Info("No files changed")
	}
	if len(out.ExtraFiles) > 0 {
		ui.Warn(fmt.Sprintf("Committed %d file(s) changed outside the response: %s", len(out.ExtraFiles), strings.Join(out.ExtraFiles, ", ")))
	}
	if out.ExtraFilesError != "" {
		ui.Warn("Failed to commit extra files: " + out.ExtraFilesError)
	}
	for _, w := range out.Warnings() {
		ui.Warn(w.String())
	}
	errs := out.Errors()
	for _, e := range errs {
		ui.Error(e.String())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d action(s) failed", len(errs))
	}
	return nil
}
