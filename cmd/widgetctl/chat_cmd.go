package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"agyntsynq/internal/embed"
	"agyntsynq/internal/entities"
	"agyntsynq/internal/widget"

	"github.com/spf13/cobra"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		chatbotID   string
		storagePath string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a chatbot as a website visitor",
		Long: "Runs the visitor flow: lead form first, then chat. The profile and " +
			"session are kept in a SQLite file so a later run resumes the conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !embed.ValidChatbotID(chatbotID) {
				return fmt.Errorf("invalid --id %q", chatbotID)
			}
			log, err := opts.logger()
			if err != nil {
				return err
			}
			if storagePath == "" {
				storagePath = defaultStoragePath()
			}
			storage, err := widget.OpenSQLiteStorage(cmd.Context(), storagePath)
			if err != nil {
				return err
			}
			defer storage.Close()

			view := newTerminalView(cmd.OutOrStdout())
			w, err := widget.New(widget.Options{
				ChatbotID:      chatbotID,
				API:            widget.NewClient(opts.apiBase, opts.timeout),
				Storage:        storage,
				View:           view,
				RequestTimeout: opts.timeout,
				Log:            log,
			})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			w.Start(ctx)
			defer w.Close()

			return runChat(ctx, w, readLines(ctx, cmd.InOrStdin()), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&chatbotID, "id", "", "Chatbot id (required)")
	cmd.Flags().StringVar(&storagePath, "storage", "", "SQLite file for widget state (default: user config dir)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "widgetctl.db"
	}
	dir = filepath.Join(dir, "agyntsynq")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "widgetctl.db"
	}
	return filepath.Join(dir, "widgetctl.db")
}

// readLines feeds r line by line until EOF or ctx is done. A Scan already
// blocked on r returns only when r does.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

var errInputClosed = errors.New("input closed")

func prompt(ctx context.Context, out io.Writer, lines <-chan string, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return "", errInputClosed
		}
		return strings.TrimSpace(line), nil
	}
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "y" || s == "yes"
}

func runChat(ctx context.Context, w *widget.Instance, lines <-chan string, out io.Writer) error {
	for w.State() == widget.StateAwaitingCapture {
		form, err := promptLead(ctx, out, lines)
		if err != nil {
			return err
		}
		err = w.SubmitLead(form)
		if errors.Is(err, entities.ErrIncompleteProfile) {
			fmt.Fprintln(out, "All fields are required.")
			continue
		}
		if err != nil && !errors.Is(err, entities.ErrNoConsent) {
			return err
		}
	}

	w.SetOpen(true)
	fmt.Fprintln(out, "Type a message and press enter. /quit to leave.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				w.Flush()
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "/quit" {
				return nil
			}
			if err := w.Send(line); err != nil {
				return err
			}
		}
	}
}

func promptLead(ctx context.Context, out io.Writer, lines <-chan string) (widget.LeadForm, error) {
	var form widget.LeadForm
	fields := []struct {
		label string
		dst   *string
	}{
		{"First name", &form.FirstName},
		{"Last name", &form.LastName},
		{"Email", &form.Email},
		{"Phone", &form.Phone},
	}
	for _, f := range fields {
		v, err := prompt(ctx, out, lines, f.label)
		if err != nil {
			return form, err
		}
		*f.dst = v
	}
	consents := []struct {
		label string
		dst   *bool
	}{
		{"Contact me by email? [y/N]", &form.OptInEmail},
		{"Contact me by SMS? [y/N]", &form.OptInSMS},
		{"Contact me by phone? [y/N]", &form.OptInPhone},
	}
	for _, c := range consents {
		v, err := prompt(ctx, out, lines, c.label)
		if err != nil {
			return form, err
		}
		*c.dst = yes(v)
	}
	return form, nil
}
