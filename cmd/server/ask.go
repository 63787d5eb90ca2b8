package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mindsync-backend/internal/config"
	"mindsync-backend/internal/handlers"
	"mindsync-backend/internal/logger"
	"mindsync-backend/internal/models"
	"mindsync-backend/internal/services"
)

type askOptions struct {
	historyPath string
	raw         bool
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message through the relay and print the reply",
		Long: `Send one message through the same relay pipeline the server uses.

History is read from a JSON file holding [{"role": "...", "content": "..."}]
entries, oldest first. Use "-" to read it from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.historyPath, "history", "", "path to a JSON conversation history file")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the reply without markdown rendering")
	return cmd
}

func runAsk(cmd *cobra.Command, message string, opts *askOptions) error {
	cfg := config.Load()
	log := logger.New(cfg.LogDebug)
	defer log.Sync()

	history, err := readHistory(cmd.InOrStdin(), opts.historyPath)
	if err != nil {
		return err
	}

	generator, closeGenerator, err := newGenerator(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("gemini backend: %w", err)
	}
	defer closeGenerator()

	relay := services.NewChatRelay(generator, cfg.UpstreamTimeout, log.Named("relay"))
	outcome := handlers.NewOutcome(relay.Relay(cmd.Context(), models.ChatRequest{
		Message: message,
		History: history,
	}))
	if outcome.Error != "" {
		return errors.New(outcome.Error)
	}

	out := cmd.OutOrStdout()
	if opts.raw || !isTerminal(out) {
		_, err := fmt.Fprintln(out, outcome.Response)
		return err
	}

	rendered, err := renderMarkdown(outcome.Response)
	if err != nil {
		_, err = fmt.Fprintln(out, outcome.Response)
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func readHistory(stdin io.Reader, path string) ([]models.ChatMessage, error) {
	if path == "" {
		return nil, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var history []models.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return history, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func renderMarkdown(text string) (string, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 4
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}
