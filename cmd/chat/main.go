// Interview Chat terminal client.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/ashureev/interview-chat/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Take the AI Excel interview from the terminal",
	Long: `chat runs one interview session against the interviewer service.

The service URL defaults to INTERVIEWER_API_URL (or NEXT_PUBLIC_API_URL).
The transcript lives only for the lifetime of the process.`,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.Flags().StringVar(&baseURL, "url", "", "Interviewer service base URL (default: $INTERVIEWER_API_URL)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-call timeout (0 = none)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (default: discard)")
}

func defaultURL() string {
	if v := os.Getenv("INTERVIEWER_API_URL"); v != "" {
		return v
	}
	return os.Getenv("NEXT_PUBLIC_API_URL")
}

// newLogger writes text logs to path. stdout belongs to the TUI.
func newLogger(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, f.Close, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	logger, closeLog, err := newLogger(logFile)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if baseURL == "" {
		baseURL = defaultURL()
	}

	client, err := interviewer.NewClient(interviewer.Config{
		BaseURL: baseURL,
		Timeout: timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("interviewer client: %w (set --url or INTERVIEWER_API_URL)", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := interview.NewSession(uuid.NewString())
	logger.Info("Terminal session started", "session_id", session.ID(), "endpoint", client.Endpoint())

	p := tea.NewProgram(
		tui.New(ctx, session, client, logger),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}

	snap := session.Snapshot()
	logger.Info("Terminal session ended",
		"session_id", session.ID(),
		"messages", len(snap.Messages),
		"question_index", snap.QuestionIndex,
		"concluded", snap.IsInterviewOver,
	)
	return nil
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
