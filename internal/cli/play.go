package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"quizwhiz/internal/config"
	"quizwhiz/internal/logging"
	"quizwhiz/internal/tui"
)

const defaultPlayStore = "sqlite"

// NewPlayCmd runs a quiz in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		topic  string
		driver string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, topic, driver)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "start right away on this topic")
	cmd.Flags().StringVar(&driver, "store", "", "question store: sqlite, memory, redis or postgres (default sqlite)")
	return cmd
}

func runPlay(ctx context.Context, configPath, topic, driver string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("play needs an interactive terminal")
	}
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if driver == "" {
		driver = cfg.Store.Driver
	}
	if driver == "" {
		driver = defaultPlayStore
	}

	logPath := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logging.New(logFile, cfg.Log.Level, "text")

	b, err := openBackend(ctx, cfg, driver, log)
	if err != nil {
		return err
	}
	defer b.Close()

	service := newService(cfg, b, log, nil)
	model := tui.NewModel(service, tui.Config{
		Topics: quizTopics(cfg),
		Tick:   config.Duration(cfg.Quiz.Tick, time.Second),
		Topic:  topic,
	})
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}
