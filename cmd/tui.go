package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/ui"
)

// tuiLogPath keeps log lines out of the terminal while the TUI owns it.
const tuiLogPath = "~/.flx/tui.log"

// TUI launches the interactive terminal UI for browsing and managing both lists.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if !r.isTerminal() {
		return fmt.Errorf("%w: the TUI needs an interactive terminal", shared.ErrInvalidInput)
	}

	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)
	r.quiet = true

	if err := r.open(ctx); err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.Options{
		Engine:    r.engine,
		Watchlist: r.watchlist,
		Likes:     r.likes,
		Bus:       r.bus,
	})
	defer model.Close()

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
