package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Стили вывода
var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#d70000", Dark: "#f07178"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#af8700", Dark: "#ffb454"})
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0087af", Dark: "#59c2ff"})
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5f8700", Dark: "#c2d94c"})
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

// errReported означает, что ошибка уже выведена пользователю
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:           "chop",
	Short:         "Randomly delete a share of entries per section and status",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newEntriesCmd(), newWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		}
		os.Exit(1)
	}
}
