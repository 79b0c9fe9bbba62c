package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mixma5ter/matrixctl/internal/status"
	"github.com/mixma5ter/matrixctl/internal/ui"
)

// AppName is shown in the dashboard header
const AppName = "MATRIXCTL"

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.PrimaryColor).
			Padding(0, 1)

	FocusedInputStyle = lipgloss.NewStyle().
				Foreground(ui.PrimaryColor).
				Bold(true)

	BlurredInputStyle = lipgloss.NewStyle().
				Foreground(ui.MutedColor)

	ResultOkStyle = lipgloss.NewStyle().
			Foreground(ui.SuccessColor)

	ResultErrStyle = lipgloss.NewStyle().
			Foreground(ui.ErrorColor)
)

// statusStyle picks the colour for a connection status
func statusStyle(s status.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case status.StatusOk:
		return base.Foreground(ui.SuccessColor)
	case status.StatusUnknownWarning:
		return base.Foreground(ui.WarningColor)
	case status.StatusConnectionFailure:
		return base.Foreground(ui.ErrorColor)
	case status.StatusDisconnected:
		return base.Foreground(ui.MutedColor)
	default:
		return base.Foreground(ui.PrimaryColor)
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ui.TextColor).
		Background(ui.PrimaryColor).
		Bold(false)
	return s
}
