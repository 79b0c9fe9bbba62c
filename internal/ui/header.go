package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one key/value line; order is preserved when rendered
type Detail struct {
	Key   string
	Value string
}

// Header is the banner printed before a command's output
type Header struct {
	Title   string   // e.g., "DEVICE DISCOVERY"
	Command string   // e.g., "matrixctl discover"
	Params  []Detail // e.g., {"Port", "7000"}
	Width   int
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params ...Detail) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := ClampWidth(h.Width)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(h.Params) > 0 {
		content = lipgloss.JoinVertical(lipgloss.Left,
			content,
			RenderHorizontalDivider(width-6),
			renderDetails(h.Params, "  "),
		)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width-2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

func renderDetails(details []Detail, indent string) string {
	lines := make([]string, 0, len(details))
	for _, d := range details {
		lines = append(lines, indent+KeyStyle.Render(d.Key+":")+" "+ValueStyle.Render(d.Value))
	}
	return strings.Join(lines, "\n")
}
