package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mixma5ter/matrixctl/internal/discovery"
)

// Printer writes CLI output. Styled boxes are used on a terminal; plain
// lines otherwise, so output stays parseable when piped.
type Printer struct {
	out    io.Writer
	width  int
	styled bool
}

// NewPrinter creates a Printer for w. If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = IsTerminal(f)
	}
	return &Printer{out: w, width: GetTerminalWidth(), styled: styled}
}

// NewPlainPrinter creates a Printer that never styles its output
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{out: w, width: MinTerminalWidth}
}

// Styled reports whether boxes and colour are used
func (p *Printer) Styled() bool {
	return p.styled
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box; plain output skips it
func (p *Printer) PrintHeader(title, command string, params ...Detail) {
	if !p.styled {
		return
	}
	h := NewHeader(title, command, params...)
	h.Width = p.width
	p.Println(h.Render())
}

// PrintSuccess prints a success result
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	if !p.styled {
		p.Println(title)
		p.printPlainDetails(details)
		return
	}
	r := NewSuccessResult(title, details...)
	r.Width = p.width
	p.Println(r.Render())
}

// PrintWarning prints a warning result
func (p *Printer) PrintWarning(title string, details ...Detail) {
	if !p.styled {
		p.Println("warning: " + title)
		p.printPlainDetails(details)
		return
	}
	r := NewWarningResult(title, details...)
	r.Width = p.width
	p.Println(r.Render())
}

// PrintError prints a failure result with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting ...string) {
	if !p.styled {
		p.Println(fmt.Sprintf("error: %s: %v", title, err))
		return
	}
	r := NewFailureResult(title, err, troubleshooting...)
	r.Width = p.width
	p.Println(r.Render())
}

// PrintDevices prints the device table
func (p *Printer) PrintDevices(devices []discovery.DeviceRecord) {
	p.Println(RenderDeviceTable(devices, time.Now(), p.styled))
}

func (p *Printer) printPlainDetails(details []Detail) {
	for _, d := range details {
		p.Println(fmt.Sprintf("  %s: %s", d.Key, d.Value))
	}
}

// RenderDeviceTable renders devices as aligned columns. LAST SEEN is shown
// relative to now.
func RenderDeviceTable(devices []discovery.DeviceRecord, now time.Time, styled bool) string {
	if len(devices) == 0 {
		return "No devices found"
	}

	header := fmt.Sprintf("%-16s %-6s %-10s %s", "ADDRESS", "PORT", "RESPONSES", "LAST SEEN")
	if styled {
		header = TableHeaderStyle.Render(header)
	}

	lines := []string{header}
	for _, d := range devices {
		lines = append(lines, fmt.Sprintf("%-16s %-6d %-10d %s",
			d.Address, d.Port, d.Responses, FormatAge(d.Age(now))))
	}
	return strings.Join(lines, "\n")
}

// FormatAge renders a last-seen age in the largest whole unit
func FormatAge(age time.Duration) string {
	switch {
	case age < time.Second:
		return "just now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age/time.Second))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age/time.Minute))
	default:
		return fmt.Sprintf("%dh ago", int(age/time.Hour))
	}
}
