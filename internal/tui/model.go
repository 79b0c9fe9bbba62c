package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mixma5ter/matrixctl/internal/discovery"
	"github.com/mixma5ter/matrixctl/internal/status"
	"github.com/mixma5ter/matrixctl/internal/ui"
)

const (
	// discoverWindow is how long the spinner runs after a probe with no reply
	discoverWindow = 3 * time.Second

	// ageInterval is how often the Last Seen column is re-rendered
	ageInterval = time.Second

	tableWidth = 76
)

// Controller is the session surface the dashboard drives
type Controller interface {
	Discover() error
	SendHex(hexCommand, targetIP string) error
	Devices() []discovery.DeviceRecord
	Status() status.Update
}

type mode int

const (
	modeBrowse mode = iota
	modeInput
)

// Model is the watch dashboard
type Model struct {
	ctrl Controller

	width  int
	height int
	mode   mode

	current     status.Update
	devices     []discovery.DeviceRecord
	discovering bool
	lastResult  *ResultMsg

	table       table.Model
	hexInput    textinput.Model
	targetInput textinput.Model
	focus       int
	spinner     spinner.Model
	help        help.Model
	browseKeys  browseKeyMap
	inputKeys   inputKeyMap

	now func() time.Time
}

// NewModel creates the dashboard seeded from the controller's current state
func NewModel(ctrl Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Address", Width: 16},
			{Title: "Port", Width: 6},
			{Title: "Replies", Width: 8},
			{Title: "Last Seen", Width: 10},
			{Title: "Reply", Width: 24},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
		table.WithWidth(tableWidth),
	)
	t.SetStyles(tableStyles())

	hexInput := textinput.New()
	hexInput.Placeholder = "a5 01 00 ff"
	hexInput.Prompt = "Hex:    "
	hexInput.CharLimit = 512

	targetInput := textinput.New()
	targetInput.Placeholder = "configured host"
	targetInput.Prompt = "Target: "
	targetInput.CharLimit = 15

	m := Model{
		ctrl:        ctrl,
		width:       tableWidth + 6,
		current:     ctrl.Status(),
		devices:     ctrl.Devices(),
		table:       t,
		hexInput:    hexInput,
		targetInput: targetInput,
		spinner:     s,
		help:        help.New(),
		browseKeys:  newBrowseKeyMap(),
		inputKeys:   newInputKeyMap(),
		now:         time.Now,
	}
	m.refreshRows()
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, ageTick())
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetHeight(max(3, msg.Height-14))
		m.table.SetWidth(max(tableWidth, ui.ClampWidth(msg.Width)-6))
		return m, nil

	case StatusMsg:
		m.current = status.Update(msg)
		return m, nil

	case DeviceMsg:
		m.upsert(discovery.DeviceRecord(msg))
		m.discovering = false
		return m, nil

	case ResultMsg:
		m.lastResult = &msg
		if msg.Action == ActionDiscover && msg.Err == nil {
			m.discovering = true
			return m, tea.Tick(discoverWindow, func(time.Time) tea.Msg { return discoverDoneMsg{} })
		}
		m.discovering = false
		return m, nil

	case discoverDoneMsg:
		m.discovering = false
		return m, nil

	case ageTickMsg:
		m.refreshRows()
		return m, ageTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.mode == modeInput {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}

	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.browseKeys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.browseKeys.Discover):
		return m, discoverCmd(m.ctrl)
	case key.Matches(msg, m.browseKeys.Send):
		return m.openForm("")
	case key.Matches(msg, m.browseKeys.Target):
		if row := m.table.SelectedRow(); row != nil {
			return m.openForm(row[0])
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.inputKeys.Cancel):
		m.closeForm()
		return m, nil
	case key.Matches(msg, m.inputKeys.Next):
		m.focus = 1 - m.focus
		if m.focus == 0 {
			m.targetInput.Blur()
			return m, m.hexInput.Focus()
		}
		m.hexInput.Blur()
		return m, m.targetInput.Focus()
	case key.Matches(msg, m.inputKeys.Confirm):
		hexCommand := m.hexInput.Value()
		target := strings.TrimSpace(m.targetInput.Value())
		m.closeForm()
		return m, sendCmd(m.ctrl, hexCommand, target)
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.hexInput, cmd = m.hexInput.Update(msg)
	} else {
		m.targetInput, cmd = m.targetInput.Update(msg)
	}
	return m, cmd
}

func (m Model) openForm(target string) (tea.Model, tea.Cmd) {
	m.mode = modeInput
	m.focus = 0
	m.hexInput.Reset()
	m.targetInput.SetValue(target)
	m.targetInput.Blur()
	m.table.Blur()
	return m, tea.Batch(m.hexInput.Focus(), textinput.Blink)
}

func (m *Model) closeForm() {
	m.mode = modeBrowse
	m.hexInput.Blur()
	m.targetInput.Blur()
	m.table.Focus()
}

// upsert replaces the record for d.Address or inserts it in address order
func (m *Model) upsert(d discovery.DeviceRecord) {
	for i := range m.devices {
		if m.devices[i].Address == d.Address {
			m.devices[i] = d
			m.refreshRows()
			return
		}
	}
	i := 0
	for i < len(m.devices) && m.devices[i].Address < d.Address {
		i++
	}
	m.devices = append(m.devices, discovery.DeviceRecord{})
	copy(m.devices[i+1:], m.devices[i:])
	m.devices[i] = d
	m.refreshRows()
}

func (m *Model) refreshRows() {
	rows := make([]table.Row, 0, len(m.devices))
	for i := range m.devices {
		d := &m.devices[i]
		reply := d.ReplyHex()
		if len(reply) > 24 {
			reply = reply[:21] + "..."
		}
		rows = append(rows, table.Row{
			d.Address,
			strconv.Itoa(d.Port),
			strconv.Itoa(d.Responses),
			ui.FormatAge(d.Age(m.now())),
			reply,
		})
	}
	m.table.SetRows(rows)
}

// busy reports whether the spinner should run
func (m Model) busy() bool {
	return m.discovering || m.current.Status == status.StatusConnecting
}

// View implements tea.Model
func (m Model) View() string {
	width := max(ui.ClampWidth(m.width), tableWidth+6)

	statusLine := statusStyle(m.current.Status).Render(m.current.Status.Label())
	if m.current.Message != "" {
		statusLine += "  " + m.current.Message
	}
	if m.busy() {
		statusLine = m.spinner.View() + " " + statusLine
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		TitleStyle.Render(AppName),
		"  ",
		SubtitleStyle.Render(fmt.Sprintf("%d device(s)", len(m.devices))),
	)

	var body string
	if len(m.devices) == 0 {
		body = SubtitleStyle.Render("No devices yet. Press d to discover.")
	} else {
		body = m.table.View()
	}

	sections := []string{
		header,
		statusLine,
		PanelStyle.Width(width-4).Render(body),
	}

	if m.mode == modeInput {
		sections = append(sections, PanelStyle.Width(width-4).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				inputStyle(m.focus == 0).Render(m.hexInput.View()),
				inputStyle(m.focus == 1).Render(m.targetInput.View()),
			)))
	}

	if r := m.lastResult; r != nil {
		sections = append(sections, renderResult(r))
	}

	if m.mode == modeInput {
		sections = append(sections, m.help.View(m.inputKeys))
	} else {
		sections = append(sections, m.help.View(m.browseKeys))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func inputStyle(focused bool) lipgloss.Style {
	if focused {
		return FocusedInputStyle
	}
	return BlurredInputStyle
}

func renderResult(r *ResultMsg) string {
	stamp := r.At.Format("15:04:05")
	if r.Err != nil {
		return ResultErrStyle.Render(fmt.Sprintf("%s %s %s failed: %v", stamp, ui.FailureMarker, r.Action, r.Err))
	}
	switch r.Action {
	case ActionSendHex:
		target := r.Target
		if target == "" {
			target = "configured host"
		}
		return ResultOkStyle.Render(fmt.Sprintf("%s %s sent %s to %s", stamp, ui.SuccessMarker, r.Command, target))
	default:
		return ResultOkStyle.Render(fmt.Sprintf("%s %s %s ok", stamp, ui.SuccessMarker, r.Action))
	}
}

func ageTick() tea.Cmd {
	return tea.Tick(ageInterval, func(time.Time) tea.Msg { return ageTickMsg{} })
}

func discoverCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Discover()
		return ResultMsg{Action: ActionDiscover, Err: err, At: time.Now()}
	}
}

func sendCmd(ctrl Controller, hexCommand, target string) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.SendHex(hexCommand, target)
		return ResultMsg{Action: ActionSendHex, Command: hexCommand, Target: target, Err: err, At: time.Now()}
	}
}
