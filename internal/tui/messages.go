package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mixma5ter/matrixctl/internal/discovery"
	"github.com/mixma5ter/matrixctl/internal/status"
)

// Result actions
const (
	ActionDiscover = "discover"
	ActionSendHex  = "send"
	ActionInit     = "init"
)

// StatusMsg carries a connection status change into the program
type StatusMsg status.Update

// DeviceMsg carries a discovered or refreshed device into the program
type DeviceMsg discovery.DeviceRecord

// ResultMsg reports the outcome of a user action
type ResultMsg struct {
	Action  string
	Command string
	Target  string
	Err     error
	At      time.Time
}

type discoverDoneMsg struct{}

type ageTickMsg struct{}

// messageSender is the subset of *tea.Program the bridge needs
type messageSender interface {
	Send(msg tea.Msg)
}

// Bridge forwards session callbacks into a running program. Callbacks that
// arrive before Attach are dropped; the model reads a snapshot on start.
type Bridge struct {
	mu sync.Mutex
	p  messageSender
}

// NewBridge creates an unattached bridge
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach sets the program that receives forwarded messages
func (b *Bridge) Attach(p messageSender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.p = p
}

// ReportStatus implements status.Sink
func (b *Bridge) ReportStatus(u status.Update) {
	b.send(StatusMsg(u))
}

// DeviceFound forwards a tracker update
func (b *Bridge) DeviceFound(d discovery.DeviceRecord) {
	b.send(DeviceMsg(d))
}

// Result forwards the outcome of work done outside the program
func (b *Bridge) Result(r ResultMsg) {
	b.send(r)
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
