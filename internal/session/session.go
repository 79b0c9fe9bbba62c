package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mixma5ter/matrixctl/internal/command"
	"github.com/mixma5ter/matrixctl/internal/config"
	"github.com/mixma5ter/matrixctl/internal/discovery"
	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/protocol"
	"github.com/mixma5ter/matrixctl/internal/status"
	"github.com/mixma5ter/matrixctl/internal/transport"
)

// InitMessage annotates the Connecting status during Init
const InitMessage = "Initializing UDP"

// Options configures a Session. The zero value is usable.
type Options struct {
	// ListenAddr is the local UDP bind address; empty binds 0.0.0.0:0
	ListenAddr string

	// StaleAfter enables a sweep that drops devices silent for longer than
	// this; zero keeps every device until the next Init
	StaleAfter time.Duration

	// StatusSink receives every status transition
	StatusSink status.Sink

	// OnDevice is called for every discovery reply, after the tracker is updated
	OnDevice func(discovery.DeviceRecord)

	// OnUnclassified is called for datagrams that are not discovery replies
	OnUnclassified func(transport.Datagram)

	// MDNSService is the service browsed by BrowseAndProbe
	MDNSService string

	// MDNSFilter keeps only mDNS instances whose name contains it
	MDNSFilter string

	// Browser replaces the mDNS browser used by BrowseAndProbe
	Browser Browser

	Logger *zap.Logger
}

// Browser finds hosts to send a unicast discovery probe to
type Browser interface {
	Browse(ctx context.Context) ([]*discovery.Candidate, error)
}

// Session is one module instance: a transport, the device table, the status
// machine and the dispatcher built from a single ModuleConfig. Sessions share
// no state, so several may run side by side.
type Session struct {
	id      string
	opts    Options
	logger  *zap.Logger
	tracker *discovery.Tracker
	status  *status.Machine

	// gen identifies the live transport; handlers from an older one are ignored
	gen atomic.Uint64

	mu         sync.Mutex
	cfg        config.ModuleConfig
	transport  *transport.UDP
	dispatcher *command.Dispatcher
	stopSweep  context.CancelFunc
	sweepDone  chan struct{}

	signalMu sync.Mutex
	signal   chan struct{}
}

// New creates a session in the Connecting state with no socket
func New(opts Options) *Session {
	id := uuid.NewString()

	base := opts.Logger
	if base == nil {
		base = logging.Named("session")
	}
	logger := base.With(zap.String("session", id))

	s := &Session{
		id:      id,
		opts:    opts,
		logger:  logger,
		tracker: discovery.NewTracker(),
		status:  status.NewMachine(opts.StatusSink, logger.Named("status")),
		signal:  make(chan struct{}),
	}
	s.dispatcher = command.NewDispatcher(nil, config.DefaultModuleConfig(), logger.Named("command"))
	return s
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// Init validates cfg, opens a fresh transport and waits until it reports
// ready. Any previous transport is torn down first and the device table is
// cleared.
//
// Bind and broadcast failures move the status to ConnectionFailure and are
// returned.
func (s *Session) Init(ctx context.Context, cfg config.ModuleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Initializing module instance", zap.Stringer("config", cfg))

	if s.transport != nil {
		s.teardownLocked()
	}

	s.status.Connecting(InitMessage)
	s.tracker.Reset()
	s.cfg = cfg

	if err := cfg.Validate(); err != nil {
		s.status.Failed(fmt.Sprintf("Config Error: %v", err))
		return err
	}

	gen := s.gen.Add(1)
	t := transport.New(
		transport.WithListenAddr(s.listenAddr()),
		transport.WithLogger(s.logger.Named("transport")),
	)

	ready := make(chan struct{})
	t.OnListening(func(addr *net.UDPAddr) {
		if !s.current(gen) {
			return
		}
		s.status.Ready()
		close(ready)
	})
	t.OnMessage(func(d transport.Datagram) {
		if s.current(gen) {
			s.handleDatagram(d)
		}
	})
	t.OnError(func(err error) {
		if s.current(gen) {
			s.handleSocketError(err)
		}
	})

	if err := t.Open(ctx); err != nil {
		s.logger.Error("Failed to open UDP socket", zap.Error(err))
		s.status.Failed(openFailureMessage(err))
		return err
	}

	s.transport = t
	s.dispatcher = command.NewDispatcher(t, cfg, s.logger.Named("command"))

	select {
	case <-ready:
	case <-ctx.Done():
		s.teardownLocked()
		return ctx.Err()
	}

	if s.opts.StaleAfter > 0 {
		s.startSweep(s.opts.StaleAfter)
	}
	return nil
}

// ConfigUpdated applies a new config. A changed config, or a session whose
// socket has failed, is torn down and re-initialised; otherwise nothing
// happens.
func (s *Session) ConfigUpdated(ctx context.Context, cfg config.ModuleConfig) error {
	s.mu.Lock()
	unchanged := s.transport != nil && s.transport.IsOpen() && s.cfg == cfg
	s.mu.Unlock()

	if unchanged {
		s.logger.Debug("Configuration unchanged")
		return nil
	}

	s.logger.Info("Configuration updated, re-initializing")
	return s.Init(ctx, cfg)
}

// Destroy closes the transport and moves the status to Disconnected. It is
// safe to call more than once.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Destroying module instance")
	s.teardownLocked()
}

// Discover broadcasts the discovery probe
func (s *Session) Discover() error {
	s.logger.Info("Action: discover device")
	return s.currentDispatcher().Discover()
}

// SendHex sends a user hex command to targetIP, or to the configured host
// when targetIP is empty
func (s *Session) SendHex(hexCommand, targetIP string) error {
	s.logger.Info("Action: send hex command",
		zap.String("hex", hexCommand),
		zap.String("target_ip", targetIP))
	return s.currentDispatcher().SendHex(hexCommand, targetIP)
}

// Probe sends the discovery probe to a single host
func (s *Session) Probe(host string) error {
	return s.currentDispatcher().Probe(host)
}

// Status returns the latest status update
func (s *Session) Status() status.Update {
	return s.status.Current()
}

// Devices returns the discovered devices sorted by address
func (s *Session) Devices() []discovery.DeviceRecord {
	return s.tracker.Devices()
}

// Config returns the config of the current or last Init
func (s *Session) Config() config.ModuleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// LocalAddr returns the bound UDP address, or nil without an open socket
func (s *Session) LocalAddr() *net.UDPAddr {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.LocalAddr()
}

// WaitForDevices sends the discovery probe and collects replies until timeout
// elapses, or until at least want devices are known when want > 0.
func (s *Session) WaitForDevices(ctx context.Context, timeout time.Duration, want int) ([]discovery.DeviceRecord, error) {
	if err := s.Discover(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		changed := s.changed()
		if want > 0 && s.tracker.Len() >= want {
			return s.tracker.Devices(), nil
		}

		select {
		case <-ctx.Done():
			return s.tracker.Devices(), ctx.Err()
		case <-timer.C:
			return s.tracker.Devices(), nil
		case <-changed:
		}
	}
}

// BrowseAndProbe looks up candidate hosts over mDNS and sends each a unicast
// discovery probe. Replies arrive through the normal receive path.
func (s *Session) BrowseAndProbe(ctx context.Context, timeout time.Duration) ([]*discovery.Candidate, error) {
	candidates, err := s.browser(timeout).Browse(ctx)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, c := range candidates {
		if err := s.Probe(c.IP); err != nil {
			s.logger.Warn("Failed to probe mDNS candidate",
				zap.String("candidate", c.String()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return candidates, errors.Join(errs...)
}

// browser returns the configured Browser, or an mDNS browser bounded by
// timeout when none is set
func (s *Session) browser(timeout time.Duration) Browser {
	if s.opts.Browser != nil {
		return s.opts.Browser
	}
	b := discovery.NewMDNSBrowser()
	if s.opts.MDNSService != "" {
		b.Service = s.opts.MDNSService
	}
	b.InstanceFilter = s.opts.MDNSFilter
	if timeout > 0 {
		b.Timeout = timeout
	}
	return b
}

func (s *Session) handleDatagram(d transport.Datagram) {
	switch record, kind := s.tracker.Observe(d); kind {
	case protocol.ReplyDiscovery:
		s.logger.Info("Device discovery response", zap.String("from", d.Addr))
		s.status.Discovered(d.Addr)
		s.notify()

		if s.opts.OnDevice != nil {
			s.opts.OnDevice(record)
		}
	default:
		s.logger.Debug("Unclassified datagram",
			zap.Stringer("kind", kind),
			zap.String("from", d.Source()),
			zap.String("hex", protocol.EncodeToString(d.Payload)))
		if s.opts.OnUnclassified != nil {
			s.opts.OnUnclassified(d)
		}
	}
}

func (s *Session) handleSocketError(err error) {
	if t, ok := protocol.TypeOf(err); ok && !t.Terminal() {
		s.logger.Warn("Ignoring non-terminal transport error", zap.Error(err))
		return
	}
	s.logger.Error("UDP socket error", zap.Error(err))
	s.status.Failed(fmt.Sprintf("UDP Error: %v", err))
}

// teardownLocked stops the sweep, closes the transport and reports
// Disconnected. Caller holds mu.
func (s *Session) teardownLocked() {
	s.gen.Add(1)
	s.stopSweepLocked()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Error("Error closing UDP socket", zap.Error(err))
		}
		s.transport = nil
	}
	s.dispatcher = command.NewDispatcher(nil, s.cfg, s.logger.Named("command"))
	s.status.Teardown()
}

func (s *Session) startSweep(staleAfter time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopSweep = cancel
	s.sweepDone = done

	interval := staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, d := range s.tracker.Prune(staleAfter) {
					s.logger.Info("Pruned stale device",
						zap.String("address", d.Address),
						zap.Time("last_seen", d.LastSeen))
				}
			}
		}
	}()
}

func (s *Session) stopSweepLocked() {
	if s.stopSweep == nil {
		return
	}
	s.stopSweep()
	<-s.sweepDone
	s.stopSweep = nil
	s.sweepDone = nil
}

func (s *Session) current(gen uint64) bool {
	return s.gen.Load() == gen
}

func (s *Session) currentDispatcher() *command.Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

func (s *Session) listenAddr() string {
	if s.opts.ListenAddr != "" {
		return s.opts.ListenAddr
	}
	return transport.DefaultListenAddr
}

// changed returns a channel closed on the next device update
func (s *Session) changed() <-chan struct{} {
	s.signalMu.Lock()
	defer s.signalMu.Unlock()
	return s.signal
}

func (s *Session) notify() {
	s.signalMu.Lock()
	defer s.signalMu.Unlock()
	close(s.signal)
	s.signal = make(chan struct{})
}

func openFailureMessage(err error) string {
	t, ok := protocol.TypeOf(err)
	switch {
	case ok && t == protocol.ErrTypeBindFailure:
		return fmt.Sprintf("Bind Error: %v", err)
	case ok && t == protocol.ErrTypeBroadcastSetupFailure:
		return fmt.Sprintf("Broadcast Error: %v", err)
	default:
		return fmt.Sprintf("UDP Error: %v", err)
	}
}
