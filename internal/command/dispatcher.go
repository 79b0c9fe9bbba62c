package command

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mixma5ter/matrixctl/internal/config"
	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/protocol"
)

// Sender is the part of the transport the dispatcher writes through
type Sender interface {
	Send(packet []byte, host string, port int) error
	IsOpen() bool
}

// Dispatcher validates outbound commands and hands them to a Sender.
// Every failure is returned to the caller and logged; none of them touch the
// connection status.
type Dispatcher struct {
	sender Sender
	config config.ModuleConfig
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher for one session's config
func NewDispatcher(sender Sender, cfg config.ModuleConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Named("command")
	}
	return &Dispatcher{
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Config returns the config the dispatcher resolves targets from
func (d *Dispatcher) Config() config.ModuleConfig {
	return d.config
}

// Dispatch encodes hexCommand and sends it to addr:port.
//
// Checks run in order: an open transport (TransportUnavailable), a target
// address and valid port (MissingTarget), then hex validation
// (MalformedPacket). Nothing is written when a check fails.
func (d *Dispatcher) Dispatch(hexCommand, addr string, port int) error {
	packet, err := d.prepare(hexCommand, addr, port)
	if err != nil {
		d.logger.Warn("Command rejected", zap.Error(err))
		return err
	}
	return d.send(packet, addr, port)
}

// Discover broadcasts the discovery probe on the configured port
func (d *Dispatcher) Discover() error {
	d.logger.Info("Sending discovery probe",
		zap.String("target", protocol.BroadcastAddress),
		zap.Int("port", d.config.Port))
	return d.sendPacket(protocol.DiscoveryProbe(), protocol.BroadcastAddress, d.config.Port)
}

// Probe sends the discovery probe to a single host on the configured port,
// for networks that drop limited broadcast.
func (d *Dispatcher) Probe(host string) error {
	d.logger.Debug("Sending unicast discovery probe",
		zap.String("target", host),
		zap.Int("port", d.config.Port))
	return d.sendPacket(protocol.DiscoveryProbe(), host, d.config.Port)
}

// SendHex sends a user command. The target is targetOverride when set, else
// the configured host; the port is always the configured one. An empty
// command is rejected as malformed.
func (d *Dispatcher) SendHex(hexCommand, targetOverride string) error {
	target := strings.TrimSpace(targetOverride)
	if target == "" {
		target = d.config.Host
	}

	port := d.config.Port
	packet, err := d.prepare(hexCommand, target, port)
	if err == nil && len(packet) == 0 {
		err = protocol.NewError(protocol.ErrTypeMalformedPacket, "hex command is empty", nil)
	}
	if err != nil {
		d.logger.Warn("Command rejected", zap.Error(err))
		return err
	}
	return d.send(packet, target, port)
}

// prepare runs the guards and returns the encoded packet
func (d *Dispatcher) prepare(hexCommand, addr string, port int) ([]byte, error) {
	if err := d.checkTarget(addr, port); err != nil {
		return nil, err
	}
	return protocol.Encode(hexCommand)
}

// checkTarget covers the transport and target guards shared by every send
func (d *Dispatcher) checkTarget(addr string, port int) error {
	if d.sender == nil || !d.sender.IsOpen() {
		return protocol.NewError(protocol.ErrTypeTransportUnavailable, "UDP socket is not open", nil)
	}
	if strings.TrimSpace(addr) == "" {
		return protocol.NewError(protocol.ErrTypeMissingTarget, "no target address and no configured host", nil)
	}
	if !protocol.ValidPort(port) {
		return protocol.NewError(protocol.ErrTypeMissingTarget,
			fmt.Sprintf("port %d is not a valid UDP port", port), nil)
	}
	return nil
}

// sendPacket sends a prebuilt packet after the transport and target guards
func (d *Dispatcher) sendPacket(packet []byte, addr string, port int) error {
	if err := d.checkTarget(addr, port); err != nil {
		d.logger.Warn("Command rejected", zap.Error(err))
		return err
	}
	return d.send(packet, addr, port)
}

func (d *Dispatcher) send(packet []byte, addr string, port int) error {
	if err := d.sender.Send(packet, addr, port); err != nil {
		d.logger.Error("Failed to send command",
			zap.String("target", addr),
			zap.Int("port", port),
			zap.Error(err))
		return err
	}

	d.logger.Info("Sent command",
		zap.String("target", addr),
		zap.Int("port", port),
		zap.String("hex", protocol.EncodeToString(packet)))
	return nil
}
