package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mixma5ter/matrixctl/internal/config"
	"github.com/mixma5ter/matrixctl/internal/discovery"
	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/protocol"
	"github.com/mixma5ter/matrixctl/internal/server"
	"github.com/mixma5ter/matrixctl/internal/session"
	"github.com/mixma5ter/matrixctl/internal/status"
	"github.com/mixma5ter/matrixctl/internal/transport"
	"github.com/mixma5ter/matrixctl/internal/tui"
	"github.com/mixma5ter/matrixctl/internal/ui"
)

// Command flags
var (
	discoverTimeout time.Duration
	discoverCount   int
	discoverMDNS    bool
	discoverFilter  string
	discoverProbe   string
	discoverSave    bool

	sendTarget string
	sendWait   time.Duration

	serveAddr      string
	serveCert      string
	serveKey       string
	serveAnyOrigin bool
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)

	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "How long to collect replies (default preferences.discover_timeout)")
	discoverCmd.Flags().IntVar(&discoverCount, "count", 0, "Stop once this many devices have replied")
	discoverCmd.Flags().BoolVar(&discoverMDNS, "mdns", false, "Also probe hosts found over mDNS")
	discoverCmd.Flags().StringVar(&discoverFilter, "mdns-filter", "", "Only probe mDNS instances whose name contains this (default preferences.mdns_filter)")
	discoverCmd.Flags().StringVar(&discoverProbe, "probe", "", "Also send a unicast probe to this host")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "Save the first device found as device.host")

	sendCmd.Flags().StringVar(&sendTarget, "target", "", "Target IPv4 address (default device.host)")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Listen for replies for this long after sending")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default preferences.serve_addr)")
	serveCmd.Flags().StringVar(&serveCert, "cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "TLS private key file")
	serveCmd.Flags().BoolVar(&serveAnyOrigin, "allow-any-origin", false, "Accept WebSocket connections from any origin")
}

// signalContext cancels on SIGINT/SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newSession(reg *config.Registry, opts session.Options) *session.Session {
	opts.ListenAddr = reg.Preferences.ListenAddr
	opts.StaleAfter = reg.Preferences.StaleAfterDuration()
	opts.MDNSService = reg.Preferences.MDNSService
	if opts.MDNSFilter == "" {
		opts.MDNSFilter = reg.Preferences.MDNSFilter
	}
	return session.New(opts)
}

func initFailure(p *ui.Printer, err error) error {
	tips := []string{"Check device.port with 'matrixctl config show'"}
	switch t, ok := protocol.TypeOf(err); {
	case !ok || !t.Terminal():
		tips = append(tips, "Re-run with --log-level debug for socket details")
	case t == protocol.ErrTypeBindFailure:
		tips = []string{
			"Another process may hold the listen address",
			"Use --listen 0.0.0.0:0 to let the OS pick a port",
		}
	case t == protocol.ErrTypeBroadcastSetupFailure:
		tips = []string{"The platform refused SO_BROADCAST on this socket"}
	}
	p.PrintError("UDP initialisation failed", err, tips...)
	return err
}

// discoverCmd broadcasts the discovery probe and lists the replies
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find switchers on the local network",
	Long: `Broadcast the discovery probe and list every device that replies.

Replies are collected until the timeout elapses. Networks that filter
broadcast can be searched with --mdns, which sends a unicast probe to every
host advertising the configured mDNS service, or with --probe for one host.`,
	Example: `  # Broadcast on the configured port and wait 3 seconds
  matrixctl discover

  # Stop at the first reply and remember it
  matrixctl discover --count 1 --save

  # Probe a host directly and hosts found over mDNS
  matrixctl discover --probe 192.168.1.50 --mdns

  # Only probe mDNS instances named like "studio-a"
  matrixctl discover --mdns --mdns-filter studio-a`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	reg, cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	timeout := discoverTimeout
	if timeout <= 0 {
		timeout = reg.Preferences.DiscoverTimeoutDuration()
	}

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Device Discovery", "matrixctl discover",
		ui.Detail{Key: "Broadcast", Value: fmt.Sprintf("%s:%d", protocol.BroadcastAddress, cfg.Port)},
		ui.Detail{Key: "Timeout", Value: timeout.String()},
	)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess := newSession(reg, session.Options{MDNSFilter: discoverFilter})
	if err := sess.Init(ctx, cfg); err != nil {
		return initFailure(p, err)
	}
	defer sess.Destroy()

	if discoverProbe != "" {
		if err := sess.Probe(discoverProbe); err != nil {
			p.PrintWarning("Unicast probe failed", ui.Detail{Key: "Host", Value: discoverProbe}, ui.Detail{Key: "Error", Value: err.Error()})
		}
	}

	if discoverMDNS {
		candidates, err := sess.BrowseAndProbe(ctx, timeout)
		if err != nil {
			p.PrintWarning("mDNS lookup incomplete", ui.Detail{Key: "Error", Value: err.Error()})
		}
		for _, c := range candidates {
			logging.Debug("Probed mDNS candidate", zap.Stringer("candidate", c))
		}
	}

	devices, err := sess.WaitForDevices(ctx, timeout, discoverCount)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.PrintError("Discovery failed", err)
		return err
	}

	if len(devices) == 0 {
		p.PrintWarning("No devices found",
			ui.Detail{Key: "Port", Value: strconv.Itoa(cfg.Port)},
			ui.Detail{Key: "Hint", Value: "try --mdns, --probe <ip> or a longer --timeout"},
		)
		return nil
	}

	p.PrintSuccess(fmt.Sprintf("Found %d device(s)", len(devices)))
	p.PrintDevices(devices)

	if discoverSave {
		if err := reg.Set("device.host", devices[0].Address); err != nil {
			return err
		}
		if err := reg.Save(configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		p.PrintSuccess("Saved device", ui.Detail{Key: "device.host", Value: devices[0].Address})
	}
	return nil
}

// sendCmd transmits one hex command
var sendCmd = &cobra.Command{
	Use:   "send HEX...",
	Short: "Send a raw hex command",
	Long: `Encode the hex string and send it as one UDP datagram.

Whitespace between bytes is ignored, so the command may be given as one
argument or several. The datagram goes to --target when set, otherwise to
device.host, always on device.port.`,
	Example: `  # Send to the configured device
  matrixctl send "a5 01 00 ff"

  # Send to an explicit address and print any reply for one second
  matrixctl send a50100ff --target 192.168.1.50 --wait 1s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	reg, cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	hexCommand := strings.Join(args, " ")
	target := sendTarget
	if target == "" {
		target = cfg.Host
	}

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Send Command", "matrixctl send",
		ui.Detail{Key: "Target", Value: fmt.Sprintf("%s:%d", target, cfg.Port)},
		ui.Detail{Key: "Command", Value: protocol.Normalize(hexCommand)},
	)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess := newSession(reg, session.Options{
		OnUnclassified: func(d transport.Datagram) {
			p.Println(fmt.Sprintf("reply from %s: %s", d.Source(), protocol.EncodeToString(d.Payload)))
		},
	})
	if err := sess.Init(ctx, cfg); err != nil {
		return initFailure(p, err)
	}
	defer sess.Destroy()

	if err := sess.SendHex(hexCommand, sendTarget); err != nil {
		p.PrintError("Send failed", err, sendTroubleshooting(err)...)
		return err
	}

	p.PrintSuccess("Command sent",
		ui.Detail{Key: "Target", Value: fmt.Sprintf("%s:%d", target, cfg.Port)},
		ui.Detail{Key: "Bytes", Value: strconv.Itoa(len(protocol.StripWhitespace(hexCommand)) / 2)},
	)

	if sendWait > 0 {
		select {
		case <-time.After(sendWait):
		case <-ctx.Done():
		}
	}
	return nil
}

func sendTroubleshooting(err error) []string {
	t, ok := protocol.TypeOf(err)
	if !ok {
		return nil
	}
	switch t {
	case protocol.ErrTypeMissingTarget:
		return []string{"Pass --target or set one with 'matrixctl config set device.host <ip>'"}
	case protocol.ErrTypeMalformedPacket:
		return []string{"Use an even number of hex digits, e.g. \"a5 01 00 ff\""}
	default:
		return nil
	}
}

// watchCmd runs the dashboard, or streams plain status lines when stdout is
// not a terminal
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch connection status and discovered devices",
	Long: `Open the live dashboard for one session.

The dashboard shows the connection status and every device that has replied.
Press d to broadcast the discovery probe and s to send a hex command. When
stdout is not a terminal, status changes and devices are printed as lines.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	reg, cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if !ui.IsTerminal(os.Stdout) {
		return watchPlain(ctx, reg, cfg)
	}

	bridge := tui.NewBridge()
	sess := newSession(reg, session.Options{
		StatusSink: bridge,
		OnDevice:   bridge.DeviceFound,
	})
	defer sess.Destroy()

	program := tea.NewProgram(tui.NewModel(sess), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(program)

	go func() {
		if err := sess.Init(ctx, cfg); err != nil {
			bridge.Result(tui.ResultMsg{Action: tui.ActionInit, Err: err, At: time.Now()})
		}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

func watchPlain(ctx context.Context, reg *config.Registry, cfg config.ModuleConfig) error {
	p := ui.NewPlainPrinter(os.Stdout)

	sess := newSession(reg, session.Options{
		StatusSink: status.SinkFunc(func(u status.Update) {
			p.Println(fmt.Sprintf("%s status %s %s", u.At.Format(time.RFC3339), u.Status, u.Message))
		}),
		OnDevice: func(d discovery.DeviceRecord) {
			p.Println(fmt.Sprintf("%s device %s responses=%d", d.LastSeen.Format(time.RFC3339), d.String(), d.Responses))
		},
	})
	if err := sess.Init(ctx, cfg); err != nil {
		return err
	}
	defer sess.Destroy()

	if err := sess.Discover(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// serveCmd exposes the session over HTTP and WebSocket
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control surface over WebSocket",
	Long: `Start one session and expose it over HTTP.

WebSocket clients on /ws receive every status change and device reply, and
may send discover_device and send_hex_command actions. GET /devices and
GET /status return the current state as JSON.`,
	Example: `  # Serve on the configured address
  matrixctl serve

  # Serve over TLS on all interfaces
  matrixctl serve --addr 0.0.0.0:8443 --cert fullchain.pem --key privkey.pem`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	reg, cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = reg.Preferences.ServeAddr
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	logger := logging.Named("serve")
	hub := server.NewHub()
	sess := newSession(reg, session.Options{
		StatusSink: status.MultiSink{hub, status.SinkFunc(func(u status.Update) {
			logger.Info("Status changed",
				zap.Stringer("status", u.Status),
				zap.String("message", u.Message))
		})},
		OnDevice: hub.DeviceFound,
	})
	if err := sess.Init(ctx, cfg); err != nil {
		return err
	}
	defer sess.Destroy()

	srv, err := server.New(&server.Config{
		Addr:           addr,
		CertPath:       serveCert,
		KeyPath:        serveKey,
		AllowAnyOrigin: serveAnyOrigin,
	}, sess, hub)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(os.Stdout)
	scheme := "ws"
	if serveCert != "" {
		scheme = "wss"
	}
	p.PrintHeader("Control Server", "matrixctl serve",
		ui.Detail{Key: "WebSocket", Value: fmt.Sprintf("%s://%s/ws", scheme, addr)},
		ui.Detail{Key: "Device", Value: cfg.String()},
		ui.Detail{Key: "Session", Value: sess.ID()},
	)

	return srv.Start(ctx)
}
