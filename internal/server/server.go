package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mixma5ter/matrixctl/internal/discovery"
	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/status"
)

// Controller is the module instance the server drives
type Controller interface {
	Discover() error
	SendHex(hexCommand, targetIP string) error
	Devices() []discovery.DeviceRecord
	Status() status.Update
}

// Config holds the server configuration
type Config struct {
	Addr           string
	CertPath       string // TLS certificate; plain HTTP when empty
	KeyPath        string
	AllowAnyOrigin bool // Accept WebSocket upgrades from any Origin
}

// Server exposes the action surface and the status stream over HTTP and
// WebSocket
type Server struct {
	config     *Config
	ctrl       Controller
	hub        *Hub
	tlsConfig  *tls.Config
	httpServer *http.Server
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server. hub must be the same Hub registered as the
// controller's status sink and device observer.
func New(config *Config, ctrl Controller, hub *Hub) (*Server, error) {
	s := &Server{
		config: config,
		ctrl:   ctrl,
		hub:    hub,
		logger: logging.Named("server"),
	}

	if config.CertPath != "" || config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.tlsConfig,
	}
	return s, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("GET /status", s.handleStatus)
	return logRequests(s.logger, mux)
}

// Listen binds the configured address. Start calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	var (
		listener net.Listener
		err      error
	)
	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", s.config.Addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", s.config.Addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves until ctx is cancelled, SIGINT/SIGTERM arrives or the listener
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.logger.Info("Control server listening",
		zap.Stringer("addr", s.Addr()),
		zap.Bool("tls", s.tlsConfig != nil),
	)
	if s.tlsConfig != nil {
		s.logger.Debug("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-sigChan:
		s.logger.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
		s.logger.Info("Context cancelled, stopping server...")
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and closes every WebSocket client
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("Shutdown timeout, forcing close", zap.Error(err))
	}

	s.hub.CloseAll()
	logging.Sync()
	return err
}
