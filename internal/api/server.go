// Package api exposes the bridge over HTTP: device listing, smart plug
// commands, sync status, Prometheus metrics and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"verisurebridge/internal/bridge"
	"verisurebridge/internal/host"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// commandTimeout bounds how long a command request waits for the host loop
const commandTimeout = 60 * time.Second

// Dispatcher submits commands to the plugin
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd host.Command) error
}

// StatusProvider reports the outcome of the last reconciliation
type StatusProvider interface {
	Status() bridge.Status
}

// Server provides HTTP API endpoints for the bridge
type Server struct {
	registry   host.Registry
	dispatcher Dispatcher
	status     StatusProvider
	logger     *zap.Logger
	events     *eventHub
	handler    http.Handler
	server     *http.Server
}

// NewServer creates a new API server. gatherer backs /metrics.
func NewServer(registry host.Registry, dispatcher Dispatcher, status StatusProvider, gatherer prometheus.Gatherer, logger *zap.Logger, port int) *Server {
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		status:     status,
		logger:     logger.Named("api"),
	}
	s.events = newEventHub(registry, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/devices", s.handleListDevices)
	mux.HandleFunc("GET /api/devices/{unit}", s.handleGetDevice)
	mux.HandleFunc("POST /api/devices/{unit}/command", s.handleCommand)
	mux.HandleFunc("GET /api/sync", s.handleSync)
	mux.HandleFunc("GET /api/events", s.events.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.handler = mux

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: commandTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.handler
}

// DeviceListResponse is returned by GET /api/devices
type DeviceListResponse struct {
	Devices []host.Device `json:"devices"`
	Count   int           `json:"count"`
}

// CommandRequest is the body of POST /api/devices/{unit}/command
type CommandRequest struct {
	Command string `json:"command"`
	Level   int    `json:"level"`
}

// CommandResponse reports the device state after a successful command
type CommandResponse struct {
	Device host.Device `json:"device"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()
	s.writeJSON(w, http.StatusOK, DeviceListResponse{Devices: devices, Count: len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.parseUnit(w, r)
	if !ok {
		return
	}

	device, found := s.registry.Get(unit)
	if !found {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unit %d: %w", unit, host.ErrDeviceNotFound))
		return
	}

	s.writeJSON(w, http.StatusOK, device)
}

// handleCommand runs a command through the host loop and returns the
// updated device
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.parseUnit(w, r)
	if !ok {
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("command is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	err := s.dispatcher.Dispatch(ctx, host.Command{Unit: unit, Command: req.Command, Level: req.Level})
	if err != nil {
		s.logger.Warn("Command failed",
			zap.Int("unit", unit),
			zap.String("command", req.Command),
			zap.Error(err))
		s.writeError(w, commandStatus(err), err)
		return
	}

	device, _ := s.registry.Get(unit)
	s.writeJSON(w, http.StatusOK, CommandResponse{Device: device})
}

// commandStatus maps a dispatch error to an HTTP status code
func commandStatus(err error) int {
	switch {
	case errors.Is(err, host.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrNotSwitch):
		return http.StatusBadRequest
	case errors.Is(err, host.ErrHostStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) parseUnit(w http.ResponseWriter, r *http.Request) (int, bool) {
	unit, err := strconv.Atoi(r.PathValue("unit"))
	if err != nil || unit < 1 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid unit %q", r.PathValue("unit")))
		return 0, false
	}
	return unit, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/api/devices", Method: "GET", Description: "List mirrored devices"},
	{Path: "/api/devices/{unit}", Method: "GET", Description: "Get one device by unit"},
	{Path: "/api/devices/{unit}/command", Method: "POST", Description: "Switch a smart plug - body {\"command\": \"On\"}"},
	{Path: "/api/sync", Method: "GET", Description: "Result of the last Verisure poll"},
	{Path: "/api/events", Method: "GET", Description: "WebSocket stream of device events"},
	{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
}

// handleSitemap lists all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Verisure Bridge API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Verisure Bridge API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Verisure Bridge API\n")
		fmt.Fprintf(w, "===================\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-28s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExample:\n\n")
		fmt.Fprintf(w, "  curl -X POST -d '{\"command\":\"On\"}' http://localhost:8080/api/devices/1/command\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes event streams and gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")
	s.events.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
