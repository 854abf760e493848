package host

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultHeartbeat is the heartbeat cadence used when none is configured
const DefaultHeartbeat = 10 * time.Second

// ErrHostStopped is returned by Dispatch once the host loop has exited
var ErrHostStopped = errors.New("host stopped")

type commandRequest struct {
	cmd    Command
	result chan error
}

// Host runs a plugin's lifecycle on a single goroutine
type Host struct {
	plugin    Plugin
	logger    *zap.Logger
	heartbeat time.Duration
	commands  chan commandRequest
	done      chan struct{}
}

// New creates a host for plugin
func New(plugin Plugin, heartbeat time.Duration, logger *zap.Logger) *Host {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	return &Host{
		plugin:    plugin,
		logger:    logger.Named("host"),
		heartbeat: heartbeat,
		commands:  make(chan commandRequest),
		done:      make(chan struct{}),
	}
}

// Run starts the plugin and dispatches heartbeats and commands until ctx is
// cancelled. It must be called at most once.
func (h *Host) Run(ctx context.Context) {
	defer close(h.done)

	name := h.plugin.Name()
	h.logger.Info("Starting plugin",
		zap.String("plugin", name),
		zap.Duration("heartbeat", h.heartbeat))

	if err := h.plugin.OnStart(ctx); err != nil {
		// Start failures are not fatal; the next heartbeat retries
		h.logger.Error("Plugin start failed", zap.String("plugin", name), zap.Error(err))
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Stopping plugin", zap.String("plugin", name))
			return

		case <-ticker.C:
			h.plugin.OnHeartbeat(ctx)

		case req := <-h.commands:
			err := h.plugin.OnCommand(ctx, req.cmd.Unit, req.cmd.Command, req.cmd.Level)
			if err != nil {
				h.logger.Debug("Command failed",
					zap.String("plugin", name),
					zap.Int("unit", req.cmd.Unit),
					zap.String("command", req.cmd.Command),
					zap.Error(err))
			}
			req.result <- err
		}
	}
}

// Dispatch submits a command to the host loop and waits for the plugin's
// result. It is safe to call from any goroutine.
func (h *Host) Dispatch(ctx context.Context, cmd Command) error {
	req := commandRequest{cmd: cmd, result: make(chan error, 1)}

	select {
	case h.commands <- req:
	case <-h.done:
		return ErrHostStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
