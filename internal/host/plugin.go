package host

import "context"

// Plugin is the lifecycle contract the host drives.
// All callbacks are invoked from the host loop goroutine and run to
// completion before the next callback is dispatched.
type Plugin interface {
	// Name returns the plugin identifier used in logs
	Name() string

	// OnStart is called once before the first heartbeat
	OnStart(ctx context.Context) error

	// OnHeartbeat is called on every heartbeat tick
	OnHeartbeat(ctx context.Context)

	// OnCommand is called when a command is sent to one of the plugin's units
	OnCommand(ctx context.Context, unit int, command string, level int) error
}

// Command is a device command submitted to the host
type Command struct {
	Unit    int    `json:"unit"`
	Command string `json:"command"`
	Level   int    `json:"level"`
}
