package bridge

import (
	"context"
	"errors"
	"fmt"

	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"go.uber.org/zap"
)

// Command names understood by OnCommand. Anything other than CommandOn
// turns the plug off.
const (
	CommandOn  = "On"
	CommandOff = "Off"
)

// ErrNotSwitch is returned for commands sent to sensor devices
var ErrNotSwitch = errors.New("device is not a switch")

// OnCommand switches the smart plug behind unit and mirrors the new state
// locally once Verisure has accepted it. level is ignored.
func (b *Bridge) OnCommand(ctx context.Context, unit int, command string, level int) error {
	b.logger.Debug("onCommand called",
		zap.Int("unit", unit),
		zap.String("command", command),
		zap.Int("level", level))

	device, ok := b.registry.Get(unit)
	if !ok {
		return fmt.Errorf("command for unit %d: %w", unit, host.ErrDeviceNotFound)
	}
	if device.Kind != host.KindSwitch {
		return fmt.Errorf("command for unit %d (%s): %w", unit, device.Kind, ErrNotSwitch)
	}

	turnOn := command == CommandOn

	err := verisure.WithSession(ctx, b.opener, b.opts.Username, b.opts.Password, func(s verisure.Session) error {
		return s.SetSmartPlugState(ctx, device.Label, turnOn)
	})
	if err != nil {
		b.logger.Error("Failed to set smart plug state",
			zap.Int("unit", unit),
			zap.String("label", device.Label),
			zap.Bool("on", turnOn),
			zap.Error(err))
		b.metrics.observeCommand(false)
		return fmt.Errorf("set smart plug %s: %w", device.Label, err)
	}

	nValue, sValue := switchValue(turnOn)
	if err := b.registry.Update(unit, nValue, sValue); err != nil {
		b.metrics.observeCommand(false)
		return fmt.Errorf("update smart plug %s: %w", device.Label, err)
	}

	b.metrics.observeCommand(true)
	b.logger.Info("Smart plug switched",
		zap.Int("unit", unit),
		zap.String("label", device.Label),
		zap.String("state", sValue))
	return nil
}
