package bridge

import (
	"context"
	"fmt"
	"sort"

	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"go.uber.org/zap"
)

// Device names used when creating devices
const (
	SmartPlugName     = "Smart plug"
	ClimateSensorName = "Climate sensor"
)

// SyncResult lists the labels touched by one reconciliation
type SyncResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Reconcile fetches the overview and aligns the registry with it: unknown
// labels get a new device, known labels get their value updated and labels
// missing from the overview are deleted. A failed fetch leaves the registry
// untouched. A registry failure part way through is returned and the
// mutations already applied are kept; the next poll converges again.
func (b *Bridge) Reconcile(ctx context.Context) (*SyncResult, error) {
	b.logger.Debug("Updating devices")

	var overview *verisure.Overview
	err := verisure.WithSession(ctx, b.opener, b.opts.Username, b.opts.Password, func(s verisure.Session) error {
		var err error
		overview, err = s.GetOverview(ctx)
		return err
	})
	if err != nil {
		b.logger.Error("Failed to fetch Verisure overview", zap.Error(err))
		b.recordFailure(err)
		return nil, fmt.Errorf("fetch overview: %w", err)
	}

	result, err := b.apply(overview)
	if err != nil {
		b.logger.Error("Failed to apply Verisure overview", zap.Error(err))
		b.recordFailure(err)
		return result, err
	}

	b.recordSuccess(overview, result)
	b.logger.Debug("Updating devices - done",
		zap.Int("created", len(result.Created)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("removed", len(result.Removed)))
	return result, nil
}

func (b *Bridge) apply(overview *verisure.Overview) (*SyncResult, error) {
	result := &SyncResult{
		Created: make([]string, 0),
		Updated: make([]string, 0),
		Removed: make([]string, 0),
	}

	current := b.labelIndex()
	seen := make(map[string]struct{})

	for _, plug := range overview.SmartPlugs {
		label := plug.DeviceLabel
		seen[label] = struct{}{}

		unit, ok := current[label]
		if !ok {
			b.logger.Info("Adding smart plug",
				zap.String("label", label),
				zap.String("area", plug.Area))

			var err error
			unit, err = b.create(label, SmartPlugName, host.KindSwitch)
			if err != nil {
				return result, err
			}
			current[label] = unit
			result.Created = append(result.Created, label)
		}

		nValue, sValue := switchValue(plug.IsOn())
		if err := b.registry.Update(unit, nValue, sValue); err != nil {
			return result, fmt.Errorf("update smart plug %s: %w", label, err)
		}
		result.Updated = append(result.Updated, label)
	}

	for _, climate := range overview.ClimateValues {
		label := climate.DeviceLabel
		seen[label] = struct{}{}

		unit, ok := current[label]
		if !ok {
			b.logger.Info("Adding climate sensor",
				zap.String("label", label),
				zap.String("area", climate.DeviceArea),
				zap.Bool("humidity", climate.HasHumidity()))

			var err error
			unit, err = b.create(label, ClimateSensorName, climateKind(climate))
			if err != nil {
				return result, err
			}
			current[label] = unit
			result.Created = append(result.Created, label)
		}

		if err := b.registry.Update(unit, 0, climateValue(climate)); err != nil {
			return result, fmt.Errorf("update climate sensor %s: %w", label, err)
		}
		result.Updated = append(result.Updated, label)
	}

	removed := make([]string, 0)
	for label := range current {
		if _, ok := seen[label]; !ok {
			removed = append(removed, label)
		}
	}
	sort.Strings(removed)

	for _, label := range removed {
		unit := current[label]
		b.logger.Info("Removing device",
			zap.Int("unit", unit),
			zap.String("label", label))

		if err := b.registry.Delete(unit); err != nil {
			return result, fmt.Errorf("delete device %s: %w", label, err)
		}
		delete(current, label)
		result.Removed = append(result.Removed, label)
	}

	return result, nil
}

// labelIndex maps device labels to units for the current registry contents
func (b *Bridge) labelIndex() map[string]int {
	devices := b.registry.List()
	index := make(map[string]int, len(devices))
	for _, device := range devices {
		index[device.Label] = device.Unit
	}
	return index
}

// create allocates the next unit and creates a device on it. The unit is
// consumed even if creation fails, so units are never handed out twice.
func (b *Bridge) create(label, name string, kind host.Kind) (int, error) {
	unit := b.nextUnit
	b.nextUnit++

	err := b.registry.Create(host.Device{
		Unit:  unit,
		Name:  name,
		Label: label,
		Kind:  kind,
	})
	if err != nil {
		return 0, fmt.Errorf("create device %s: %w", label, err)
	}
	return unit, nil
}

// switchValue encodes an on/off state as host values
func switchValue(on bool) (int, string) {
	if on {
		return 1, CommandOn
	}
	return 0, CommandOff
}

func climateKind(climate verisure.ClimateValue) host.Kind {
	if climate.HasHumidity() {
		return host.KindTempHum
	}
	return host.KindTemperature
}

// climateValue formats a reading as "21.5 C" or "21.5 C;47;1".
// Humidity is truncated to a whole percentage.
func climateValue(climate verisure.ClimateValue) string {
	if climate.HasHumidity() {
		return fmt.Sprintf("%.1f C;%d;1", climate.Temperature, int(*climate.Humidity))
	}
	return fmt.Sprintf("%.1f C", climate.Temperature)
}
