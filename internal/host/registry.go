package host

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the host-owned device table, keyed by unit
type Registry interface {
	List() []Device
	Get(unit int) (Device, bool)
	Create(device Device) error
	Update(unit int, nValue int, sValue string) error
	Delete(unit int) error
	Subscribe(handler EventHandler) (unsubscribe func())
}

// subscriberEntry holds a handler with its unique subscription ID
type subscriberEntry struct {
	subID   int
	handler EventHandler
}

// MemoryRegistry is an in-memory Registry. It is safe for concurrent use so
// that HTTP handlers can read it while the host loop mutates it.
type MemoryRegistry struct {
	mu          sync.RWMutex
	devices     map[int]Device
	subsMu      sync.RWMutex
	subscribers []subscriberEntry
	nextSubID   int
	now         func() time.Time
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		devices: make(map[int]Device),
		now:     time.Now,
	}
}

// List returns all devices sorted by unit
func (r *MemoryRegistry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Unit < devices[j].Unit
	})
	return devices
}

// Get returns the device for unit
func (r *MemoryRegistry) Get(unit int) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[unit]
	return device, ok
}

// Create adds a new device
func (r *MemoryRegistry) Create(device Device) error {
	if device.Unit < 1 {
		return fmt.Errorf("create unit %d: %w", device.Unit, ErrInvalidUnit)
	}

	r.mu.Lock()
	if _, exists := r.devices[device.Unit]; exists {
		r.mu.Unlock()
		return fmt.Errorf("create unit %d: %w", device.Unit, ErrDeviceExists)
	}
	device.LastUpdate = r.now()
	r.devices[device.Unit] = device
	r.mu.Unlock()

	r.notify(EventCreated, device)
	return nil
}

// Update sets the value fields of an existing device
func (r *MemoryRegistry) Update(unit int, nValue int, sValue string) error {
	r.mu.Lock()
	device, ok := r.devices[unit]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("update unit %d: %w", unit, ErrDeviceNotFound)
	}
	device.NValue = nValue
	device.SValue = sValue
	device.LastUpdate = r.now()
	r.devices[unit] = device
	r.mu.Unlock()

	r.notify(EventUpdated, device)
	return nil
}

// Delete removes a device
func (r *MemoryRegistry) Delete(unit int) error {
	r.mu.Lock()
	device, ok := r.devices[unit]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("delete unit %d: %w", unit, ErrDeviceNotFound)
	}
	delete(r.devices, unit)
	r.mu.Unlock()

	r.notify(EventDeleted, device)
	return nil
}

// Subscribe registers handler for registry events. Handlers run synchronously
// on the mutating goroutine and must not block.
func (r *MemoryRegistry) Subscribe(handler EventHandler) func() {
	r.subsMu.Lock()
	subID := r.nextSubID
	r.nextSubID++
	r.subscribers = append(r.subscribers, subscriberEntry{subID: subID, handler: handler})
	r.subsMu.Unlock()

	return func() { r.unsubscribe(subID) }
}

func (r *MemoryRegistry) unsubscribe(subID int) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	for i, entry := range r.subscribers {
		if entry.subID == subID {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			return
		}
	}
}

// notify calls subscribers outside the device lock
func (r *MemoryRegistry) notify(eventType EventType, device Device) {
	r.subsMu.RLock()
	entries := append([]subscriberEntry(nil), r.subscribers...)
	r.subsMu.RUnlock()

	event := Event{Type: eventType, Device: device, Time: r.now()}
	for _, entry := range entries {
		entry.handler(event)
	}
}
