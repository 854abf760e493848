// Package host provides the device registry and lifecycle loop that plugins
// run inside. Every plugin callback is invoked from a single goroutine, so
// plugins do not need their own locking.
package host

import (
	"errors"
	"time"
)

var (
	// ErrDeviceNotFound is returned when no device exists for a unit
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceExists is returned when creating a device on a unit already in use
	ErrDeviceExists = errors.New("device already exists")

	// ErrInvalidUnit is returned for unit numbers below 1
	ErrInvalidUnit = errors.New("invalid unit")
)

// Kind identifies the device type shown by the host
type Kind string

const (
	KindSwitch      Kind = "Switch"
	KindTemperature Kind = "Temperature"
	KindTempHum     Kind = "Temp+Hum"
)

// Device is a device record owned by the host registry.
// Label links the device to the remote device it mirrors.
type Device struct {
	Unit       int       `json:"unit"`
	Name       string    `json:"name"`
	Label      string    `json:"label"`
	Kind       Kind      `json:"kind"`
	NValue     int       `json:"nValue"`
	SValue     string    `json:"sValue"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// EventType describes a registry mutation
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is emitted to registry subscribers after every mutation
type Event struct {
	Type   EventType `json:"type"`
	Device Device    `json:"device"`
	Time   time.Time `json:"time"`
}

// EventHandler receives registry events
type EventHandler func(Event)
