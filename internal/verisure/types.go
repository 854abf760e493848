package verisure

// Overview represents the installation overview returned by Verisure
type Overview struct {
	SmartPlugs    []SmartPlug    `json:"smartPlugs"`
	ClimateValues []ClimateValue `json:"climateValues"`
	DoorWindow    DoorWindow     `json:"doorWindow"`
}

// SmartPlug represents a smart plug entry in the overview
type SmartPlug struct {
	DeviceLabel  string `json:"deviceLabel"`
	Area         string `json:"area"`
	CurrentState string `json:"currentState"`
	Icon         string `json:"icon,omitempty"`
	IsHazardous  bool   `json:"isHazardous,omitempty"`
}

// IsOn reports whether the plug is switched on
func (p SmartPlug) IsOn() bool {
	return p.CurrentState == PlugStateOn
}

// ClimateValue represents a climate sensor reading in the overview.
// Humidity is nil for sensors that only measure temperature.
type ClimateValue struct {
	DeviceLabel string   `json:"deviceLabel"`
	DeviceArea  string   `json:"deviceArea"`
	DeviceType  string   `json:"deviceType,omitempty"`
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Time        string   `json:"time,omitempty"`
}

// HasHumidity reports whether the reading carries a humidity value
func (c ClimateValue) HasHumidity() bool {
	return c.Humidity != nil
}

// DoorWindow wraps the door/window sensor list
type DoorWindow struct {
	DoorWindowDevices []DoorWindowDevice `json:"doorWindowDevice"`
}

// DoorWindowDevice represents a door/window sensor
type DoorWindowDevice struct {
	DeviceLabel string `json:"deviceLabel"`
	Area        string `json:"area"`
	State       string `json:"state"`
}

// Installation represents an installation returned by the search endpoint
type Installation struct {
	GIID  string `json:"giid"`
	Alias string `json:"alias"`
}

// Smart plug states as reported in the overview
const (
	PlugStateOn  = "ON"
	PlugStateOff = "OFF"
)

// cookieResponse is the body returned by the login endpoint
type cookieResponse struct {
	Cookie string `json:"cookie"`
}

// smartPlugStateRequest is one entry of the smart plug state PUT body
type smartPlugStateRequest struct {
	DeviceLabel string `json:"deviceLabel"`
	State       bool   `json:"state"`
}

// errorResponse is the error body returned by the API
type errorResponse struct {
	ErrorGroup   string `json:"errorGroup"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
