package verisure

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient implements Opener for testing. It serves a configurable overview
// and records every remote call.
type MockClient struct {
	mu           sync.Mutex
	overview     *Overview
	username     string
	password     string
	openErr      error
	overviewErr  error
	smartPlugErr error
	openSessions int
	calls        []Call
}

// Call records a remote call for testing
type Call struct {
	Op          string
	DeviceLabel string
	On          bool
	Time        time.Time
}

// Recorded operation names
const (
	OpOpen         = "open"
	OpOverview     = "overview"
	OpSetSmartPlug = "set_smartplug"
	OpClose        = "close"
)

// NewMockClient creates a new mock Verisure client with an empty overview
func NewMockClient() *MockClient {
	return &MockClient{
		overview: &Overview{},
		calls:    make([]Call, 0),
	}
}

// SetCredentials makes Open reject any other username/password pair
func (m *MockClient) SetCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
}

// SetOverview replaces the overview served by the mock
func (m *MockClient) SetOverview(overview *Overview) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overview = copyOverview(overview)
}

// SetOpenError makes Open fail with err (nil clears it)
func (m *MockClient) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetOverviewError makes GetOverview fail with err (nil clears it)
func (m *MockClient) SetOverviewError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overviewErr = err
}

// SetSmartPlugError makes SetSmartPlugState fail with err (nil clears it)
func (m *MockClient) SetSmartPlugError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smartPlugErr = err
}

// Open simulates logging in
func (m *MockClient) Open(ctx context.Context, username, password string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(Call{Op: OpOpen})

	if m.openErr != nil {
		return nil, m.openErr
	}

	if m.username != "" && (username != m.username || password != m.password) {
		return nil, &Error{Op: "login", StatusCode: 401, Message: "invalid credentials", Err: ErrAuthentication}
	}

	m.openSessions++
	return &mockSession{mock: m}, nil
}

// GetCalls returns all recorded calls
func (m *MockClient) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]Call, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CountCalls returns the number of recorded calls for op
func (m *MockClient) CountCalls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, call := range m.calls {
		if call.Op == op {
			count++
		}
	}
	return count
}

// ClearCalls clears the call history
func (m *MockClient) ClearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]Call, 0)
}

// OpenSessions returns the number of sessions not yet closed
func (m *MockClient) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openSessions
}

// record must be called with mu held
func (m *MockClient) record(call Call) {
	call.Time = time.Now()
	m.calls = append(m.calls, call)
}

// mockSession implements Session for MockClient
type mockSession struct {
	mock   *MockClient
	closed bool
}

func (s *mockSession) GetOverview(ctx context.Context) (*Overview, error) {
	s.mock.mu.Lock()
	defer s.mock.mu.Unlock()

	s.mock.record(Call{Op: OpOverview})

	if s.closed {
		return nil, &Error{Op: "overview", Message: "session closed"}
	}
	if s.mock.overviewErr != nil {
		return nil, s.mock.overviewErr
	}

	return copyOverview(s.mock.overview), nil
}

func (s *mockSession) SetSmartPlugState(ctx context.Context, deviceLabel string, on bool) error {
	s.mock.mu.Lock()
	defer s.mock.mu.Unlock()

	s.mock.record(Call{Op: OpSetSmartPlug, DeviceLabel: deviceLabel, On: on})

	if s.closed {
		return &Error{Op: "set smartplug state", Message: "session closed"}
	}
	if s.mock.smartPlugErr != nil {
		return s.mock.smartPlugErr
	}

	// Reflect the new state in the served overview
	for i := range s.mock.overview.SmartPlugs {
		plug := &s.mock.overview.SmartPlugs[i]
		if plug.DeviceLabel != deviceLabel {
			continue
		}
		plug.CurrentState = PlugStateOff
		if on {
			plug.CurrentState = PlugStateOn
		}
		return nil
	}

	return &Error{Op: "set smartplug state", StatusCode: 400, Message: fmt.Sprintf("unknown device %s", deviceLabel)}
}

func (s *mockSession) Close() error {
	s.mock.mu.Lock()
	defer s.mock.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mock.openSessions--
	s.mock.record(Call{Op: OpClose})
	return nil
}

func copyOverview(overview *Overview) *Overview {
	if overview == nil {
		return &Overview{}
	}

	out := &Overview{
		SmartPlugs:    append([]SmartPlug(nil), overview.SmartPlugs...),
		ClimateValues: append([]ClimateValue(nil), overview.ClimateValues...),
		DoorWindow: DoorWindow{
			DoorWindowDevices: append([]DoorWindowDevice(nil), overview.DoorWindow.DoorWindowDevices...),
		},
	}
	return out
}
