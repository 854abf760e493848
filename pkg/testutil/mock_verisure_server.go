// Package testutil provides testing utilities for the Verisure bridge.
// It contains a mock Verisure HTTP API and a harness that runs the complete
// bridge against it.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// SmartPlugState is a smart plug as served by the mock API
type SmartPlugState struct {
	DeviceLabel  string `json:"deviceLabel"`
	Area         string `json:"area"`
	CurrentState string `json:"currentState"`
}

// ClimateState is a climate reading as served by the mock API
type ClimateState struct {
	DeviceLabel string   `json:"deviceLabel"`
	DeviceArea  string   `json:"deviceArea"`
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

type overviewBody struct {
	SmartPlugs    []SmartPlugState `json:"smartPlugs"`
	ClimateValues []ClimateState   `json:"climateValues"`
}

type plugStateBody struct {
	DeviceLabel string `json:"deviceLabel"`
	State       bool   `json:"state"`
}

// MockVerisureServer simulates the Verisure cookie-authenticated JSON API
type MockVerisureServer struct {
	server   *httptest.Server
	username string
	password string
	giid     string

	mu         sync.Mutex
	plugs      []SmartPlugState
	climates   []ClimateState
	failStatus int
	sessions   int
	requests   []Request
}

const mockCookie = "mock-session-cookie"

// NewMockVerisureServer starts a mock API accepting username/password
func NewMockVerisureServer(username, password string) *MockVerisureServer {
	s := &MockVerisureServer{
		username: username,
		password: password,
		giid:     "123456789",
		requests: make([]Request, 0),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /cookie", s.handleLogin)
	mux.HandleFunc("DELETE /cookie", s.handleLogout)
	mux.HandleFunc("GET /installation/search", s.handleSearch)
	mux.HandleFunc("GET /installation/{giid}/overview", s.handleOverview)
	mux.HandleFunc("PUT /installation/{giid}/smartplug/state", s.handlePlugState)

	s.server = httptest.NewServer(s.record(mux))
	return s
}

// URL returns the base URL to configure the client with
func (s *MockVerisureServer) URL() string {
	return s.server.URL
}

// Close stops the server
func (s *MockVerisureServer) Close() {
	s.server.Close()
}

// SetSmartPlug adds or replaces a smart plug
func (s *MockVerisureServer) SetSmartPlug(label, area string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plug := SmartPlugState{DeviceLabel: label, Area: area, CurrentState: plugState(on)}
	for i := range s.plugs {
		if s.plugs[i].DeviceLabel == label {
			s.plugs[i] = plug
			return
		}
	}
	s.plugs = append(s.plugs, plug)
}

// SetClimate adds or replaces a climate reading. humidity may be nil.
func (s *MockVerisureServer) SetClimate(label, area string, temperature float64, humidity *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	climate := ClimateState{DeviceLabel: label, DeviceArea: area, Temperature: temperature, Humidity: humidity}
	for i := range s.climates {
		if s.climates[i].DeviceLabel == label {
			s.climates[i] = climate
			return
		}
	}
	s.climates = append(s.climates, climate)
}

// RemoveDevice drops a smart plug or climate sensor by label
func (s *MockVerisureServer) RemoveDevice(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plugs := s.plugs[:0]
	for _, plug := range s.plugs {
		if plug.DeviceLabel != label {
			plugs = append(plugs, plug)
		}
	}
	s.plugs = plugs

	climates := s.climates[:0]
	for _, climate := range s.climates {
		if climate.DeviceLabel != label {
			climates = append(climates, climate)
		}
	}
	s.climates = climates
}

// SmartPlugOn reports the current state of a plug as the server sees it
func (s *MockVerisureServer) SmartPlugOn(label string) (on bool, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, plug := range s.plugs {
		if plug.DeviceLabel == label {
			return plug.CurrentState == "ON", true
		}
	}
	return false, false
}

// SetFailure makes every installation endpoint answer with status (0 clears it)
func (s *MockVerisureServer) SetFailure(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// OpenSessions returns logins not yet followed by a logout
func (s *MockVerisureServer) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// GetRequests returns every request received so far
func (s *MockVerisureServer) GetRequests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]Request, len(s.requests))
	copy(requests, s.requests)
	return requests
}

// ClearRequests clears the request history
func (s *MockVerisureServer) ClearRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make([]Request, 0)
}

func (s *MockVerisureServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Timestamp: time.Now(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Body:      string(body),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *MockVerisureServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "CPE/"+s.username || pass != s.password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"errorGroup":   "UNAUTHORIZED",
			"errorCode":    "AUT_00001",
			"errorMessage": "Invalid username or password",
		})
		return
	}

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"cookie": mockCookie})
}

func (s *MockVerisureServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !authorized(w, r) {
		return
	}

	s.mu.Lock()
	s.sessions--
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *MockVerisureServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !authorized(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, []map[string]string{{"giid": s.giid, "alias": "Home"}})
}

func (s *MockVerisureServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	if !authorized(w, r) || !s.installation(w, r) {
		return
	}

	s.mu.Lock()
	body := overviewBody{
		SmartPlugs:    append([]SmartPlugState{}, s.plugs...),
		ClimateValues: append([]ClimateState{}, s.climates...),
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

func (s *MockVerisureServer) handlePlugState(w http.ResponseWriter, r *http.Request) {
	if !authorized(w, r) || !s.installation(w, r) {
		return
	}

	var body []plugStateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorMessage": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, change := range body {
		found := false
		for i := range s.plugs {
			if s.plugs[i].DeviceLabel == change.DeviceLabel {
				s.plugs[i].CurrentState = plugState(change.State)
				found = true
			}
		}
		if !found {
			writeJSON(w, http.StatusBadRequest, map[string]string{"errorMessage": "Unknown device " + change.DeviceLabel})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// installation checks the giid and the configured failure
func (s *MockVerisureServer) installation(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("giid") != s.giid {
		writeJSON(w, http.StatusNotFound, map[string]string{"errorMessage": "Unknown installation"})
		return false
	}

	s.mu.Lock()
	status := s.failStatus
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"errorMessage": http.StatusText(status)})
		return false
	}
	return true
}

func authorized(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie("vid")
	if err != nil || cookie.Value != mockCookie {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errorMessage": "Not logged in"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func plugState(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
