package testutil

import (
	"strings"
	"time"
)

// Request records a request received by the mock server
type Request struct {
	Timestamp time.Time
	Method    string
	Path      string
	Body      string
}

// FilterRequests returns the requests with method whose path ends in suffix
func FilterRequests(requests []Request, method, suffix string) []Request {
	var filtered []Request
	for _, req := range requests {
		if req.Method == method && strings.HasSuffix(req.Path, suffix) {
			filtered = append(filtered, req)
		}
	}
	return filtered
}

// OverviewRequests returns the overview fetches among requests
func OverviewRequests(requests []Request) []Request {
	return FilterRequests(requests, "GET", "/overview")
}

// PlugWrites returns the smart plug state changes among requests
func PlugWrites(requests []Request) []Request {
	return FilterRequests(requests, "PUT", "/smartplug/state")
}
