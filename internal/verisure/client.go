package verisure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Verisure API endpoint used when none is configured
const DefaultBaseURL = "https://e-api01.verisure.com/xbn/2"

// DefaultTimeout bounds every HTTP request made by the client
const DefaultTimeout = 30 * time.Second

// Client opens sessions against the Verisure HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Verisure API client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("verisure"),
	}
}

// Open logs in and resolves the first installation of the account
func (c *Client) Open(ctx context.Context, username, password string) (Session, error) {
	s := &httpSession{
		client:   c,
		username: username,
	}

	if err := s.login(ctx, password); err != nil {
		return nil, err
	}

	if err := s.findInstallation(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	c.logger.Debug("Session opened", zap.String("giid", s.giid))
	return s, nil
}

// httpSession implements Session over the cookie-authenticated HTTP API
type httpSession struct {
	client   *Client
	username string
	cookie   string
	giid     string
}

func (s *httpSession) login(ctx context.Context, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/cookie", nil)
	if err != nil {
		return &Error{Op: "login", Err: err}
	}
	req.SetBasicAuth("CPE/"+s.username, password)
	req.Header.Set("Accept", "application/json")

	var resp cookieResponse
	if err := s.client.do(req, "login", &resp); err != nil {
		return err
	}

	if resp.Cookie == "" {
		return &Error{Op: "login", Message: "empty cookie", Err: ErrMalformedResponse}
	}

	s.cookie = resp.Cookie
	return nil
}

func (s *httpSession) findInstallation(ctx context.Context) error {
	var installations []Installation
	path := "/installation/search?email=" + url.QueryEscape(s.username)
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &installations, "installations"); err != nil {
		return err
	}

	if len(installations) == 0 || installations[0].GIID == "" {
		return &Error{Op: "installations", Err: ErrNoInstallation}
	}

	s.giid = installations[0].GIID
	return nil
}

// GetOverview retrieves the installation overview
func (s *httpSession) GetOverview(ctx context.Context) (*Overview, error) {
	var overview Overview
	path := fmt.Sprintf("/installation/%s/overview", url.PathEscape(s.giid))
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &overview, "overview"); err != nil {
		return nil, err
	}
	return &overview, nil
}

// SetSmartPlugState switches a smart plug on or off
func (s *httpSession) SetSmartPlugState(ctx context.Context, deviceLabel string, on bool) error {
	body := []smartPlugStateRequest{{DeviceLabel: deviceLabel, State: on}}
	path := fmt.Sprintf("/installation/%s/smartplug/state", url.PathEscape(s.giid))
	return s.doJSON(ctx, http.MethodPut, path, body, nil, "set smartplug state")
}

// Close logs out. Failures are logged and returned.
func (s *httpSession) Close() error {
	if s.cookie == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.client.httpClient.Timeout)
	defer cancel()

	err := s.doJSON(ctx, http.MethodDelete, "/cookie", nil, nil, "logout")
	s.cookie = ""
	if err != nil {
		s.client.logger.Debug("Logout failed", zap.Error(err))
	}
	return err
}

func (s *httpSession) doJSON(ctx context.Context, method, path string, body, out interface{}, op string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cookie", "vid="+s.cookie)

	return s.client.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data), Err: ErrAuthentication}
	}

	if resp.StatusCode >= 300 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Err: ErrMalformedResponse}
	}

	return nil
}

// errorMessage extracts the API error message, falling back to the raw body
func errorMessage(data []byte) string {
	var apiErr errorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		if apiErr.ErrorCode != "" {
			return apiErr.ErrorCode + " " + apiErr.ErrorMessage
		}
		return apiErr.ErrorMessage
	}
	return strings.TrimSpace(string(data))
}
