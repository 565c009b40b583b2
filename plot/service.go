package plot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Service is an HTTP client for the sidecar plotting application.
type Service struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
}

// ServiceConfig contains configuration for the plotting service client.
type ServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// Response is the sidecar's reply to a plot submission.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PlotURL   string `json:"plot_url,omitempty"`
	PlotID    string `json:"plot_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// DefaultServiceConfig returns the default sidecar client configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewService creates a plotting service client. The client starts disabled;
// callers enable it once the sidecar is known to be reachable.
func NewService(config ServiceConfig) *Service {
	return &Service{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		enabled: false,
	}
}

// Enable enables submissions to the sidecar.
func (s *Service) Enable() {
	s.enabled = true
}

// Disable suppresses all submissions.
func (s *Service) Disable() {
	s.enabled = false
}

// IsEnabled reports whether submissions are enabled.
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// Send posts one plot payload to the sidecar.
func (s *Service) Send(plotData PlotData) (*Response, error) {
	if !s.enabled {
		return &Response{
			Success: false,
			Message: "plotting service is disabled",
		}, nil
	}

	jsonData, err := json.Marshal(plotData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plot data: %w", err)
	}

	url := fmt.Sprintf("%s/api/plot", s.baseURL)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "predstab")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var plotResponse Response
	if err := json.Unmarshal(respBody, &plotResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &plotResponse, fmt.Errorf("plot submission failed with status %d: %s", resp.StatusCode, plotResponse.Message)
	}

	return &plotResponse, nil
}

// SendWithRetry retries Send on failure with a fixed delay between attempts.
func (s *Service) SendWithRetry(plotData PlotData, config ServiceConfig) (*Response, error) {
	if !s.enabled {
		return &Response{
			Success: false,
			Message: "plotting service is disabled",
		}, nil
	}

	var lastErr error
	for attempt := 0; attempt < config.RetryAttempts; attempt++ {
		resp, err := s.Send(plotData)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt < config.RetryAttempts-1 {
			time.Sleep(config.RetryDelay)
		}
	}

	return nil, fmt.Errorf("failed to send plot data after %d attempts: %w", config.RetryAttempts, lastErr)
}

// CheckHealth probes the sidecar's health endpoint.
func (s *Service) CheckHealth() error {
	if !s.enabled {
		return fmt.Errorf("plotting service is disabled")
	}

	url := fmt.Sprintf("%s/health", s.baseURL)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}
