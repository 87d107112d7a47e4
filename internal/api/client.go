package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/metrics"
	"github.com/trafficdeck/trafficdeck/internal/utils"
)

// Default control-server paths, matching the Traefik service manager API.
const (
	DefaultServicesPath = "/api/traefik-services"
	DefaultUpdatePath   = "/api/update-traffic-config"
)

// StatusError is a domain-level failure: the HTTP call went through but the
// server answered with a non-200 envelope code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned code %d", e.Code)
}

// ClientConfig configures the HTTP collaborator endpoints.
type ClientConfig struct {
	BaseURL      string // control server base URL (ex: http://traefik-manager:8001)
	ServicesPath string
	UpdatePath   string
	Timeout      time.Duration
}

// Client talks to the control server over plain HTTP: the fallback snapshot
// fetch and the traffic write-back. The realtime channel is handled
// elsewhere; this client never retries on its own.
type Client struct {
	baseURL      string
	servicesPath string
	updatePath   string
	http         *http.Client
	logger       logger.Logger
}

// NewClient creates a client for the given control server.
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if cfg.ServicesPath == "" {
		cfg.ServicesPath = DefaultServicesPath
	}
	if cfg.UpdatePath == "" {
		cfg.UpdatePath = DefaultUpdatePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		servicesPath: cfg.ServicesPath,
		updatePath:   cfg.UpdatePath,
		http:         &http.Client{Timeout: cfg.Timeout},
		logger:       log,
	}
}

type servicesResponse struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message,omitempty"`
	Data    []domain.ServiceRecord `json:"data"`
}

type updateRequest struct {
	ServiceName string           `json:"service_name"`
	Backends    []domain.Backend `json:"backends"`
}

type updateResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// FetchServices performs the fallback snapshot fetch.
func (c *Client) FetchServices(ctx context.Context) ([]domain.ServiceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.servicesPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out servicesResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("fetch services: %w", err)
	}
	if out.Code != http.StatusOK {
		return nil, &StatusError{Code: out.Code, Message: out.Message}
	}
	return out.Data, nil
}

// UpdateTraffic submits an edited backend set for one service. A non-200
// envelope code is a failure even when the transport call succeeded.
func (c *Client) UpdateTraffic(ctx context.Context, service string, backends []domain.Backend) (err error) {
	defer func() { metrics.ObserveWriteBack(err) }()

	body, err := json.Marshal(updateRequest{ServiceName: service, Backends: backends})
	if err != nil {
		return fmt.Errorf("failed to marshal traffic config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.updatePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out updateResponse
	if err := c.do(req, &out); err != nil {
		return fmt.Errorf("update traffic: %w", err)
	}
	if out.Code != http.StatusOK {
		return &StatusError{Code: out.Code, Message: out.Message}
	}

	c.logger.Info("traffic write-back accepted",
		logger.String("service", service),
		logger.Int("backends", len(backends)))
	return nil
}

func (c *Client) do(req *http.Request, response interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}
	defer utils.Close(resp.Body)

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	// Servers wrap domain errors in the JSON envelope; decode it even on
	// HTTP error statuses so the message survives.
	if err := json.Unmarshal(respBytes, response); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("bad response, status %d: %s", resp.StatusCode, string(respBytes))
		}
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}
