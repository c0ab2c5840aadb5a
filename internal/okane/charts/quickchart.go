// Package charts renders labeled numeric series into shareable chart image
// URLs through a QuickChart-compatible HTTP endpoint.
package charts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okanebot/okane/common/retry"
)

const defaultChartBase = "https://quickchart.io"

// ErrNoData is returned when a chart is requested for an empty series.
var ErrNoData = errors.New("charts: no data points to render")

// Config configures the chart client.
type Config struct {
	// BaseURL overrides the chart endpoint.  Defaults to https://quickchart.io.
	BaseURL string
	// Timeout is the HTTP request timeout.  Defaults to 15s.
	Timeout time.Duration
}

// Client renders charts.  Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	retry  retry.Config
}

// New returns a chart client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultChartBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retry.DefaultConfig,
	}
}

// --- wire types (QuickChart create API) ---

type createRequest struct {
	Chart chartSpec `json:"chart"`
}

type chartSpec struct {
	Type    string       `json:"type"`
	Data    chartData    `json:"data"`
	Options chartOptions `json:"options,omitempty"`
}

type chartData struct {
	Labels   []string  `json:"labels"`
	Datasets []dataset `json:"datasets"`
}

type dataset struct {
	Label string    `json:"label,omitempty"`
	Data  []float64 `json:"data"`
}

type chartOptions struct {
	Title *chartTitle `json:"title,omitempty"`
}

type chartTitle struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

type createResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// RenderPie renders a pie chart and returns its image URL.
func (c *Client) RenderPie(ctx context.Context, labels []string, values []float64, title string) (string, error) {
	return c.render(ctx, "pie", labels, values, title)
}

// RenderBar renders a bar chart and returns its image URL.
func (c *Client) RenderBar(ctx context.Context, labels []string, values []float64, title string) (string, error) {
	return c.render(ctx, "bar", labels, values, title)
}

func (c *Client) render(ctx context.Context, chartType string, labels []string, values []float64, title string) (string, error) {
	if len(labels) == 0 || len(values) == 0 {
		return "", ErrNoData
	}
	if len(labels) != len(values) {
		return "", fmt.Errorf("charts: %d labels for %d values", len(labels), len(values))
	}

	body := createRequest{
		Chart: chartSpec{
			Type: chartType,
			Data: chartData{
				Labels:   labels,
				Datasets: []dataset{{Data: values}},
			},
			Options: chartOptions{
				Title: &chartTitle{Display: title != "", Text: title},
			},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("charts: marshal request: %w", err)
	}

	var url string
	err = retry.Do(ctx, c.retry, func() error {
		var postErr error
		url, postErr = c.post(ctx, data)
		return postErr
	})
	return url, err
}

func (c *Client) post(ctx context.Context, data []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chart/create",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", fmt.Errorf("charts: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("charts: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("charts: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("charts: endpoint returned status %d: %.200s", resp.StatusCode, respBody)
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("charts: decode response: %w", err)
	}
	if !created.Success || created.URL == "" {
		return "", fmt.Errorf("charts: endpoint reported failure (%.200s)", respBody)
	}

	return created.URL, nil
}
