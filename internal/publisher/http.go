package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/navid-fn/premiumradar/internal/models"
)

const updatePath = "/update_data"

// HTTPPublisher posts each batch as a JSON array to the dashboard.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

// NewHTTPPublisher targets <dashboardURL>/update_data.
func NewHTTPPublisher(dashboardURL string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		url:    strings.TrimRight(dashboardURL, "/") + updatePath,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPublisher) Name() string { return "http" }

func (p *HTTPPublisher) Publish(ctx context.Context, records []models.Record) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("dashboard responded %s", resp.Status)
	}
	return nil
}
