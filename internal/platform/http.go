// ABOUTME: HTTP implementations of the platform collaborator interfaces
// ABOUTME: JSON POSTs to the delivery and media services with bounded timeouts

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPDelivery posts delivery requests to the message delivery service.
type HTTPDelivery struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPDelivery creates a delivery client for the given base URL.
func NewHTTPDelivery(baseURL string, logger *slog.Logger) *HTTPDelivery {
	return &HTTPDelivery{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "delivery"),
	}
}

// Deliver posts the request as JSON to /internal/bot/deliver.
func (d *HTTPDelivery) Deliver(ctx context.Context, req DeliveryRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding delivery request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/internal/bot/deliver", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building delivery request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("posting delivery request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivery service returned %d", resp.StatusCode)
	}
	return nil
}

// HTTPUploader posts media to the media service and returns the URL it
// assigns.
type HTTPUploader struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPUploader creates a media upload client for the given base URL.
func NewHTTPUploader(baseURL string, logger *slog.Logger) *HTTPUploader {
	return &HTTPUploader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "media"),
	}
}

// Upload posts raw media bytes to /internal/bot/media.
func (u *HTTPUploader) Upload(ctx context.Context, data []byte, mediaType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.baseURL+"/internal/bot/media", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Media-Type", mediaType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("media service returned %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	return out.URL, nil
}
