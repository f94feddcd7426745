// Package ocr is the client for the optical recognition sidecar
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is used when OCR_SERVICE_URL is not configured
const DefaultBaseURL = "http://127.0.0.1:8081"

// RecognitionError is returned when the OCR service rejects a page
type RecognitionError struct {
	StatusCode int
	Body       string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("OCR service returned status %d: %s", e.StatusCode, e.Body)
}

// Client handles communication with the OCR service
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Response represents the response from OCR service
type Response struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

// NewClient creates a new OCR client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Recognize uploads one rendered page as PNG and returns its text
func (c *Client) Recognize(ctx context.Context, img image.Image) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "page.png")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ocr/image", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &RecognitionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	var ocrResp Response
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return ocrResp.Text, nil
}

// HealthCheck checks if OCR service is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
