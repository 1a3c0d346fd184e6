package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultMaxImageBytes = 10 << 20

// Remote downloads the image and posts its bytes to an inference server that
// answers with {"predictions": [{"class_name": ..., "probability": ...}]}.
type Remote struct {
	endpoint      string
	maxImageBytes int64
	client        *http.Client
}

func NewRemote(endpoint string, timeout time.Duration, maxImageBytes int64) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	return &Remote{
		endpoint:      strings.TrimSuffix(endpoint, "/"),
		maxImageBytes: maxImageBytes,
		client:        &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Classify(ctx context.Context, url string) (Predictions, error) {
	img, contentType, err := r.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/classify", bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference server: %w: %d", ErrStatus, resp.StatusCode)
	}

	var apiResp struct {
		Predictions Predictions `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	if len(apiResp.Predictions) == 0 {
		return nil, fmt.Errorf("no predictions from model")
	}

	return apiResp.Predictions, nil
}

// Ping reports whether the inference server is up and has its model loaded.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: %w: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

func (r *Remote) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > r.maxImageBytes {
		return nil, "", ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
