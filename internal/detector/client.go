package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"violation-service/internal/domain/violation"
)

// Client calls the external object detector over HTTP. It never retries;
// every failure is reported as an unsuccessful DetectionResult.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

func (c *Client) Detect(ctx context.Context, image []byte) violation.DetectionResult {
	if len(image) == 0 {
		return failed("empty image")
	}

	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return failed(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Msg("detector request failed")
		return failed(fmt.Sprintf("detector unavailable: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return failed(fmt.Sprintf("failed to read detector response: %v", err))
	}

	var result violation.DetectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return failed(fmt.Sprintf("detector returned status %d", resp.StatusCode))
		}
		return failed(fmt.Sprintf("failed to decode detector response: %v", err))
	}
	if resp.StatusCode != http.StatusOK && result.Success {
		return failed(fmt.Sprintf("detector returned status %d", resp.StatusCode))
	}
	if !result.Success && result.Error == "" {
		result.Error = "detection failed"
	}

	c.log.Debug().
		Int("detections", len(result.Detections)).
		Dur("took", time.Since(start)).
		Bool("success", result.Success).
		Msg("detector responded")

	return result
}

func failed(msg string) violation.DetectionResult {
	return violation.DetectionResult{Success: false, Error: msg}
}
