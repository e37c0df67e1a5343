package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"slidecast-server/modules/common/config"
	"slidecast-server/modules/common/model"
)

const maxAttempts = 3

// Client calls the external avatar synthesis API. One call turns a
// narration script into a talking-head clip for the given persona.
type Client struct {
	endpoint  string
	apiKey    string
	http      *http.Client
	retryWait time.Duration
}

func NewClient() *Client {
	cfg := config.GetConfig()
	return &Client{
		endpoint: cfg.AvatarAPIEndpoint,
		apiKey:   cfg.AvatarAPIKey,
		http: &http.Client{
			Timeout: time.Duration(cfg.AvatarAPITimeout) * time.Second,
		},
		retryWait: 2 * time.Second,
	}
}

type synthesisRequest struct {
	Script   string `json:"script"`
	Persona  string `json:"persona"`
	Language string `json:"language"`
}

type synthesisResponse struct {
	ClipURL         string  `json:"clip_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Clip is the synthesized avatar output.
type Clip struct {
	URL             string
	DurationSeconds float64
}

// Synthesize renders one avatar clip. Transient failures (timeouts,
// 429, 5xx) are retried up to maxAttempts with a short backoff;
// anything else fails immediately.
func (c *Client) Synthesize(ctx context.Context, script, persona, language string) (*Clip, error) {
	reqBody, err := json.Marshal(synthesisRequest{
		Script:   script,
		Persona:  persona,
		Language: language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryWait):
			}
		}

		clip, retryable, err := c.doSynthesize(ctx, reqBody)
		if err == nil {
			return clip, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("%w: avatar synthesis: %v", model.ErrExternalCapability, lastErr)
}

func (c *Client) doSynthesize(ctx context.Context, reqBody []byte) (*Clip, bool, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		// network errors and timeouts are worth another attempt
		return nil, true, fmt.Errorf("avatar API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("avatar API error %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("avatar API error %d: %s", resp.StatusCode, string(body))
	}

	var synthResp synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&synthResp); err != nil {
		return nil, false, fmt.Errorf("failed to decode synthesis response: %w", err)
	}
	if synthResp.ClipURL == "" {
		return nil, false, fmt.Errorf("avatar API returned empty clip URL")
	}

	return &Clip{
		URL:             synthResp.ClipURL,
		DurationSeconds: synthResp.DurationSeconds,
	}, false, nil
}

// Download fetches a synthesized clip so it can be fed to ffmpeg.
func (c *Client) Download(ctx context.Context, clipURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", clipURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clip download error: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
