package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"slidecast-server/modules/common/config"
)

type Client struct {
	http *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient() *Client {
	return &Client{
		http: &http.Client{
			Timeout: 5 * time.Minute, // 비디오 업로드 고려
		},
	}
}

// upload - Supabase Storage에 바이너리 업로드
func (c *Client) upload(ctx context.Context, filePath string, data []byte, contentType string) (string, error) {
	cfg := config.GetConfig()

	log.Printf("📤 Uploading to storage: %s (%d bytes)", filePath, len(data))

	// Supabase Storage API URL
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		cfg.SupabaseURL, cfg.StorageBucket, filePath)

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ Uploaded successfully: %s", filePath)
	return filePath, nil
}

// Download - Storage에서 파일 다운로드
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	cfg := config.GetConfig()

	fullURL := cfg.SupabaseStorageBaseURL + ref
	log.Printf("📥 Downloading from storage: %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("❌ Download failed - Status: %d, Ref: %s", resp.StatusCode, ref)
		return nil, fmt.Errorf("failed to download %s: status %d, body: %s", ref, resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	log.Printf("✅ Downloaded successfully: %d bytes", len(data))
	return data, nil
}

// UploadDeck - 업로드된 원본 presentation 저장
func (c *Client) UploadDeck(ctx context.Context, data []byte, jobID string) (string, error) {
	filePath := fmt.Sprintf("uploads/%s/deck.pptx", jobID)
	return c.upload(ctx, filePath, data,
		"application/vnd.openxmlformats-officedocument.presentationml.presentation")
}

// UploadSlideImage - 추출된 슬라이드 이미지 저장 (WebP)
func (c *Client) UploadSlideImage(ctx context.Context, webpData []byte, jobID string, index int) (string, error) {
	filePath := fmt.Sprintf("slides/%s/slide-%d.webp", jobID, index)
	return c.upload(ctx, filePath, webpData, "image/webp")
}

// UploadClip - 합성 완료된 슬라이드 클립 저장
func (c *Client) UploadClip(ctx context.Context, data []byte, videoID string, index int) (string, error) {
	filePath := fmt.Sprintf("clips/%s/slide-%d.mp4", videoID, index)
	return c.upload(ctx, filePath, data, "video/mp4")
}

// UploadFinalVideo - 최종 비디오 저장
func (c *Client) UploadFinalVideo(ctx context.Context, data []byte, videoID string) (string, error) {
	filePath := fmt.Sprintf("videos/%s/final.mp4", videoID)
	return c.upload(ctx, filePath, data, "video/mp4")
}
