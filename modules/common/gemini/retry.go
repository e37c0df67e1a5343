package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// 번역은 슬라이드마다 한 번씩 나가므로 긴 deck에서 rate limit에 잘 걸린다
// 키를 여러 개 돌려가며 키당 최대 3번까지 재시도한다
const maxAttemptsPerKey = 3

// generateWithKeyRotation - 429를 만나면 같은 키로 재시도하고,
// 키가 소진되면 다음 키로 넘어간다. 429가 아닌 에러는 즉시 반환한다.
func generateWithKeyRotation(
	ctx context.Context,
	apiKeys []string,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	var lastErr error

	for keyIndex, apiKey := range apiKeys {
		log.Printf("🔑 [Translate] Trying API key #%d/%d", keyIndex+1, len(apiKeys))

		for attempt := 1; attempt <= maxAttemptsPerKey; attempt++ {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				log.Printf("⚠️  [Translate] Failed to create client with key #%d: %v", keyIndex+1, err)
				lastErr = err
				continue
			}

			result, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if !isRateLimited(err) {
				log.Printf("❌ [Translate] Key #%d failed with non-429 error: %v", keyIndex+1, err)
				return nil, err
			}

			log.Printf("⚠️  [Translate] Key #%d rate limited (attempt %d/%d)", keyIndex+1, attempt, maxAttemptsPerKey)
			if attempt < maxAttemptsPerKey {
				time.Sleep(time.Second * 2)
			}
		}

		log.Printf("⚠️  [Translate] Key #%d exhausted, trying next key...", keyIndex+1)
	}

	return nil, fmt.Errorf("all %d API keys exhausted, last error: %w", len(apiKeys), lastErr)
}

// isRateLimited - 429 / quota 계열 에러인지
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(strings.ToLower(errStr), "rate limit") ||
		strings.Contains(strings.ToLower(errStr), "quota")
}
