package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

// TranslateScript - 슬라이드 스크립트를 대상 언어로 번역
// 번역 비활성화 상태나 빈 스크립트는 호출 전에 걸러진다
func TranslateScript(ctx context.Context, apiKeys []string, model, script, targetLanguage string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following presentation narration script into %s. "+
			"Keep the tone natural for spoken narration. "+
			"Return only the translated text, no explanations.\n\n%s",
		targetLanguage, script)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := generateWithKeyRotation(ctx, apiKeys, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("translation returned empty text")
	}

	log.Printf("🌐 Script translated to %s (%d chars)", targetLanguage, len(text))
	return text, nil
}
