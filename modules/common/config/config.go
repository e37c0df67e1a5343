package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string
	StorageBucket          string

	// Avatar 엔진 (외부 TTS-avatar API)
	AvatarAPIEndpoint string
	AvatarAPIKey      string
	AvatarAPITimeout  int // seconds

	// Gemini API (스크립트 번역용, 선택)
	GeminiAPIKeys    []string
	GeminiModel      string
	TranslateScripts bool

	// Pipeline
	ScriptMaxLen        int
	MaxConcurrentSlides int
	FFmpegPath          string
	FFprobePath         string
	WorkDir             string

	// Server
	Port string
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	// Gemini API 키는 콤마 구분 (429 시 키 로테이션)
	var geminiKeys []string
	for _, key := range strings.Split(os.Getenv("GEMINI_API_KEYS"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			geminiKeys = append(geminiKeys, key)
		}
	}

	translate := false
	if t := os.Getenv("TRANSLATE_SCRIPTS"); t != "" {
		if parsed, err := strconv.ParseBool(t); err == nil {
			translate = parsed
		}
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),
		StorageBucket:          getEnv("STORAGE_BUCKET", "presentations"),

		// Avatar 엔진
		AvatarAPIEndpoint: getEnv("AVATAR_API_ENDPOINT", ""),
		AvatarAPIKey:      getEnv("AVATAR_API_KEY", ""),
		AvatarAPITimeout:  getEnvInt("AVATAR_API_TIMEOUT_SECONDS", 120),

		// Gemini
		GeminiAPIKeys:    geminiKeys,
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		TranslateScripts: translate,

		// Pipeline
		ScriptMaxLen:        getEnvInt("SCRIPT_MAX_LEN", 500),
		MaxConcurrentSlides: getEnvInt("MAX_CONCURRENT_SLIDES", 3),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		WorkDir:             getEnv("WORK_DIR", os.TempDir()),

		// Server
		Port: getEnv("PORT", "8080"),
	}

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s (bucket: %s)", globalConfig.SupabaseURL, globalConfig.StorageBucket)
	log.Printf("   Avatar engine: %s", globalConfig.AvatarAPIEndpoint)
	log.Printf("   Script max length: %d, concurrent slides: %d", globalConfig.ScriptMaxLen, globalConfig.MaxConcurrentSlides)
	if globalConfig.TranslateScripts {
		log.Printf("   Script translation: enabled (%s, %d keys)", globalConfig.GeminiModel, len(globalConfig.GeminiAPIKeys))
	}

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.AvatarAPIEndpoint == "" {
		return fmt.Errorf("AVATAR_API_ENDPOINT is required")
	}
	if c.TranslateScripts && len(c.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEYS is required when TRANSLATE_SCRIPTS is enabled")
	}
	return nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt - 숫자 환경변수 가져오기 (기본값 지원)
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
