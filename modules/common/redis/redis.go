package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"slidecast-server/modules/common/config"
)

// Queue 키 - Ingestion(Extractor 메시지)과 Generation(video_id)은 별도 큐를 쓴다
const (
	IngestQueue = "ingest:queue"
	VideoQueue  = "video:queue"
)

// Connect - Redis 연결 생성
func Connect(cfg *config.Config) *redis.Client {
	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	// TLS 설정 (InsecureSkipVerify 추가)
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	// Redis 클라이언트 생성
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,                // 기본 DB
		DialTimeout:  10 * time.Second, // 타임아웃 늘림
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// 연결 테스트
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("🔍 Testing Redis connection...")
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		return nil
	}

	return rdb
}

// SetJobCancelled - Job 취소 플래그 설정 (24시간 TTL)
func SetJobCancelled(rdb *redis.Client, jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return rdb.Set(ctx, "job:cancelled:"+jobID, "1", 24*time.Hour).Err()
}

// IsJobCancelled - Job 취소 여부 확인
// Redis 에러 시에는 취소 안 된 것으로 처리 (파이프라인을 멈추지 않음)
func IsJobCancelled(rdb *redis.Client, jobID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := rdb.Exists(ctx, "job:cancelled:"+jobID).Result()
	if err != nil {
		log.Printf("⚠️ Failed to check cancel flag for %s: %v", jobID, err)
		return false
	}
	return exists > 0
}

// WithJobLock - job 레코드 단위 merge 락 안에서 fn 실행 (SETNX + 폴링)
// 두 Extractor나 병렬 슬라이드 워커가 같은 JSONB 컬럼에 read-merge-write할 때
// 서로의 필드를 덮어쓰지 않도록 직렬화한다. 워커 프로세스가 여럿이어도 동작한다.
// 락 획득 실패(Redis 장애)는 에러로 돌려 호출자가 쓰기를 포기하게 한다.
func WithJobLock(ctx context.Context, rdb *redis.Client, jobID string, fn func() error) error {
	key := "job:merge:" + jobID

	for {
		acquired, err := rdb.SetNX(ctx, key, "1", 30*time.Second).Result()
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer func() {
		if err := rdb.Del(context.Background(), key).Err(); err != nil {
			log.Printf("⚠️ Failed to release merge lock for %s: %v", jobID, err)
		}
	}()
	return fn()
}

// AcquireConcatLock - Concatenation 1회 실행 보장용 락 (SETNX)
// at-least-once 이벤트로 watcher가 여러 번 깨어나도 concat은 한 번만 돈다
func AcquireConcatLock(ctx context.Context, rdb *redis.Client, videoID string) (bool, error) {
	return rdb.SetNX(ctx, "video:concat:"+videoID, "1", time.Hour).Result()
}

// ReleaseConcatLock - concat 실패 시 재시도할 수 있도록 락 해제
func ReleaseConcatLock(ctx context.Context, rdb *redis.Client, videoID string) {
	if err := rdb.Del(ctx, "video:concat:"+videoID).Err(); err != nil {
		log.Printf("⚠️ Failed to release concat lock for %s: %v", videoID, err)
	}
}
