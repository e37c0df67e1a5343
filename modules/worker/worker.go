package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"slidecast-server/modules/common/config"
	redisClient "slidecast-server/modules/common/redis"

	"slidecast-server/modules/generation"
	"slidecast-server/modules/ingestion"
)

// StartWorkers - Redis Queue Worker 시작
// 추출 큐와 비디오 큐를 각각의 BRPOP 루프로 감시한다
func StartWorkers() {
	log.Println("🔄 Redis Queue Workers starting...")

	cfg := config.GetConfig()

	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
		return
	}
	log.Println("✅ Redis connected successfully")

	ingestionService := ingestion.NewService()
	if ingestionService == nil {
		log.Fatal("❌ Failed to initialize Ingestion service")
		return
	}

	generationService := generation.NewService()
	if generationService == nil {
		log.Fatal("❌ Failed to initialize Generation service")
		return
	}

	ctx := context.Background()

	go watchIngestQueue(ctx, rdb, ingestionService)
	go watchVideoQueue(ctx, rdb, generationService)
}

// watchIngestQueue - 추출 메시지 감시 (image/script extractor 팬아웃)
func watchIngestQueue(ctx context.Context, rdb *goredis.Client, service *ingestion.Service) {
	log.Printf("👀 Watching queue: %s", redisClient.IngestQueue)

	for {
		result, err := rdb.BRPop(ctx, 0, redisClient.IngestQueue).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error (%s): %v", redisClient.IngestQueue, err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0]은 큐 이름, result[1]이 실제 페이로드
		var msg ingestion.ExtractMessage
		if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
			log.Printf("❌ Invalid extract message: %v", err)
			continue
		}

		log.Printf("🎯 Received extraction task: %s (%s)", msg.JobID, msg.ProcessingType)
		go ingestion.ProcessExtraction(ctx, service, msg)
	}
}

// watchVideoQueue - 비디오 생성 작업 감시
func watchVideoQueue(ctx context.Context, rdb *goredis.Client, service *generation.Service) {
	log.Printf("👀 Watching queue: %s", redisClient.VideoQueue)

	for {
		result, err := rdb.BRPop(ctx, 0, redisClient.VideoQueue).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error (%s): %v", redisClient.VideoQueue, err)
			time.Sleep(5 * time.Second)
			continue
		}

		videoID := result[1]
		log.Printf("🎯 Received video job: %s", videoID)
		go generation.ProcessVideoJob(ctx, service, videoID)
	}
}
