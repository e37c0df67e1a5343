package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Notification Channel - Redis Pub/Sub 기반 단계 전환 이벤트 팬아웃
// 전달은 at-least-once 힌트일 뿐이고, 현재 상태의 source of truth는 항상 Job Store다
// 구독 중이 아니던 클라이언트는 backfill을 받지 못하므로 재접속 시 Job Store를 다시 조회해야 한다

// ChannelKey - job/video id별 Pub/Sub 채널 이름
func ChannelKey(jobID string) string {
	return fmt.Sprintf("slidecast:events:%s", jobID)
}

type Publisher struct {
	rdb *redis.Client
}

// NewPublisher - Publisher 생성
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish - 이벤트 발행 (JSON 직렬화)
// Redis 장애 시에도 파이프라인은 계속 진행한다 (채널은 latency 최적화일 뿐)
func (p *Publisher) Publish(ctx context.Context, jobID string, event interface{}) error {
	if p == nil || p.rdb == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, ChannelKey(jobID), payload).Err(); err != nil {
		log.Printf("⚠️ Failed to publish event for %s: %v", jobID, err)
		return err
	}
	return nil
}

// Subscribe - job id별 이벤트 스트림 구독
// 반환된 stop 함수를 호출하면 구독이 해제되고 채널이 닫힌다
func (p *Publisher) Subscribe(ctx context.Context, jobID string) (<-chan []byte, func()) {
	sub := p.rdb.Subscribe(ctx, ChannelKey(jobID))
	out := make(chan []byte, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				// 느린 구독자는 이벤트를 버린다 - Job Store 재조회로 복구 가능
				log.Printf("⚠️ Dropping event for slow subscriber: %s", jobID)
			}
		}
	}()

	stop := func() {
		if err := sub.Close(); err != nil {
			log.Printf("⚠️ Failed to close subscription for %s: %v", jobID, err)
		}
	}
	return out, stop
}
