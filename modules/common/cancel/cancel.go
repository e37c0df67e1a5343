package cancel

import (
	"context"
	"log"

	"slidecast-server/modules/common/model"
)

// StatusUpdater - 상태 업데이트 인터페이스 (각 워커의 서비스가 구현)
type StatusUpdater interface {
	IsJobCancelled(jobID string) bool
	UpdateJobStatus(ctx context.Context, jobID string, status string) error
}

// CheckBeforeDispatch - 파이프라인(슬라이드/Extractor) 시작 전 취소 체크
// 취소됐으면 true 반환 - 해당 작업은 시작하지 않는다
func CheckBeforeDispatch(s StatusUpdater, jobID string, unit string) bool {
	if !s.IsJobCancelled(jobID) {
		return false
	}

	log.Printf("🛑 Job %s cancelled, skipping %s", jobID, unit)
	return true
}

// CheckBeforeWrite - 결과 쓰기 직전 취소 체크
// 삭제된 job을 결과 쓰기로 되살리지 않도록, 취소면 결과를 버리고 true 반환
func CheckBeforeWrite(ctx context.Context, s StatusUpdater, jobID string, unit string) bool {
	if !s.IsJobCancelled(jobID) {
		return false
	}

	log.Printf("🛑 Job %s cancelled, discarding result of %s", jobID, unit)

	if err := s.UpdateJobStatus(ctx, jobID, model.StatusUserCancelled); err != nil {
		log.Printf("⚠️ Failed to keep cancelled status for %s: %v", jobID, err)
	}
	return true
}

// HandleFinalStatus - 최종 상태 처리 (취소된 경우 completed로 덮어쓰지 않음)
// 취소됐으면 true 반환
func HandleFinalStatus(ctx context.Context, s StatusUpdater, jobID string) bool {
	if !s.IsJobCancelled(jobID) {
		return false
	}

	log.Printf("🛑 Job %s was cancelled, keeping user_cancelled status", jobID)
	return true
}
